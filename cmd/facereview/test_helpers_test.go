package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facereview/internal/config"
	"facereview/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	backend    *testsupport.FakeBackend
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithAPIURL(fake.URL)}, opts...)...)
	t.Setenv("FACEREVIEW_API_URL", "")
	t.Setenv("FACEREVIEW_API_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, backend: fake, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
