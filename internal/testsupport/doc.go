// Package testsupport holds helpers shared by package tests: a config builder
// rooted in t.TempDir and an in-memory fake of the review API.
package testsupport
