package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"facereview/internal/jobprogress"
	"facereview/internal/suggestion"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 12

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%-*s %s", statusLabelWidth, label+":", text)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func suggestionStatusKind(status suggestion.Status) statusKind {
	switch status {
	case suggestion.StatusAccepted:
		return statusOK
	case suggestion.StatusRejected, suggestion.StatusExpired:
		return statusWarn
	default:
		return statusInfo
	}
}

func progressLine(ev jobprogress.Event, colorize bool) string {
	kind := statusInfo
	switch ev.Phase {
	case jobprogress.PhaseCompleted:
		kind = statusOK
	case jobprogress.PhaseFailed:
		kind = statusError
	}
	msg := fmt.Sprintf("%d/%d (%.0f%%)", ev.Current, ev.Total, ev.Percent())
	if ev.Message != "" {
		msg += " " + ev.Message
	}
	return renderStatusLine(string(ev.Phase), kind, msg, colorize)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
