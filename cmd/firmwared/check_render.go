package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"

	"firmwared/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const checkLabelWidth = 20

// resultKind maps a preflight result onto a status. Optional checks that
// fail only warn.
func resultKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func renderResult(r preflight.Result, colorize bool) string {
	return renderCheckLine(r.Name, resultKind(r), r.Detail, colorize)
}

func renderSetting(label, value string, colorize bool) string {
	return renderCheckLine(label, statusInfo, value, colorize)
}

func renderCheckLine(label string, kind statusKind, detail string, colorize bool) string {
	style := statusStyles[kind]
	status := "[" + style.label + "]"
	if detail != "" {
		status += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", status)
	if colorize {
		return style.colors.Sprint(line)
	}
	return line
}

func renderCheckTitle(colorize bool) string {
	title := "firmwared preflight"
	if colorize {
		return text.Colors{text.FgBlue, text.Bold}.Sprint(title)
	}
	return title
}
