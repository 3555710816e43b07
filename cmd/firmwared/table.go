package main

import (
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"firmwared/internal/manager"
)

const (
	missingSource = "(missing)"
	unnamed       = "(unnamed)"
)

// newFirmwareTable returns a rounded table with the Bytes column, when
// present, right aligned.
func newFirmwareTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Bytes", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw
}

func renderRequestsTable(pending []manager.PendingRequest, colorize bool) string {
	tw := newFirmwareTable("Device", "Firmware", "Source", "Bytes")
	for _, p := range pending {
		name := p.Request.Firmware
		if name == "" {
			name = unnamed
		}
		tw.AppendRow(table.Row{
			p.Request.DevPath,
			name,
			sourceCell(p.Resolution.Path, colorize),
			sizeCell(p.Resolution),
		})
	}
	return tw.Render()
}

func renderResolveTable(results []manager.Resolution, colorize bool) string {
	tw := newFirmwareTable("Firmware", "Source", "Bytes")
	for _, res := range results {
		tw.AppendRow(table.Row{res.Name, sourceCell(res.Path, colorize), sizeCell(res)})
	}
	return tw.Render()
}

// sourceCell renders a resolved path, or a highlighted marker when nothing
// matched.
func sourceCell(path string, colorize bool) string {
	if path != "" {
		return path
	}
	if colorize {
		return text.Colors{text.FgYellow, text.Bold}.Sprint(missingSource)
	}
	return missingSource
}

func sizeCell(res manager.Resolution) string {
	if res.Path == "" {
		return ""
	}
	return strconv.FormatInt(res.Size, 10)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
