package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ErrUnknownFormat is returned for formats other than table, json and yaml.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats.
func Formats() []string {
	return []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}
}

// ParseFormat validates a format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Write renders r to w.
func Write(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTable, "":
		return writeTable(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeTable(w io.Writer, r Report) error {
	variants := newTable("VARIANT", "BUILD TYPE", "ENABLED", "SIGNING", "FIELDS")
	for _, e := range r.Entries {
		enabled := strconv.FormatBool(e.Enabled)
		if e.DisabledBy != "" {
			enabled += " (" + e.DisabledBy + ")"
		}
		variants.Row(e.Variant, e.BuildType, enabled, e.Signing, formatFields(e.Fields))
	}

	common := newTable("FIELD", "VALUE", "SOURCE")
	for _, f := range r.Common {
		common.Row(f.Name, f.Value, f.Source)
	}

	buildTypes := newTable("BUILD TYPE", "FIELD", "VALUE", "SOURCE")
	for _, bt := range r.BuildTypes {
		for _, f := range bt.Fields {
			buildTypes.Row(bt.BuildType, f.Name, f.Value, f.Source)
		}
	}

	summary := fmt.Sprintf("%d variants, %d enabled; sources: %s",
		len(r.Entries), r.EnabledCount(), strings.Join(r.Sources, " > "))

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n", variants.Render(), common.Render(), buildTypes.Render(), summary)
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func formatFields(fields []Field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f.Name+"="+f.Value)
	}
	return strings.Join(lines, "\n")
}
