package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"gopkg.in/yaml.v3"
)

// Column widths, in terminal cells, of the title columns in table output.
const (
	titleWidth     = 48
	referenceWidth = 60
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, format Format) *Formatter {
	return &Formatter{
		writer: writer,
		format: format,
	}
}

// FormatChecks prints a history listing.
func (f *Formatter) FormatChecks(checks []CheckDTO) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(checks)
	case FormatYAML:
		return f.encodeYAML(checks)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "STATUS", "REFS", "OK", "ERR", "WARN", "UNVER")
	for _, c := range checks {
		t.Row(
			strconv.FormatInt(c.ID, 10),
			ansi.Truncate(c.Title, titleWidth, "..."),
			c.Status,
			fmt.Sprintf("%d/%d", c.Processed, c.Total),
			strconv.Itoa(c.Paper.Verified),
			strconv.Itoa(c.Paper.WithErrors),
			strconv.Itoa(c.Paper.WarningsOnly),
			strconv.Itoa(c.Paper.Unverified),
		)
	}
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

// FormatCheck prints one check with its references.
func (f *Formatter) FormatCheck(c CheckDTO) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(c)
	case FormatYAML:
		return f.encodeYAML(c)
	}
	fmt.Fprintf(f.writer, "#%d %s\n", c.ID, c.Title)
	fmt.Fprintf(f.writer, "source: %s\n", c.Source)
	fmt.Fprintf(f.writer, "status: %s  %d/%d references\n", c.Status, c.Processed, c.Total)
	if c.Error != "" {
		fmt.Fprintf(f.writer, "error:  %s\n", c.Error)
	}
	fmt.Fprintf(f.writer, "verified %d  errors %d  warnings %d  unverified %d\n",
		c.Paper.Verified, c.Paper.WithErrors, c.Paper.WarningsOnly, c.Paper.Unverified)
	if len(c.References) == 0 {
		return nil
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "REFERENCE", "YEAR", "STATUS", "ISSUES")
	for i, r := range c.References {
		issues := len(r.Errors) + len(r.Warnings)
		t.Row(strconv.Itoa(i+1), ansi.Truncate(r.Title, referenceWidth, "..."), r.Year, r.Status, strconv.Itoa(issues))
	}
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

// FormatResult prints an arbitrary command result in the structured
// formats and a plain line otherwise.
func (f *Formatter) FormatResult(result any) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(result)
	case FormatYAML:
		return f.encodeYAML(result)
	}
	_, err := fmt.Fprintln(f.writer, result)
	return err
}

func (f *Formatter) encodeJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) encodeYAML(v any) error {
	encoder := yaml.NewEncoder(f.writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
