package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Format names a report encoding
type Format string

const (
	// FormatText is the default table for terminals
	FormatText Format = "text"
	// FormatJSON is indented JSON, for CI artifacts and jq
	FormatJSON Format = "json"
	// FormatYAML is YAML with two-space indentation
	FormatYAML Format = "yaml"
)

// Formats lists the accepted --output values
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// TextRenderer is implemented by values that know how to print themselves
// for a terminal
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Formatter writes values in the configured format
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a Formatter writing to stdout
func New(format Format) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter redirects output, e.g. to a buffer in tests
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Output encodes data. In text format, values implementing TextRenderer
// render themselves and anything else is printed with %v.
func (f *Formatter) Output(data interface{}) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(f.writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		if r, ok := data.(TextRenderer); ok {
			return r.RenderText(f.writer)
		}
		_, err := fmt.Fprintf(f.writer, "%v\n", data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// IsStructured reports whether the format is machine readable
func (f *Formatter) IsStructured() bool {
	return f.format == FormatJSON || f.format == FormatYAML
}

// ParseFormat validates a format name, ignoring case
func ParseFormat(s string) (Format, error) {
	want := Format(strings.ToLower(s))
	for _, format := range Formats {
		if format == want {
			return format, nil
		}
	}
	return FormatText, fmt.Errorf("invalid output format: %s (must be one of %s)", s, formatList(", "))
}

func formatList(sep string) string {
	names := make([]string, len(Formats))
	for i, format := range Formats {
		names[i] = string(format)
	}
	return strings.Join(names, sep)
}

// AddFormatFlag registers --output/-o as a persistent flag on cmd, so every
// subcommand inherits it
func AddFormatFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("output", "o", string(FormatText), "Output format ("+formatList("|")+")")
}

// GetFormatFromCmd returns the --output value visible to cmd, including one
// inherited from a parent
func GetFormatFromCmd(cmd *cobra.Command) (Format, error) {
	flag := cmd.Flag("output")
	if flag == nil {
		return FormatText, fmt.Errorf("flag accessed but not defined: output")
	}
	return ParseFormat(flag.Value.String())
}
