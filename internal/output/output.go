// Package output renders structured command results for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Default is the default output format.
var Default Format = FormatYAML

// globalFormat is set by the root command's --output flag.
var globalFormat = Default

// SetFormat sets the global output format.
func SetFormat(format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	globalFormat = f
	return nil
}

// ParseFormat validates a format name.
func ParseFormat(format string) (Format, error) {
	switch Format(format) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (want yaml or json)", format)
	}
}

// Print writes data to stdout in the configured format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to the given writer in the specified format.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
