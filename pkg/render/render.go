// Package render turns a probe report into its user-facing representations.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blockprobe/nbdscan/internal/probe"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render writes report to w in the requested format.
func Render(w io.Writer, report *probe.Report, format string) error {
	switch format {
	case FormatText, "":
		return renderText(w, report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}

// renderText writes the classic human-readable layout: the protocol lines
// first, then one block per export.
func renderText(w io.Writer, report *probe.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Negotiation: %s\n", report.Protocol.Negotiation)
	fmt.Fprintf(&b, "SSL/TLS Wrapped: %t\n", report.Protocol.TLSWrapped)
	if report.Protocol.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", report.Protocol.Note)
	}

	if len(report.Exports) > 0 {
		fmt.Fprintf(&b, "Exports:\n")
		for _, export := range report.Exports {
			fmt.Fprintf(&b, "  %s\n", exportLabel(export.Name))
			if export.Size != nil {
				fmt.Fprintf(&b, "    Size: %d bytes\n", *export.Size)
			}
			if len(export.Flags) > 0 {
				fmt.Fprintf(&b, "    Transmission flags: %s\n", strings.Join(export.Flags, ", "))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// exportLabel makes the implicit default export visible in text output.
func exportLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}
