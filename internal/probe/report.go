package probe

import (
	"github.com/blockprobe/nbdscan/internal/protocol/nbd"
)

// Report is the structured result of one probe.
type Report struct {
	Protocol ProtocolSection `json:"protocol" yaml:"protocol"`

	// Exports is nil when no export has any recorded info; when present
	// it lists every known export, including ones with no details.
	Exports []ExportSection `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// ProtocolSection describes the negotiation outcome.
type ProtocolSection struct {
	Negotiation string `json:"negotiation" yaml:"negotiation"`
	TLSWrapped  bool   `json:"tls_wrapped" yaml:"tls_wrapped"`
	Note        string `json:"note,omitempty" yaml:"note,omitempty"`
}

// ExportSection describes one export.
type ExportSection struct {
	Name  string   `json:"name" yaml:"name"`
	Size  *uint64  `json:"size,omitempty" yaml:"size,omitempty"`
	Flags []string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// protocolSection builds the protocol half of the report from final session
// state. Pure over its input.
func protocolSection(sess Session, note string) ProtocolSection {
	return ProtocolSection{
		Negotiation: sess.NegotiationMode().String(),
		TLSWrapped:  sess.TLSWrapped(),
		Note:        note,
	}
}

// exportSections builds the exports half of the report, traversing the
// registry in first-seen order. It returns nil unless at least one export
// carries recorded info, which is what decides whether the report has an
// Exports section at all.
func exportSections(set *nbd.ExportSet) []ExportSection {
	names := set.Names()

	populated := false
	for _, name := range names {
		if info, ok := set.Lookup(name); ok && !info.Empty() {
			populated = true
			break
		}
	}
	if !populated {
		return nil
	}

	sections := make([]ExportSection, 0, len(names))
	for _, name := range names {
		section := ExportSection{Name: name}
		if info, ok := set.Lookup(name); ok {
			section.Size = info.Size
			if info.HasFlags {
				section.Flags = info.Flags
			}
		}
		sections = append(sections, section)
	}
	return sections
}
