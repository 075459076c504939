package nbd

// ExportInfo holds what is known about a single export. An entry is created
// empty when the name first becomes known and is populated by an attach
// attempt.
type ExportInfo struct {
	// Size is the export size in bytes, nil until an attach reports it
	Size *uint64

	// Flags holds the printable transmission-flag names, with the
	// HasFlags marker already excluded
	Flags []string

	// HasFlags records whether the server marked the transmission flags
	// field as meaningful
	HasFlags bool
}

// Empty reports whether no attach ever populated this entry.
func (i *ExportInfo) Empty() bool {
	return i.Size == nil && !i.HasFlags && len(i.Flags) == 0
}

// ExportSet is an insertion-ordered collection of export names and their
// info. Registration is idempotent, so repeated discovery of the same name
// keeps the first-seen position and entry.
type ExportSet struct {
	order  []string
	byName map[string]*ExportInfo
}

func NewExportSet() *ExportSet {
	return &ExportSet{byName: make(map[string]*ExportInfo)}
}

// Add registers name with an empty ExportInfo if it is not already present
// and returns the entry. It reports whether the name was new.
func (s *ExportSet) Add(name string) (*ExportInfo, bool) {
	if info, ok := s.byName[name]; ok {
		return info, false
	}
	info := &ExportInfo{}
	s.byName[name] = info
	s.order = append(s.order, name)
	return info, true
}

// Lookup returns the entry for name, if any.
func (s *ExportSet) Lookup(name string) (*ExportInfo, bool) {
	info, ok := s.byName[name]
	return info, ok
}

// Names returns the registered names in first-seen order.
func (s *ExportSet) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Len returns the number of registered names.
func (s *ExportSet) Len() int {
	return len(s.order)
}
