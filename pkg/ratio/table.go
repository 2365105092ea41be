package ratio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Table is an immutable key -> Entry mapping that preserves load order
type Table struct {
	entries []Entry
	index   map[string]int
}

// NewTable validates entries and builds a Table. Invalid ratios, unknown
// waveforms, empty keys and duplicate keys are rejected.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("entry %d: empty key", i)
		}
		if err := e.Ratio.Validate(); err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Key, err)
		}
		if !e.Waveform.Valid() {
			return nil, fmt.Errorf("entry %q: %w: %d", e.Key, ErrInvalidWaveform, int(e.Waveform))
		}
		if _, dup := t.index[e.Key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key)
		}
		if e.Label == "" {
			e.Label = LabelFor(e.Key)
		}
		t.index[e.Key] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Lookup returns the entry bound to key
func (t *Table) Lookup(key string) (Entry, bool) {
	i, ok := t.index[key]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in table order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// SortedByDistance returns the entries ordered by how far each ratio moves
// the pitch, closest first. Ties keep table order.
func (t *Table) SortedByDistance() []Entry {
	out := t.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ratio.Distance() < out[j].Ratio.Distance()
	})
	return out
}

// WithWaveform returns a copy of the table where every entry uses w
func (t *Table) WithWaveform(w Waveform) (*Table, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWaveform, int(w))
	}
	entries := t.Entries()
	for i := range entries {
		entries[i].Waveform = w
	}
	return NewTable(entries)
}

// tableFile is the YAML document layout of a ratio table
type tableFile struct {
	Keys []Entry `yaml:"keys"`
}

// LoadTable reads a YAML ratio table
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty ratio table")
		}
		return nil, fmt.Errorf("failed to parse ratio table: %w", err)
	}
	if len(f.Keys) == 0 {
		return nil, errors.New("ratio table has no keys")
	}
	return NewTable(f.Keys)
}

// LoadTableFile reads a YAML ratio table from disk
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ratio table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadTable(f)
}

// WriteTable encodes t in the format LoadTable reads
func WriteTable(w io.Writer, t *Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tableFile{Keys: t.Entries()}); err != nil {
		return fmt.Errorf("failed to encode ratio table: %w", err)
	}
	return enc.Close()
}
