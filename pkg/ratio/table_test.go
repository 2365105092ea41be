package ratio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewRatio(t *testing.T) {
	tests := []struct {
		name     string
		num, den int
		wantErr  bool
	}{
		{"unison", 1, 1, false},
		{"fifth", 3, 2, false},
		{"zero numerator", 0, 1, true},
		{"zero denominator", 1, 0, true},
		{"negative", -3, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.num, tt.den)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%d, %d) error = %v, wantErr %v", tt.num, tt.den, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRatio) {
				t.Errorf("error %v does not wrap ErrInvalidRatio", err)
			}
		})
	}
}

func TestRatioDistance(t *testing.T) {
	tests := []struct {
		r    Ratio
		want float64
	}{
		{Ratio{1, 1}, 1},
		{Ratio{2, 1}, 2},
		{Ratio{1, 2}, 2},
		{Ratio{3, 2}, 1.5},
		{Ratio{2, 3}, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.r.String(), func(t *testing.T) {
			if got := tt.r.Distance(); got != tt.want {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    Ratio
		wantErr bool
	}{
		{"3/2", Ratio{3, 2}, false},
		{" 7 / 4 ", Ratio{7, 4}, false},
		{"2", Ratio{2, 1}, false},
		{"0/2", Ratio{}, true},
		{"a/b", Ratio{}, true},
		{"", Ratio{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRatio(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRatio(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRatio(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseWaveform(t *testing.T) {
	for _, w := range Waveforms() {
		got, err := ParseWaveform(strings.ToUpper(w.String()))
		if err != nil {
			t.Fatalf("ParseWaveform(%q) error = %v", w, err)
		}
		if got != w {
			t.Errorf("ParseWaveform(%q) = %v, want %v", w, got, w)
		}
	}
	if _, err := ParseWaveform("noise"); !errors.Is(err, ErrInvalidWaveform) {
		t.Errorf("ParseWaveform(noise) error = %v, want ErrInvalidWaveform", err)
	}
}

func TestLabelFor(t *testing.T) {
	tests := map[string]string{
		"Digit1":       "1",
		"KeyQ":         "Q",
		"Minus":        "-",
		"BracketRight": "]",
		"Backslash":    "\\",
		"F13":          "F13",
	}
	for key, want := range tests {
		if got := LabelFor(key); got != want {
			t.Errorf("LabelFor(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	if table.Len() != 47 {
		t.Errorf("Len() = %d, want 47", table.Len())
	}

	e, ok := table.Lookup("Digit3")
	if !ok {
		t.Fatal("Lookup(Digit3) not found")
	}
	if e.Ratio != (Ratio{3, 2}) || e.Waveform != Square || e.Label != "3" {
		t.Errorf("Digit3 = %+v", e)
	}

	if _, ok := table.Lookup("F1"); ok {
		t.Error("Lookup(F1) should not be found")
	}

	entries := table.Entries()
	if entries[0].Key != "Digit1" || entries[len(entries)-1].Key != "Slash" {
		t.Errorf("Entries() order = %s..%s", entries[0].Key, entries[len(entries)-1].Key)
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{"zero ratio", []Entry{{Key: "A", Ratio: Ratio{0, 1}}}, ErrInvalidRatio},
		{"bad waveform", []Entry{{Key: "A", Ratio: Ratio{1, 1}, Waveform: Waveform(9)}}, ErrInvalidWaveform},
		{"duplicate", []Entry{{Key: "A", Ratio: Ratio{1, 1}}, {Key: "A", Ratio: Ratio{2, 1}}}, ErrDuplicateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewTable([]Entry{{Ratio: Ratio{1, 1}}}); err == nil {
		t.Error("NewTable() with empty key should fail")
	}
}

func TestSortedByDistance(t *testing.T) {
	table, err := NewTable([]Entry{
		{Key: "A", Ratio: Ratio{2, 1}},
		{Key: "B", Ratio: Ratio{1, 1}},
		{Key: "C", Ratio: Ratio{2, 3}},
		{Key: "D", Ratio: Ratio{1, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, e := range table.SortedByDistance() {
		keys = append(keys, e.Key)
	}
	if got := strings.Join(keys, ""); got != "BCAD" {
		t.Errorf("SortedByDistance() = %s, want BCAD", got)
	}
}

func TestWithWaveform(t *testing.T) {
	forced, err := DefaultTable().WithWaveform(Triangle)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range forced.Entries() {
		if e.Waveform != Triangle {
			t.Fatalf("%s waveform = %v, want triangle", e.Key, e.Waveform)
		}
	}
	if e, _ := DefaultTable().Lookup("Digit1"); e.Waveform != Sine {
		t.Error("WithWaveform modified the source table")
	}
}

func TestLoadTable(t *testing.T) {
	doc := `
keys:
  - key: A
    ratio: "1/1"
    waveform: sine
  - key: B
    label: b
    ratio: [2, 1]
    waveform: square
  - key: C
    ratio: 3/2
    waveform: sawtooth
`
	table, err := LoadTable(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	b, _ := table.Lookup("B")
	if b.Ratio != (Ratio{2, 1}) || b.Label != "b" || b.Waveform != Square {
		t.Errorf("B = %+v", b)
	}
	a, _ := table.Lookup("A")
	if a.Label != "A" {
		t.Errorf("A label = %q, want derived label A", a.Label)
	}
}

func TestLoadTableErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no keys", "keys: []\n"},
		{"zero ratio", "keys:\n  - key: A\n    ratio: 0/1\n    waveform: sine\n"},
		{"bad waveform", "keys:\n  - key: A\n    ratio: 1/1\n    waveform: noise\n"},
		{"three terms", "keys:\n  - key: A\n    ratio: [1, 2, 3]\n    waveform: sine\n"},
		{"unknown field", "keys:\n  - key: A\n    ratio: 1/1\n    gain: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTable(strings.NewReader(tt.doc)); err == nil {
				t.Error("LoadTable() should fail")
			}
		})
	}
}

func TestWriteTableLoadsBack(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, DefaultTable()); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	loaded, err := LoadTable(&buf)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if loaded.Len() != DefaultTable().Len() {
		t.Errorf("loaded %d keys, want %d", loaded.Len(), DefaultTable().Len())
	}
}

func TestWaveformYAML(t *testing.T) {
	var w Waveform
	if err := yaml.Unmarshal([]byte("triangle"), &w); err != nil {
		t.Fatal(err)
	}
	if w != Triangle {
		t.Errorf("got %v, want triangle", w)
	}
}
