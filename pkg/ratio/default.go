package ratio

import "strings"

// keyGlyphs maps physical key codes to the glyph printed on a US keyboard
var keyGlyphs = map[string]string{
	"Minus":        "-",
	"Equal":        "=",
	"IntlYen":      "¥",
	"BracketLeft":  "[",
	"BracketRight": "]",
	"Semicolon":    ";",
	"Quote":        "'",
	"Backslash":    "\\",
	"Comma":        ",",
	"Period":       ".",
	"Slash":        "/",
}

// LabelFor derives a display label from a key code: Digit1 -> 1, KeyQ -> Q,
// Minus -> -. Unknown codes are returned unchanged.
func LabelFor(key string) string {
	if g, ok := keyGlyphs[key]; ok {
		return g
	}
	if d, ok := strings.CutPrefix(key, "Digit"); ok && len(d) == 1 {
		return d
	}
	if k, ok := strings.CutPrefix(key, "Key"); ok && len(k) == 1 {
		return k
	}
	return key
}

func e(key string, w Waveform, num, den int) Entry {
	return Entry{Key: key, Label: LabelFor(key), Ratio: Ratio{Num: num, Den: den}, Waveform: w}
}

var defaultEntries = []Entry{
	// number row
	e("Digit1", Sine, 1, 1),
	e("Digit2", Triangle, 2, 1),
	e("Digit3", Square, 3, 2),
	e("Digit4", Sawtooth, 4, 3),
	e("Digit5", Sine, 5, 4),
	e("Digit6", Square, 5, 3),
	e("Digit7", Sawtooth, 6, 5),
	e("Digit8", Sawtooth, 7, 6),
	e("Digit9", Triangle, 7, 5),
	e("Digit0", Sawtooth, 7, 4),
	e("Minus", Sine, 8, 7),
	e("Equal", Triangle, 8, 5),
	e("IntlYen", Sawtooth, 9, 8),

	// top row
	e("KeyQ", Sine, 9, 7),
	e("KeyW", Sawtooth, 9, 5),
	e("KeyE", Square, 10, 9),
	e("KeyR", Sine, 10, 7),
	e("KeyT", Triangle, 11, 10),
	e("KeyY", Sawtooth, 11, 9),
	e("KeyU", Square, 11, 8),
	e("KeyI", Square, 11, 7),
	e("KeyO", Sawtooth, 11, 6),
	e("KeyP", Sawtooth, 12, 11),
	e("BracketLeft", Triangle, 12, 7),
	e("BracketRight", Square, 1, 2),

	// home row
	e("KeyA", Square, 2, 3),
	e("KeyS", Triangle, 3, 4),
	e("KeyD", Sine, 3, 5),
	e("KeyF", Triangle, 4, 5),
	e("KeyG", Triangle, 4, 7),
	e("KeyH", Triangle, 5, 6),
	e("KeyJ", Sine, 5, 7),
	e("KeyK", Square, 5, 8),
	e("KeyL", Sawtooth, 5, 9),
	e("Semicolon", Sine, 6, 7),
	e("Quote", Sine, 7, 8),
	e("Backslash", Sine, 7, 9),

	// bottom row
	e("KeyZ", Square, 7, 10),
	e("KeyX", Sine, 7, 11),
	e("KeyC", Square, 7, 12),
	e("KeyV", Sawtooth, 7, 13),
	e("KeyB", Triangle, 8, 9),
	e("KeyN", Square, 8, 11),
	e("KeyM", Sawtooth, 8, 13),
	e("Comma", Sine, 9, 10),
	e("Period", Triangle, 9, 11),
	e("Slash", Square, 9, 13),
}

// DefaultTable returns the built-in 47 key layout: ascending ratios on the
// number and top rows, descending ratios on the home and bottom rows
func DefaultTable() *Table {
	t, err := NewTable(defaultEntries)
	if err != nil {
		panic("ratio: invalid default table: " + err.Error())
	}
	return t
}
