package capture

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/verte-zerg/keytrace/internal/model"
)

// Key names with special meaning to the analyzer.
const (
	KeySpace     = "space"
	KeyBackspace = "backspace"
	KeyDelete    = "delete"
)

// DefaultHotkeys maps shortcut combos to command names. ctrl+i is absent:
// a terminal sends it as tab, see TerminalAlias.
func DefaultHotkeys() map[string]string {
	return map[string]string{
		"ctrl+c": "COPY",
		"ctrl+v": "PASTE",
		"ctrl+x": "CUT",
		"ctrl+b": "BOLD",
		"ctrl+u": "UNDERLINE",
	}
}

// Terminals encode these combos as the same byte as a named key, so they
// reach the session under that name.
var terminalAliases = map[string]string{
	"ctrl+i": "tab",
	"ctrl+m": "enter",
	"ctrl+h": "backspace",
	"ctrl+[": "esc",
}

// TerminalAlias returns the key name a terminal reports for combo, if it
// is indistinguishable from that key.
func TerminalAlias(combo string) (string, bool) {
	alias, ok := terminalAliases[strings.ToLower(strings.TrimSpace(combo))]
	return alias, ok
}

// UnreachableHotkeys lists, sorted, the combos in hotkeys that can never be
// recorded from a terminal.
func UnreachableHotkeys(hotkeys map[string]string) []string {
	var out []string
	for combo := range hotkeys {
		if _, ok := TerminalAlias(combo); ok {
			out = append(out, strings.ToLower(strings.TrimSpace(combo)))
		}
	}
	sort.Strings(out)
	return out
}

// IsDeletion reports whether ev is a deletion-class keystroke.
func IsDeletion(ev model.Event) bool {
	if ev.Kind != model.KindKey {
		return false
	}
	return ev.Payload == KeyBackspace || ev.Payload == KeyDelete
}

// ClassifyKey turns a raw key name into an INS or KEY event.
// Single printable characters become lower-cased insertions.
func ClassifyKey(name string) model.Event {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if r == ' ' {
			return model.Event{Kind: model.KindKey, Payload: KeySpace}
		}
		if unicode.IsPrint(r) {
			return model.Event{Kind: model.KindInsert, Payload: string(unicode.ToLower(r))}
		}
		switch r {
		case '\r', '\n':
			return model.Event{Kind: model.KindKey, Payload: "enter"}
		case '\t':
			return model.Event{Kind: model.KindKey, Payload: "tab"}
		}
		return model.Event{Kind: model.KindKey, Payload: fmt.Sprintf("u+%04x", r)}
	}
	return model.Event{Kind: model.KindKey, Payload: sanitizeName(strings.ToLower(name))}
}

// Control characters would split a log line.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
}

// NormalizeHotkeys lower-cases combos and upper-cases command names.
func NormalizeHotkeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for combo, name := range in {
		combo = strings.ToLower(strings.TrimSpace(combo))
		name = strings.ToUpper(strings.TrimSpace(name))
		if combo == "" || name == "" {
			continue
		}
		out[combo] = name
	}
	return out
}
