package tui

import (
	"strings"
	"testing"
)

func TestAppendTail(t *testing.T) {
	var tail []rune
	for _, name := range []string{"h", "i", "space", "x", "backspace", "ctrl+c", "t", "enter"} {
		tail = appendTail(tail, name)
	}
	if string(tail) != "hi t " {
		t.Fatalf("unexpected tail %q", string(tail))
	}
	if got := appendTail(nil, "backspace"); len(got) != 0 {
		t.Fatalf("expected empty tail, got %q", string(got))
	}
}

func TestAppendTailBounded(t *testing.T) {
	var tail []rune
	for i := 0; i < maxTailRunes+10; i++ {
		tail = appendTail(tail, "a")
	}
	if len(tail) != maxTailRunes {
		t.Fatalf("expected tail capped at %d, got %d", maxTailRunes, len(tail))
	}
}

func TestBuildStyledRunesWidths(t *testing.T) {
	runes := buildStyledRunes([]rune("a日 "))
	if len(runes) != 4 {
		t.Fatalf("expected 3 runes plus cursor, got %d", len(runes))
	}
	if runes[1].width != 2 {
		t.Fatalf("expected wide rune width 2, got %d", runes[1].width)
	}
	if !runes[2].isSpace || !runes[3].isSpace {
		t.Fatalf("expected space and cursor flagged as spaces")
	}
	if runes[0].s != typedStyle.Render("a") {
		t.Fatalf("expected typed style")
	}
}

func plain(s string) []styledRune {
	out := make([]styledRune, 0, len(s))
	for _, r := range s {
		out = append(out, styledRune{s: string(r), width: 1, isSpace: r == ' '})
	}
	return out
}

func TestWrapStyledRunesBreaksOnSpaces(t *testing.T) {
	got := wrapStyledRunes(plain("one two three"), 8)
	if got != "one two\nthree" {
		t.Fatalf("unexpected wrap %q", got)
	}
}

func TestWrapStyledRunesHardBreak(t *testing.T) {
	got := wrapStyledRunes(plain("abcdefgh"), 3)
	if got != "abc\ndef\ngh" {
		t.Fatalf("unexpected wrap %q", got)
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc", 2); got != "b\nc" {
		t.Fatalf("unexpected %q", got)
	}
	if got := lastLines("a", 4); got != "a" {
		t.Fatalf("unexpected %q", got)
	}
	if strings.Contains(lastLines("a\nb", 0), "a") {
		t.Fatalf("expected nothing for zero lines")
	}
}
