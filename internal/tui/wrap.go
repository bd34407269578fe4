package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const maxTailRunes = 2048

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// appendTail applies one key name to the typed-text tail shown while capturing.
func appendTail(tail []rune, name string) []rune {
	switch name {
	case "space", "enter", "tab":
		tail = append(tail, ' ')
	case "backspace", "delete":
		if len(tail) > 0 {
			tail = tail[:len(tail)-1]
		}
	default:
		r := []rune(name)
		if len(r) != 1 {
			return tail
		}
		tail = append(tail, r[0])
	}
	if len(tail) > maxTailRunes {
		tail = append([]rune(nil), tail[len(tail)-maxTailRunes:]...)
	}
	return tail
}

func buildStyledRunes(tail []rune) []styledRune {
	out := make([]styledRune, 0, len(tail)+1)
	for _, r := range tail {
		out = append(out, styledRune{
			s:       typedStyle.Render(string(r)),
			width:   runewidth.RuneWidth(r),
			isSpace: r == ' ',
		})
	}
	out = append(out, styledRune{s: cursorStyle.Render(" "), width: 1, isSpace: true})
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}

func lastLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
