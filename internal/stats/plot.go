package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Line is one named value sequence drawn on a plot.
type Line struct {
	Name   string
	Values []float64
}

// PlotOptions controls plot geometry and decoration.
type PlotOptions struct {
	Title  string
	Width  int
	Height int
	Color  bool
	// XLabels are printed under the first and last columns, e.g. bucket start times.
	XLabels [2]string
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisLabelTop        = "max"
	axisLabelMid        = "mid"
	axisLabelBottom     = "min"
	axisSeparator       = " │ "
	scaleNote           = "Scaled per line; see min/max below."
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
	brailleBase         = 0x2800
)

// brailleBits maps a dot inside a 2x4 braille cell, indexed [row][col], to its bit.
var brailleBits = [4][2]uint8{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// dash decides which pixel columns of a line are inked.
type dash struct {
	name  string
	every int
	keep  int
}

func (d dash) on(px int) bool {
	if d.every <= 1 {
		return true
	}
	return px%d.every < d.keep
}

var dashes = []dash{
	{name: "solid", every: 1, keep: 1},
	{name: "dashed", every: 6, keep: 3},
	{name: "dotted", every: 4, keep: 1},
	{name: "dashdot", every: 8, keep: 3},
}

var palette = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[34m", // blue
}

// canvas is a grid of braille cells addressed in sub-cell pixels.
// Each cell remembers the first layer that inked it, which picks its colour.
type canvas struct {
	cols  int
	rows  int
	mask  []uint8
	owner []int
}

func newCanvas(cols, rows int) *canvas {
	c := &canvas{
		cols:  cols,
		rows:  rows,
		mask:  make([]uint8, cols*rows),
		owner: make([]int, cols*rows),
	}
	for i := range c.owner {
		c.owner[i] = -1
	}
	return c
}

// dot inks pixel (px, py); py grows downwards.
func (c *canvas) dot(px, py, layer int) {
	if px < 0 || py < 0 || px >= c.cols*2 || py >= c.rows*4 {
		return
	}
	i := (py/4)*c.cols + px/2
	c.mask[i] |= brailleBits[py%4][px%2]
	if c.owner[i] < 0 {
		c.owner[i] = layer
	}
}

// trace draws one sample per cell column. The odd pixel column between two
// samples carries the vertical segment joining them.
func (c *canvas) trace(ys []int, layer int, d dash) {
	for x, y := range ys {
		px := 2 * x
		if x > 0 && d.on(px-1) {
			lo, hi := ys[x-1], y
			if lo > hi {
				lo, hi = hi, lo
			}
			for py := lo; py <= hi; py++ {
				c.dot(px-1, py, layer)
			}
		}
		if d.on(px) {
			c.dot(px, y, layer)
		}
	}
}

func (c *canvas) row(y int, color bool) string {
	var b strings.Builder
	for x := 0; x < c.cols; x++ {
		i := y*c.cols + x
		ch := rune(brailleBase + int(c.mask[i]))
		if color && c.owner[i] >= 0 {
			b.WriteString(palette[c.owner[i]%len(palette)])
			b.WriteRune(ch)
			b.WriteString(colorReset)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Plot renders a braille line chart with one independently scaled y range
// per line. Lines without values are skipped and nothing is written when no
// line has data.
func Plot(w io.Writer, lines []Line, opts PlotOptions) error {
	drawn := make([]Line, 0, len(lines))
	for _, l := range lines {
		if len(l.Values) > 0 {
			drawn = append(drawn, l)
		}
	}
	if len(drawn) == 0 {
		return nil
	}

	rows := opts.Height
	if rows <= 0 {
		rows = defaultPlotHeight
	}
	cols := opts.Width
	if cols <= 0 {
		cols = PlotWidthFor(terminalWidth())
	}
	cols = max(cols, minPlotWidth)

	c := newCanvas(cols, rows)
	out := []string{}
	if opts.Title != "" {
		out = append(out, opts.Title)
	}
	if len(drawn) > 1 {
		out = append(out, scaleNote)
	}
	for i, l := range drawn {
		values := fitValues(l.Values, cols)
		lo, hi := minMax(values)
		if math.Abs(hi-lo) < 1e-9 {
			lo, hi = lo-1, hi+1
		}
		out = append(out, fmt.Sprintf("%s: min=%.2f max=%.2f", l.Name, lo, hi))
		ys := make([]int, len(values))
		for x, v := range values {
			ys[x] = pixelRow(v, lo, hi, rows*4)
		}
		c.trace(ys, i, dashes[i%len(dashes)])
	}

	color := shouldUseColor(w, opts.Color)
	labelWidth := utf8.RuneCountInString(axisLabelTop)
	for y := 0; y < rows; y++ {
		out = append(out, fmt.Sprintf("%*s%s%s", labelWidth, yLabel(y, rows), axisSeparator, c.row(y, color)))
	}
	if axis := xAxis(opts.XLabels, labelWidth+utf8.RuneCountInString(axisSeparator), cols); axis != "" {
		out = append(out, axis)
	}
	out = append(out, legend(drawn, color), "")

	for _, line := range out {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func yLabel(y, rows int) string {
	switch {
	case y == 0:
		return axisLabelTop
	case y == rows-1:
		return axisLabelBottom
	case rows > 2 && y == rows/2:
		return axisLabelMid
	default:
		return ""
	}
}

func xAxis(labels [2]string, indent, width int) string {
	left, right := labels[0], labels[1]
	if left == "" && right == "" {
		return ""
	}
	gap := max(width-displayWidth(left)-displayWidth(right), 1)
	return strings.Repeat(" ", indent) + left + strings.Repeat(" ", gap) + right
}

func legend(lines []Line, color bool) string {
	parts := make([]string, 0, len(lines))
	for i, l := range lines {
		label := fmt.Sprintf("%c %s (%s)", rune(brailleBase+int(brailleBits[0][0])), l.Name, dashes[i%len(dashes)].name)
		if color {
			label = palette[i%len(palette)] + label + colorReset
		}
		parts = append(parts, label)
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// fitValues maps values onto width columns. Wider series keep the peak of
// each column's slice so short bursts stay visible; narrower series are
// held stepwise because every value is a whole bucket.
func fitValues(values []float64, width int) []float64 {
	n := len(values)
	if n == 0 || width <= 0 {
		return nil
	}
	out := make([]float64, width)
	if n <= width {
		for i := range out {
			out[i] = values[i*n/width]
		}
		return out
	}
	for i := range out {
		start := i * n / width
		end := max((i+1)*n/width, start+1)
		peak := values[start]
		for _, v := range values[start:end] {
			peak = math.Max(peak, v)
		}
		out[i] = peak
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// pixelRow places v inside [lo, hi] on a pixel column of the given height, top row first.
func pixelRow(v, lo, hi float64, height int) int {
	if height <= 1 {
		return 0
	}
	pos := (v - lo) / (hi - lo)
	row := int(math.Round((1 - pos) * float64(height-1)))
	return min(max(row, 0), height-1)
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axisWidth := utf8.RuneCountInString(axisLabelTop) + utf8.RuneCountInString(axisSeparator)
	return max(totalWidth-axisWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
