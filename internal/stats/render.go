package stats

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

const (
	sparkChars        = " .:-=+*#%@"
	bucketTimeLayout  = "15:04:05"
	noWordsMessage    = "No repeated words."
	noActivityMessage = "No heartbeat windows."
)

// RenderOptions sizes rendered plots.
type RenderOptions struct {
	Width  int
	Height int
	Color  bool
}

// BucketLabel formats a bucket start the way windowed tables index rows.
func BucketLabel(t time.Time) string {
	return t.Format(bucketTimeLayout)
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := minMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderReport writes every section of a session report.
func RenderReport(w io.Writer, report model.Report, opts RenderOptions) error {
	if report.Name != "" {
		if _, err := fmt.Fprintf(w, "Session: %s\n", report.Name); err != nil {
			return err
		}
	}
	if !report.StartedAt.IsZero() {
		if _, err := fmt.Fprintf(w, "From %s to %s\n\n", report.StartedAt.Format(time.DateTime), report.EndedAt.Format(time.DateTime)); err != nil {
			return err
		}
	}
	steps := []func() error{
		func() error { return RenderSummary(w, report.Summary) },
		func() error { return RenderActivity(w, report.Activity) },
		func() error { return RenderHistogram(w, report.Series, opts) },
		func() error { return RenderEvolution(w, report.Series, opts) },
		func() error { return RenderTypingRate(w, report.Series, opts) },
		func() error { return RenderWords(w, report.Words) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// RenderSummary prints the flat summary mapping as a two-column table.
func RenderSummary(w io.Writer, summary model.SessionSummary) error {
	fields := summary.Fields()
	rows := make([][]string, 0, len(fields))
	for _, name := range summary.FieldNames() {
		rows = append(rows, []string{name, formatNumber(fields[name])})
	}
	return writeSection(w, "Summary", FormatTable([]string{"Metric", "Value"}, rows, 1))
}

// RenderActivity prints one row per heartbeat window.
func RenderActivity(w io.Writer, windows []model.ActivityWindow) error {
	if len(windows) == 0 {
		return writeSection(w, "Activity", []string{noActivityMessage})
	}
	rows := make([][]string, 0, len(windows))
	active := 0
	for _, win := range windows {
		state := "idle"
		if win.Active {
			state = "active"
			active++
		}
		rows = append(rows, []string{
			BucketLabel(win.Start),
			BucketLabel(win.End),
			strconv.Itoa(win.Events),
			state,
		})
	}
	lines := FormatTable([]string{"From", "To", "Events", "State"}, rows, 2)
	lines = append(lines, fmt.Sprintf("Active windows: %d of %d", active, len(windows)))
	return writeSection(w, "Activity", lines)
}

// RenderHistogram plots insertions against deletions per bucket.
func RenderHistogram(w io.Writer, series model.Series, opts RenderOptions) error {
	ins := make([]float64, len(series.Buckets))
	del := make([]float64, len(series.Buckets))
	rows := make([][]string, 0, len(series.Buckets))
	for i, b := range series.Buckets {
		ins[i] = float64(b.Insertions)
		del[i] = float64(b.Deletions)
		rows = append(rows, []string{BucketLabel(b.Start), strconv.Itoa(b.Insertions), strconv.Itoa(b.Deletions)})
	}
	return renderWindowed(w, "Histogram", series, []Line{
		{Name: "Insertions", Values: ins},
		{Name: "Deletions", Values: del},
	}, []string{"Start", "Insertions", "Deletions"}, rows, opts)
}

// RenderEvolution plots the number of actions per bucket.
func RenderEvolution(w io.Writer, series model.Series, opts RenderOptions) error {
	actions := make([]float64, len(series.Buckets))
	rows := make([][]string, 0, len(series.Buckets))
	for i, b := range series.Buckets {
		actions[i] = float64(b.Actions)
		rows = append(rows, []string{BucketLabel(b.Start), strconv.Itoa(b.Actions)})
	}
	return renderWindowed(w, "Evolution", series, []Line{
		{Name: "Actions", Values: actions},
	}, []string{"Start", "Actions"}, rows, opts)
}

// RenderTypingRate plots insertions per minute per bucket.
func RenderTypingRate(w io.Writer, series model.Series, opts RenderOptions) error {
	rates := make([]float64, len(series.Buckets))
	rows := make([][]string, 0, len(series.Buckets))
	for i, b := range series.Buckets {
		rates[i] = b.Rate
		rows = append(rows, []string{BucketLabel(b.Start), fmt.Sprintf("%.2f", b.Rate)})
	}
	return renderWindowed(w, "Typing Rate", series, []Line{
		{Name: "Insertions/min", Values: rates},
	}, []string{"Start", "Insertions/min"}, rows, opts)
}

// RenderWords prints the repeated-word table.
func RenderWords(w io.Writer, words []model.WordCount) error {
	if len(words) == 0 {
		return writeSection(w, "Words", []string{noWordsMessage})
	}
	rows := make([][]string, 0, len(words))
	for _, wc := range words {
		rows = append(rows, []string{wc.Word, strconv.Itoa(wc.Count)})
	}
	return writeSection(w, "Words", FormatTable([]string{"Word", "Count"}, rows, 1))
}

func renderWindowed(w io.Writer, title string, series model.Series, lines []Line, headers []string, rows [][]string, opts RenderOptions) error {
	heading := fmt.Sprintf("%s (every %s)", title, series.Width)
	if len(series.Buckets) == 0 {
		return writeSection(w, heading, []string{"Not enough events to resample."})
	}
	if len(series.Buckets) > 1 {
		first := series.Buckets[0].Start
		last := series.Buckets[len(series.Buckets)-1].Start
		if err := Plot(w, lines, PlotOptions{
			Title:   heading,
			Width:   plotWidth(opts.Width),
			Height:  opts.Height,
			Color:   opts.Color,
			XLabels: [2]string{BucketLabel(first), BucketLabel(last)},
		}); err != nil {
			return err
		}
		heading = ""
	}
	right := make([]int, 0, len(headers)-1)
	for i := 1; i < len(headers); i++ {
		right = append(right, i)
	}
	return writeSection(w, heading, FormatTable(headers, rows, right...))
}

func plotWidth(total int) int {
	if total <= 0 {
		return 0
	}
	return PlotWidthFor(total)
}

func writeSection(w io.Writer, title string, lines []string) error {
	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
