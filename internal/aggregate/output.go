package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/stats"
)

// Result bundles everything produced for one meeting.
type Result struct {
	Meta       Metadata
	Evaluation Evaluation
	Table      Table
	Pivot      PivotTable
	Diff       Diff
}

// Build validates the inputs and derives every aggregate view.
func Build(meta Metadata, scores Scores, sessions []model.StoredSession) (Result, error) {
	format, err := ParseFormat(string(meta.Format))
	if err == nil {
		meta.Format = format
	}
	eval, err := Evaluate(meta, scores)
	if err != nil {
		return Result{}, err
	}
	table := Merge(meta, sessions)
	diff, err := PlannedDiff(meta, table)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Meta:       meta,
		Evaluation: eval,
		Table:      table,
		Pivot:      Pivot(table),
		Diff:       diff,
	}, nil
}

// RenderText prints the identity block, evaluation, pivot and planned difference.
func RenderText(w io.Writer, res Result) error {
	lines := stats.FormatTable(nil, [][]string{
		{"Client", res.Meta.Client},
		{"Meeting date", res.Meta.Date},
		{"Audio duration", res.Meta.AudioDuration},
		{"Format", string(res.Meta.Format)},
	})
	lines = append(lines, "", fmt.Sprintf("Evaluation (duration factor %.2f)", res.Evaluation.Factor))
	evalRows := make([][]string, 0, len(res.Evaluation.Criteria)+1)
	for _, c := range res.Evaluation.Criteria {
		evalRows = append(evalRows, []string{c.Name, formatFloat(c.Raw), formatFloat(c.Adjusted), formatFloat(c.Weight)})
	}
	evalRows = append(evalRows, []string{"global", "", formatFloat(res.Evaluation.Global), ""})
	lines = append(lines, stats.FormatTable([]string{"Criterion", "Raw", "Adjusted", "Weight"}, evalRows, 1, 2, 3)...)

	lines = append(lines, "", "Sessions")
	if len(res.Pivot.Sessions) == 0 {
		lines = append(lines, "No sessions found.")
	} else {
		headers, rows := pivotRows(res.Pivot)
		right := make([]int, 0, len(headers)-1)
		for i := 1; i < len(headers); i++ {
			right = append(right, i)
		}
		lines = append(lines, stats.FormatTable(headers, rows, right...)...)
	}
	lines = append(lines, "", fmt.Sprintf("Planned vs actual (min): predicted %s, actual %s, diff %+.2f",
		formatFloat(res.Diff.Predicted), formatFloat(res.Diff.Actual), res.Diff.Diff))

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes the merged table and the pivot as two CSV files and returns their paths.
func WriteCSV(dir string, res Result, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory: %w", err)
	}
	prefix := filepath.Join(dir, "aggregated_metrics_"+now.Format("20060102150405"))

	summary := [][]string{append([]string{"session", "id", "client", "meeting_date", "audio_duration", "format"}, res.Table.Columns...)}
	for _, r := range res.Table.Rows {
		row := []string{r.Session, r.ID, res.Meta.Client, res.Meta.Date, res.Meta.AudioDuration, string(res.Meta.Format)}
		for _, col := range res.Table.Columns {
			row = append(row, cell(r.Values, col))
		}
		summary = append(summary, row)
	}

	headers, rows := pivotRows(res.Pivot)
	pivot := append([][]string{headers}, rows...)
	pivot = append(pivot, []string{"planned_diff_min", strconv.FormatFloat(res.Diff.Diff, 'f', 2, 64)})

	paths := []string{prefix + "_summary.csv", prefix + "_pivot.csv"}
	for i, data := range [][][]string{summary, pivot} {
		if err := writeCSV(paths[i], data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", paths[i], err)
		}
	}
	return paths, nil
}

func pivotRows(p PivotTable) ([]string, [][]string) {
	headers := append([]string{"Metric"}, p.Sessions...)
	headers = append(headers, "Total")
	rows := make([][]string, 0, len(p.Metrics))
	for _, metric := range p.Metrics {
		row := []string{metric}
		for i := range p.Sessions {
			v, ok := p.Cells[metric][i]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		rows = append(rows, append(row, formatFloat(p.Totals[metric])))
	}
	return headers, rows
}

func cell(values map[string]float64, col string) string {
	v, ok := values[col]
	if !ok {
		return ""
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return csv.NewWriter(f).WriteAll(rows)
}
