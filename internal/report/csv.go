package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/stats"
)

// CSV table suffixes, appended to the session name.
const (
	SummarySuffix     = "_summary.csv"
	HistogramSuffix   = "_histogram.csv"
	EvolutionSuffix   = "_evolution.csv"
	TypingRateSuffix  = "_typing_rate.csv"
	OccurrencesSuffix = "_occurrences.csv"
)

type csvTable struct {
	suffix string
	rows   [][]string
}

// CSVSink writes the summary, windowed tables and word table as CSV files in Dir.
type CSVSink struct {
	Dir string
}

// Write emits one file per table. The occurrences table is skipped when no word repeats.
func (c CSVSink) Write(_ context.Context, report model.Report) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create csv directory: %w", err)
	}
	base := report.Name
	if base == "" {
		base = "session"
	}

	tables := []csvTable{
		{SummarySuffix, summaryRows(report.Summary)},
		{HistogramSuffix, bucketRows(report.Series, []string{"start", "insertions", "deletions"}, func(b model.Bucket) []string {
			return []string{strconv.Itoa(b.Insertions), strconv.Itoa(b.Deletions)}
		})},
		{EvolutionSuffix, bucketRows(report.Series, []string{"start", "actions"}, func(b model.Bucket) []string {
			return []string{strconv.Itoa(b.Actions)}
		})},
		{TypingRateSuffix, bucketRows(report.Series, []string{"start", "rate"}, func(b model.Bucket) []string {
			return []string{strconv.FormatFloat(b.Rate, 'f', 2, 64)}
		})},
	}
	if len(report.Words) > 0 {
		tables = append(tables, csvTable{OccurrencesSuffix, wordRows(report.Words)})
	}

	for _, tbl := range tables {
		path := filepath.Join(c.Dir, base+tbl.suffix)
		if err := writeCSV(path, tbl.rows); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func summaryRows(summary model.SessionSummary) [][]string {
	fields := summary.Fields()
	names := summary.FieldNames()
	header := make([]string, 0, len(names))
	values := make([]string, 0, len(names))
	for _, name := range names {
		header = append(header, name)
		values = append(values, strconv.FormatFloat(fields[name], 'f', -1, 64))
	}
	return [][]string{header, values}
}

func bucketRows(series model.Series, header []string, cells func(model.Bucket) []string) [][]string {
	rows := make([][]string, 0, len(series.Buckets)+1)
	rows = append(rows, header)
	for _, b := range series.Buckets {
		rows = append(rows, append([]string{stats.BucketLabel(b.Start)}, cells(b)...))
	}
	return rows
}

func wordRows(words []model.WordCount) [][]string {
	rows := make([][]string, 0, len(words)+1)
	rows = append(rows, []string{"word", "count"})
	for _, wc := range words {
		rows = append(rows, []string{wc.Word, strconv.Itoa(wc.Count)})
	}
	return rows
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
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return nil
}
