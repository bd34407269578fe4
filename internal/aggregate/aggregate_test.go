package aggregate

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseDuration(t *testing.T) {
	got, err := ParseDuration("01:30")
	if err != nil || got != 90 {
		t.Fatalf("ParseDuration(01:30) = %d, %v", got, err)
	}
	for _, bad := range []string{"", "90", "1:xx", "-1:00", "01:75", "1:2:3"} {
		_, err := ParseDuration(bad)
		var ie *InvalidIntervalError
		if !errors.As(err, &ie) {
			t.Fatalf("ParseDuration(%q): expected InvalidIntervalError, got %v", bad, err)
		}
	}
}

func TestMetadataValidate(t *testing.T) {
	err := Metadata{Client: "ACME", Date: "14/03/2024", AudioDuration: "bad", Format: "XYZ"}.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var ie *InvalidIntervalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected interval error in %v", err)
	}
	if !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected format error in %v", err)
	}
	if err := (Metadata{Client: "ACME", Date: "14/03/2024", AudioDuration: "00:45", Format: "syd"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluateFactorAndCap(t *testing.T) {
	meta := Metadata{Client: "ACME", Date: "d", AudioDuration: "10:00", Format: FormatCRS}
	eval, err := Evaluate(meta, Scores{Noise: 3, Interruptions: 8, Complexity: 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Factor != 2 {
		t.Fatalf("expected factor 2, got %v", eval.Factor)
	}
	if !near(eval.Global, 3) {
		t.Fatalf("expected global 3, got %v", eval.Global)
	}
	var weights float64
	for _, c := range eval.Criteria {
		weights += c.Weight
		if c.Adjusted > 10 {
			t.Fatalf("criterion %s exceeds cap: %v", c.Name, c.Adjusted)
		}
	}
	if !near(weights, 1) {
		t.Fatalf("weights must sum to 1, got %v", weights)
	}
}

func TestEvaluateShortAudio(t *testing.T) {
	meta := Metadata{Client: "ACME", Date: "d", AudioDuration: "00:20", Format: FormatSYB}
	eval, err := Evaluate(meta, Scores{Noise: 10, Interruptions: 10, Complexity: 10})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Factor != 1 || !near(eval.Global, 10) {
		t.Fatalf("unexpected evaluation %+v", eval)
	}
	if _, err := Evaluate(meta, Scores{Noise: 11}); err == nil {
		t.Fatalf("expected out-of-range score error")
	}
}

func sessions() []model.StoredSession {
	return []model.StoredSession{
		{ID: "a", Name: "acme_part1", Summary: model.SessionSummary{
			TotalMinutes: 10, ActiveMinutes: 4, Insertions: 20, Deletions: 5,
			Commands: map[string]int{"COPY": 2},
		}},
		{ID: "b", Name: "acme_part2", Summary: model.SessionSummary{
			Insertions: 1, Commands: map[string]int{},
		}},
	}
}

func TestMergeAndPivot(t *testing.T) {
	meta := Metadata{Client: "ACME", Date: "d", AudioDuration: "01:00", Format: FormatSYD}
	table := Merge(meta, sessions())
	wantCols := []string{ColumnTotalDuration, ColumnActiveTime, ColumnActionsPerMin, model.FieldInsertions, model.FieldDeletions, "copy"}
	if strings.Join(table.Columns, ",") != strings.Join(wantCols, ",") {
		t.Fatalf("unexpected columns %v", table.Columns)
	}
	if got := table.Rows[0].Values[ColumnActionsPerMin]; got != 2.7 {
		t.Fatalf("expected 2.7 actions/min, got %v", got)
	}
	if got := table.Rows[1].Values[ColumnActionsPerMin]; got != 0 {
		t.Fatalf("expected 0 actions/min for zero duration, got %v", got)
	}
	if _, ok := table.Rows[1].Values["copy"]; ok {
		t.Fatalf("expected missing command cell to be absent")
	}

	p := Pivot(table)
	if len(p.Sessions) != 2 || p.Totals[model.FieldInsertions] != 21 || p.Totals["copy"] != 2 {
		t.Fatalf("unexpected pivot %+v", p)
	}
	if _, ok := p.Cells["copy"][1]; ok {
		t.Fatalf("expected absent pivot cell")
	}

	diff, err := PlannedDiff(meta, table)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if diff.Predicted != 150 || diff.Actual != 10 || diff.Diff != 140 {
		t.Fatalf("unexpected diff %+v", diff)
	}
}

func TestBuildRenderAndCSV(t *testing.T) {
	meta := Metadata{Client: "ACME", Date: "14/03/2024", AudioDuration: "01:00", Format: "syd"}
	res, err := Build(meta, Scores{Noise: 2, Interruptions: 1, Complexity: 5}, sessions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Meta.Format != FormatSYD {
		t.Fatalf("expected normalized format, got %q", res.Meta.Format)
	}

	var buf bytes.Buffer
	if err := RenderText(&buf, res); err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"ACME", "acme_part2", "Total", "global", "diff +140.00"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, buf.String())
		}
	}

	paths, err := WriteCSV(t.TempDir(), res, time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if !strings.HasSuffix(paths[0], "aggregated_metrics_20240314180000_summary.csv") {
		t.Fatalf("unexpected path %s", paths[0])
	}
	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 || rows[2][len(rows[2])-1] != "" {
		t.Fatalf("unexpected summary rows %v", rows)
	}
}
