package stats

import (
	"testing"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

var t0 = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration, kind model.Kind, payload string) model.Event {
	return model.Event{Timestamp: t0.Add(offset), Kind: kind, Payload: payload}
}

func heartbeatWindow(inside int) []model.Event {
	events := []model.Event{at(0, model.KindHeartbeat, "")}
	for i := 0; i < inside; i++ {
		events = append(events, at(time.Duration(i+1)*time.Second, model.KindInsert, "a"))
	}
	return append(events, at(2*time.Minute, model.KindHeartbeat, ""))
}

func TestActivityThreshold(t *testing.T) {
	cfg := DefaultAnalyzeConfig()

	summary := Summarize(heartbeatWindow(7), cfg)
	if summary.ActiveMinutes != 2 {
		t.Fatalf("expected 2 active minutes, got %v", summary.ActiveMinutes)
	}
	if summary.TotalMinutes != 2 {
		t.Fatalf("expected 2 total minutes, got %v", summary.TotalMinutes)
	}

	summary = Summarize(heartbeatWindow(3), cfg)
	if summary.ActiveMinutes != 0 {
		t.Fatalf("expected 0 active minutes, got %v", summary.ActiveMinutes)
	}

	windows := ClassifyActivity(heartbeatWindow(6), cfg)
	if len(windows) != 1 || windows[0].Active || windows[0].Events != 6 {
		t.Fatalf("expected one idle window of 6 events, got %+v", windows)
	}
}

func TestActivityIgnoresEventsOnBoundaries(t *testing.T) {
	events := []model.Event{
		at(0, model.KindHeartbeat, ""),
		at(0, model.KindInsert, "a"),
		at(time.Minute, model.KindInsert, "b"),
		at(2*time.Minute, model.KindInsert, "c"),
		at(2*time.Minute, model.KindHeartbeat, ""),
	}
	windows := ClassifyActivity(events, DefaultAnalyzeConfig())
	if len(windows) != 1 || windows[0].Events != 1 {
		t.Fatalf("expected 1 event strictly inside, got %+v", windows)
	}
}

func TestSummarizeCountsRunLengths(t *testing.T) {
	events := []model.Event{
		at(0, model.KindInsert, "h"),
		at(time.Second, model.KindDeleteRun, "3"),
		at(2*time.Second, model.KindCommand, "COPY"),
		at(3*time.Second, model.KindCommand, "COPY"),
		at(4*time.Second, model.KindKey, "space"),
		at(5*time.Second, model.KindDeleteRun, "2"),
		at(6*time.Second, model.KindStop, ""),
	}
	summary := Summarize(events, DefaultAnalyzeConfig())
	if summary.Insertions != 1 || summary.Deletions != 5 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.Commands["COPY"] != 2 {
		t.Fatalf("expected 2 COPY commands, got %v", summary.Commands)
	}
	fields := summary.Fields()
	if fields["copy"] != 2 || fields[model.FieldTotalDuration] != 0.1 {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestResampleSumsMatchTotals(t *testing.T) {
	events := []model.Event{
		at(0, model.KindInsert, "a"),
		at(time.Minute, model.KindDeleteRun, "4"),
		at(2*time.Minute, model.KindHeartbeat, ""),
		at(12*time.Minute, model.KindInsert, "b"),
		at(13*time.Minute, model.KindInsert, "c"),
		at(35*time.Minute, model.KindDeleteRun, "2"),
		at(36*time.Minute, model.KindStop, ""),
	}
	series := Resample(events, 10*time.Minute)
	if len(series.Buckets) != 4 {
		t.Fatalf("expected 4 dense buckets, got %d", len(series.Buckets))
	}
	var ins, del int
	for _, b := range series.Buckets {
		ins += b.Insertions
		del += b.Deletions
	}
	summary := Summarize(events, DefaultAnalyzeConfig())
	if ins != summary.Insertions || del != summary.Deletions {
		t.Fatalf("bucket sums %d/%d differ from totals %d/%d", ins, del, summary.Insertions, summary.Deletions)
	}
	if b := series.Buckets[2]; b.Insertions != 0 || b.Actions != 0 || b.Rate != 0 {
		t.Fatalf("expected zero-filled gap bucket, got %+v", b)
	}
	if b := series.Buckets[0]; b.Actions != 2 || b.Rate != 0.1 {
		t.Fatalf("unexpected first bucket %+v", b)
	}
	if b := series.Buckets[1]; !b.Start.Equal(t0.Add(10*time.Minute)) || b.Rate != 0.2 {
		t.Fatalf("unexpected second bucket %+v", b)
	}
	if b := series.Buckets[3]; b.Deletions != 2 || b.Actions != 2 {
		t.Fatalf("unexpected last bucket %+v", b)
	}
}

func TestWordsExample(t *testing.T) {
	events := []model.Event{
		at(0, model.KindInsert, "h"),
		at(1*time.Second, model.KindInsert, "i"),
		at(2*time.Second, model.KindKey, "space"),
		at(3*time.Second, model.KindInsert, "h"),
		at(4*time.Second, model.KindKey, "shift"),
		at(5*time.Second, model.KindInsert, "i"),
		at(6*time.Second, model.KindKey, "space"),
		at(7*time.Second, model.KindInsert, "y"),
		at(8*time.Second, model.KindInsert, "o"),
	}
	words := Words(events, DefaultMinWordCount)
	if len(words) != 1 || words[0] != (model.WordCount{Word: "hi", Count: 2}) {
		t.Fatalf("expected {hi:2}, got %+v", words)
	}

	all := Words(events, 1)
	if len(all) != 2 || all[1] != (model.WordCount{Word: "yo", Count: 1}) {
		t.Fatalf("expected trailing word kept, got %+v", all)
	}
}

func TestWordsOrdering(t *testing.T) {
	var events []model.Event
	add := func(word string, times int) {
		for i := 0; i < times; i++ {
			for _, r := range word {
				events = append(events, at(0, model.KindInsert, string(r)))
			}
			events = append(events, at(0, model.KindKey, "space"))
		}
	}
	add("zz", 3)
	add("bb", 2)
	add("aa", 2)
	words := Words(events, 2)
	want := []model.WordCount{{Word: "zz", Count: 3}, {Word: "aa", Count: 2}, {Word: "bb", Count: 2}}
	if len(words) != len(want) {
		t.Fatalf("unexpected words %+v", words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("word %d: got %+v, want %+v", i, words[i], want[i])
		}
	}
}

func TestAnalyzeSingleEvent(t *testing.T) {
	report := Analyze([]model.Event{at(0, model.KindInsert, "a")}, DefaultAnalyzeConfig())
	if report.Summary.Insertions != 1 {
		t.Fatalf("expected counters to reflect the event")
	}
	if report.Summary.TotalMinutes != 0 || report.Summary.ActiveMinutes != 0 {
		t.Fatalf("expected zero durations, got %+v", report.Summary)
	}
	if len(report.Activity) != 0 || len(report.Series.Buckets) != 0 || len(report.Words) != 0 {
		t.Fatalf("expected empty derived tables, got %+v", report)
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg := NormalizeConfig(model.AnalyzeConfig{ActiveThreshold: -1})
	if cfg != DefaultAnalyzeConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestResampleRaisesTinyWidth(t *testing.T) {
	events := []model.Event{
		at(0, model.KindInsert, "a"),
		at(2*time.Hour, model.KindInsert, "b"),
	}
	series := Resample(events, time.Nanosecond)
	if series.Width < MinBucketWidth {
		t.Fatalf("expected width of at least %s, got %s", MinBucketWidth, series.Width)
	}
	if len(series.Buckets) > MaxBuckets {
		t.Fatalf("expected at most %d buckets, got %d", MaxBuckets, len(series.Buckets))
	}
	if got := series.Buckets[0].Insertions + series.Buckets[len(series.Buckets)-1].Insertions; got != 2 {
		t.Fatalf("expected both insertions kept, got %d", got)
	}
	if cfg := NormalizeConfig(model.AnalyzeConfig{BucketWidth: time.Millisecond}); cfg.BucketWidth != MinBucketWidth {
		t.Fatalf("expected NormalizeConfig to raise the width, got %s", cfg.BucketWidth)
	}
}

func TestResampleCapsWideSpan(t *testing.T) {
	events := []model.Event{
		at(0, model.KindInsert, "a"),
		at(time.Minute, model.KindDeleteRun, "3"),
		at(20*365*24*time.Hour, model.KindInsert, "b"),
	}
	series := Resample(events, DefaultBucketWidth)
	if len(series.Buckets) == 0 || len(series.Buckets) > MaxBuckets {
		t.Fatalf("expected 1..%d buckets, got %d", MaxBuckets, len(series.Buckets))
	}
	if series.Width%DefaultBucketWidth != 0 || series.Width <= DefaultBucketWidth {
		t.Fatalf("expected a wider multiple of %s, got %s", DefaultBucketWidth, series.Width)
	}
	ins, del := 0, 0
	for _, b := range series.Buckets {
		ins += b.Insertions
		del += b.Deletions
	}
	if ins != 2 || del != 3 {
		t.Fatalf("expected totals preserved, got ins=%d del=%d", ins, del)
	}
}

func TestInferHeartbeatInterval(t *testing.T) {
	events := []model.Event{
		at(0, model.KindHeartbeat, ""),
		at(10*time.Second, model.KindInsert, "a"),
		at(60*time.Second, model.KindHeartbeat, ""),
		at(120*time.Second, model.KindHeartbeat, ""),
		at(181*time.Second, model.KindHeartbeat, ""),
		at(200*time.Second, model.KindStop, ""),
	}
	got, ok := InferHeartbeatInterval(events)
	if !ok || got != time.Minute {
		t.Fatalf("expected 1m, got %s %v", got, ok)
	}
	if _, ok := InferHeartbeatInterval(heartbeatWindow(3)[:2]); ok {
		t.Fatalf("expected no estimate from a single heartbeat")
	}
}
