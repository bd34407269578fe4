// Package stats turns a replayed capture log into session metrics and renders them.
package stats

import (
	"sort"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

// Analysis defaults.
const (
	DefaultBucketWidth       = 10 * time.Minute
	DefaultHeartbeatInterval = 120 * time.Second
	DefaultActiveThreshold   = 6
	DefaultMinWordCount      = 2
)

// Resampling limits. Narrower widths are raised to MinBucketWidth, and a
// span that would need more than MaxBuckets buckets is resampled with a
// wider multiple of the requested width.
const (
	MinBucketWidth = time.Second
	MaxBuckets     = 10000
)

const wordSeparator = "space"

// DefaultAnalyzeConfig returns the standard analysis settings.
func DefaultAnalyzeConfig() model.AnalyzeConfig {
	return model.AnalyzeConfig{
		BucketWidth:       DefaultBucketWidth,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ActiveThreshold:   DefaultActiveThreshold,
		MinWordCount:      DefaultMinWordCount,
	}
}

// NormalizeConfig fills zero or negative settings with defaults.
func NormalizeConfig(cfg model.AnalyzeConfig) model.AnalyzeConfig {
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = DefaultBucketWidth
	}
	if cfg.BucketWidth < MinBucketWidth {
		cfg.BucketWidth = MinBucketWidth
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ActiveThreshold < 0 {
		cfg.ActiveThreshold = DefaultActiveThreshold
	}
	if cfg.MinWordCount <= 0 {
		cfg.MinWordCount = DefaultMinWordCount
	}
	return cfg
}

// Analyze derives the full report for one event sequence.
func Analyze(events []model.Event, cfg model.AnalyzeConfig) model.Report {
	cfg = NormalizeConfig(cfg)
	report := model.Report{
		Summary:  Summarize(events, cfg),
		Activity: ClassifyActivity(events, cfg),
		Series:   Resample(events, cfg.BucketWidth),
		Words:    Words(events, cfg.MinWordCount),
	}
	report.StartedAt, report.EndedAt = span(events)
	if len(events) < 2 {
		report.Words = nil
	}
	return report
}

// Summarize computes session totals. Deletions are the sum of DEL run lengths.
func Summarize(events []model.Event, cfg model.AnalyzeConfig) model.SessionSummary {
	cfg = NormalizeConfig(cfg)
	summary := model.SessionSummary{Commands: map[string]int{}}
	for _, ev := range events {
		switch ev.Kind {
		case model.KindInsert:
			summary.Insertions++
		case model.KindDeleteRun:
			summary.Deletions += ev.RunLength()
		case model.KindCommand:
			summary.Commands[ev.Payload]++
		}
	}
	if len(events) < 2 {
		return summary
	}
	first, last := span(events)
	summary.TotalMinutes = last.Sub(first).Minutes()

	active := 0
	for _, w := range ClassifyActivity(events, cfg) {
		if w.Active {
			active++
		}
	}
	summary.ActiveMinutes = float64(active) * cfg.HeartbeatInterval.Minutes()
	return summary
}

// ClassifyActivity splits the session at heartbeats. A window is active when
// the number of non-heartbeat events strictly between its bounds exceeds the threshold.
func ClassifyActivity(events []model.Event, cfg model.AnalyzeConfig) []model.ActivityWindow {
	cfg = NormalizeConfig(cfg)
	if len(events) < 2 {
		return nil
	}
	var beats, others []time.Time
	for _, ev := range events {
		if ev.Kind == model.KindHeartbeat {
			beats = append(beats, ev.Timestamp)
			continue
		}
		others = append(others, ev.Timestamp)
	}
	if len(beats) < 2 {
		return nil
	}
	sortTimes(beats)
	sortTimes(others)

	windows := make([]model.ActivityWindow, 0, len(beats)-1)
	for i := 0; i+1 < len(beats); i++ {
		start, end := beats[i], beats[i+1]
		lo := sort.Search(len(others), func(j int) bool { return others[j].After(start) })
		hi := sort.Search(len(others), func(j int) bool { return !others[j].Before(end) })
		count := 0
		if hi > lo {
			count = hi - lo
		}
		windows = append(windows, model.ActivityWindow{
			Start:  start,
			End:    end,
			Events: count,
			Active: count > cfg.ActiveThreshold,
		})
	}
	return windows
}

// InferHeartbeatInterval estimates the capture's heartbeat interval as the
// median gap between consecutive heartbeats, rounded to the second. It
// reports false when the log holds fewer than two heartbeats.
func InferHeartbeatInterval(events []model.Event) (time.Duration, bool) {
	var beats []time.Time
	for _, ev := range events {
		if ev.Kind == model.KindHeartbeat {
			beats = append(beats, ev.Timestamp)
		}
	}
	if len(beats) < 2 {
		return 0, false
	}
	sortTimes(beats)
	gaps := make([]time.Duration, 0, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		gaps = append(gaps, beats[i].Sub(beats[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + median) / 2
	}
	median = median.Round(time.Second)
	if median <= 0 {
		return 0, false
	}
	return median, true
}

// Resample buckets events into fixed-width intervals aligned to the first
// event. Every bucket up to the last event is present, zero-filled when empty.
// The returned Series.Width is the width actually used.
func Resample(events []model.Event, width time.Duration) model.Series {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	width = max(width, MinBucketWidth)
	if len(events) < 2 {
		return model.Series{Width: width}
	}
	origin, last := span(events)
	width = fitWidth(last.Sub(origin), width)
	series := model.Series{Width: width}
	count := int(last.Sub(origin)/width) + 1
	buckets := make([]model.Bucket, count)
	for i := range buckets {
		buckets[i].Start = origin.Add(time.Duration(i) * width)
	}
	for _, ev := range events {
		idx := 0
		if ev.Timestamp.After(origin) {
			idx = int(ev.Timestamp.Sub(origin) / width)
		}
		if idx >= count {
			idx = count - 1
		}
		b := &buckets[idx]
		switch ev.Kind {
		case model.KindInsert:
			b.Insertions++
		case model.KindDeleteRun:
			b.Deletions += ev.RunLength()
		}
		if ev.Kind != model.KindHeartbeat {
			b.Actions++
		}
	}
	minutes := width.Minutes()
	for i := range buckets {
		buckets[i].Rate = float64(buckets[i].Insertions) / minutes
	}
	series.Buckets = buckets
	return series
}

// fitWidth widens width by a whole factor until elapsed fits in MaxBuckets buckets.
func fitWidth(elapsed, width time.Duration) time.Duration {
	need := int64(elapsed/width) + 1
	if need <= MaxBuckets {
		return width
	}
	factor := (need + MaxBuckets - 1) / MaxBuckets
	for int64(elapsed/(width*time.Duration(factor)))+1 > MaxBuckets {
		factor++
	}
	return width * time.Duration(factor)
}

// Words reconstructs typed words from insertions; a space keystroke ends a
// word and other keys are ignored. Only words seen at least minCount times are kept.
func Words(events []model.Event, minCount int) []model.WordCount {
	if minCount <= 0 {
		minCount = DefaultMinWordCount
	}
	counts := map[string]int{}
	var current []byte
	closeWord := func() {
		if len(current) > 0 {
			counts[string(current)]++
			current = current[:0]
		}
	}
	for _, ev := range events {
		switch ev.Kind {
		case model.KindInsert:
			current = append(current, ev.Payload...)
		case model.KindKey:
			if ev.Payload == wordSeparator {
				closeWord()
			}
		}
	}
	closeWord()

	out := make([]model.WordCount, 0, len(counts))
	for word, n := range counts {
		if n < minCount {
			continue
		}
		out = append(out, model.WordCount{Word: word, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Word < out[j].Word
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func span(events []model.Event) (time.Time, time.Time) {
	if len(events) == 0 {
		return time.Time{}, time.Time{}
	}
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return first, last
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
