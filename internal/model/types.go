// Package model defines shared data structures.
package model

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a logged event represents.
type Kind string

// Event kinds as they appear in the capture log.
const (
	KindInsert    Kind = "INS"
	KindKey       Kind = "KEY"
	KindCommand   Kind = "CMD"
	KindDeleteRun Kind = "DEL"
	KindHeartbeat Kind = "HEARTBEAT"
	KindStop      Kind = "STOP"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindKey, KindCommand, KindDeleteRun, KindHeartbeat, KindStop:
		return true
	default:
		return false
	}
}

// Marker reports whether k never carries a payload.
func (k Kind) Marker() bool {
	return k == KindHeartbeat || k == KindStop
}

// Event is one timestamped occurrence in the capture log.
type Event struct {
	Timestamp time.Time
	Kind      Kind
	Payload   string
}

// RunLength returns the number of deletions a DEL event stands for.
func (e Event) RunLength() int {
	if e.Kind != KindDeleteRun {
		return 0
	}
	n, err := strconv.Atoi(e.Payload)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// CaptureConfig defines capture session settings.
type CaptureConfig struct {
	Name              string
	Dir               string
	HeartbeatInterval time.Duration
	StopCode          string
	Hotkeys           map[string]string
	Analyze           bool
}

// AnalyzeConfig defines replay and metric settings.
type AnalyzeConfig struct {
	BucketWidth       time.Duration
	HeartbeatInterval time.Duration
	ActiveThreshold   int
	MinWordCount      int
}

// SessionSummary holds session-level counters.
type SessionSummary struct {
	TotalMinutes  float64
	ActiveMinutes float64
	Insertions    int
	Deletions     int
	Commands      map[string]int
}

// Summary field keys shared with report consumers.
const (
	FieldTotalDuration = "total_duration_min"
	FieldActiveTime    = "active_time_min"
	FieldInsertions    = "insertions"
	FieldDeletions     = "deletions"
)

// Fields flattens the summary into the report handoff mapping.
func (s SessionSummary) Fields() map[string]float64 {
	out := map[string]float64{
		FieldTotalDuration: Round2(s.TotalMinutes),
		FieldActiveTime:    Round2(s.ActiveMinutes),
		FieldInsertions:    float64(s.Insertions),
		FieldDeletions:     float64(s.Deletions),
	}
	for name, count := range s.Commands {
		out[strings.ToLower(name)] += float64(count)
	}
	return out
}

// FieldNames returns the Fields keys in display order.
func (s SessionSummary) FieldNames() []string {
	names := []string{FieldTotalDuration, FieldActiveTime, FieldInsertions, FieldDeletions}
	seen := map[string]struct{}{}
	cmds := make([]string, 0, len(s.Commands))
	for name := range s.Commands {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cmds = append(cmds, key)
	}
	sort.Strings(cmds)
	return append(names, cmds...)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ActivityWindow is the span between two consecutive heartbeats.
type ActivityWindow struct {
	Start  time.Time
	End    time.Time
	Events int
	Active bool
}

// Bucket aggregates events within one resampling interval.
type Bucket struct {
	Start      time.Time
	Insertions int
	Deletions  int
	Actions    int
	Rate       float64
}

// Series is a dense fixed-width bucket sequence.
type Series struct {
	Width   time.Duration
	Buckets []Bucket
}

// WordCount is one row of the word frequency table.
type WordCount struct {
	Word  string
	Count int
}

// Report bundles everything derived from one capture log.
type Report struct {
	ID        string
	Name      string
	LogPath   string
	StartedAt time.Time
	EndedAt   time.Time
	Summary   SessionSummary
	Activity  []ActivityWindow
	Series    Series
	Words     []WordCount
}

// HistoryFilter selects stored session reports.
type HistoryFilter struct {
	Name  string
	Since *time.Time
	Last  int
}

// StoredSession summarizes a persisted report.
type StoredSession struct {
	ID        string
	Name      string
	LogPath   string
	StartedAt time.Time
	EndedAt   time.Time
	CreatedAt time.Time
	Summary   SessionSummary
}
