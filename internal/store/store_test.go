package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "keytrace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st
}

func sampleReport(name string, start time.Time) model.Report {
	return model.Report{
		Name:      name,
		LogPath:   "/tmp/" + name + ".log",
		StartedAt: start,
		EndedAt:   start.Add(25 * time.Minute),
		Summary: model.SessionSummary{
			TotalMinutes:  25,
			ActiveMinutes: 6,
			Insertions:    120,
			Deletions:     14,
			Commands:      map[string]int{"COPY": 2, "PASTE": 1},
		},
		Activity: []model.ActivityWindow{
			{Start: start, End: start.Add(2 * time.Minute), Events: 40, Active: true},
			{Start: start.Add(2 * time.Minute), End: start.Add(4 * time.Minute), Events: 1},
		},
		Series: model.Series{
			Width: 10 * time.Minute,
			Buckets: []model.Bucket{
				{Start: start, Insertions: 100, Deletions: 10, Actions: 115, Rate: 10},
				{Start: start.Add(10 * time.Minute), Insertions: 0, Deletions: 0},
				{Start: start.Add(20 * time.Minute), Insertions: 20, Deletions: 4, Actions: 25, Rate: 2},
			},
		},
		Words: []model.WordCount{{Word: "the", Count: 5}, {Word: "hi", Count: 2}},
	}
}

func TestInsertAndGetReport(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 14, 9, 0, 0, 123456000, time.UTC)

	id, err := st.InsertReport(ctx, sampleReport("client_part1", start))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	got, err := st.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "client_part1" || !got.StartedAt.Equal(start) {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.Summary.Insertions != 120 || got.Summary.Deletions != 14 || got.Summary.Commands["COPY"] != 2 {
		t.Fatalf("unexpected summary %+v", got.Summary)
	}
	if got.Series.Width != 10*time.Minute || len(got.Series.Buckets) != 3 {
		t.Fatalf("unexpected series %+v", got.Series)
	}
	if !got.Series.Buckets[1].Start.Equal(start.Add(10 * time.Minute)) {
		t.Fatalf("bucket order not preserved")
	}
	if len(got.Activity) != 2 || !got.Activity[0].Active || got.Activity[1].Active {
		t.Fatalf("unexpected activity %+v", got.Activity)
	}
	if len(got.Words) != 2 || got.Words[0].Word != "the" {
		t.Fatalf("unexpected words %+v", got.Words)
	}
}

func TestListSessionsFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"acme_part1", "acme_part2", "other_part1"} {
		if _, err := st.InsertReport(ctx, sampleReport(name, base.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	all, err := st.ListSessions(ctx, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Name != "acme_part1" || all[2].Name != "other_part1" {
		t.Fatalf("unexpected order %+v", all)
	}
	if all[0].Summary.Commands["PASTE"] != 1 {
		t.Fatalf("expected commands loaded, got %+v", all[0].Summary.Commands)
	}

	acme, err := st.ListSessions(ctx, model.HistoryFilter{Name: "acme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(acme) != 2 {
		t.Fatalf("expected 2 acme sessions, got %d", len(acme))
	}

	since := base.Add(24 * time.Hour)
	recent, err := st.ListSessions(ctx, model.HistoryFilter{Since: &since})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].Name != "acme_part2" {
		t.Fatalf("unexpected since filter result %+v", recent)
	}

	last, err := st.ListSessions(ctx, model.HistoryFilter{Last: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(last) != 1 || last[0].Name != "other_part1" {
		t.Fatalf("unexpected last filter result %+v", last)
	}

	rates, err := st.ListRates(ctx, []string{all[0].ID})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if got := rates[all[0].ID]; len(got) != 3 || got[0] != 10 || got[2] != 2 {
		t.Fatalf("unexpected rates %v", got)
	}
}

func TestDeleteSession(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, err := st.InsertReport(ctx, sampleReport("gone", time.Now()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetReport(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteSession(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	rates, err := st.ListRates(ctx, []string{id})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected bucket rows removed")
	}
}

func TestInsertReportReplacesSameLog(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	first, err := st.InsertReport(ctx, sampleReport("client_part1", start))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	again := sampleReport("client_part1", start)
	again.Summary.Insertions = 99
	again.Summary.Commands = map[string]int{"CUT": 1}
	again.Words = nil
	second, err := st.InsertReport(ctx, again)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if second != first {
		t.Fatalf("expected id %s to be kept, got %s", first, second)
	}

	all, err := st.ListSessions(ctx, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one session, got %d", len(all))
	}
	got, err := st.GetReport(ctx, first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Summary.Insertions != 99 || len(got.Words) != 0 {
		t.Fatalf("expected replaced report, got %+v", got.Summary)
	}
	if len(got.Summary.Commands) != 1 || got.Summary.Commands["CUT"] != 1 {
		t.Fatalf("expected old command rows removed, got %v", got.Summary.Commands)
	}

	other := sampleReport("client_part2", start.Add(time.Hour))
	if _, err := st.InsertReport(ctx, other); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if all, _ = st.ListSessions(ctx, model.HistoryFilter{}); len(all) != 2 {
		t.Fatalf("expected two sessions, got %d", len(all))
	}
}
