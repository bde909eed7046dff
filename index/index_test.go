package index

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"discord-scraper/models"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "messages.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func testRecord(id, channelID, text string, ts time.Time) models.Record {
	return models.Record{
		MessageID:      id,
		ServerName:     "Trading Floor",
		SenderUsername: "alice",
		ChannelID:      channelID,
		ChannelTitle:   "general",
		Text:           text,
		CleanText:      text,
		Timestamp:      ts,
		ComputedAt:     ts,
	}
}

func rowCount(t *testing.T, ix *Index) int {
	t.Helper()
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestUpsertOverwritesByIdentity(t *testing.T) {
	ix := openTestIndex(t)
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	if err := ix.Upsert(testRecord("1", "100", "buying calls tomorrow", ts)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ix.Upsert(testRecord("1", "100", "selling puts instead", ts)); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	if n := rowCount(t, ix); n != 1 {
		t.Fatalf("rows = %d, want 1 after re-upsert", n)
	}

	// The full-text index must follow the overwrite.
	hits, err := ix.Search("calls", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale text still searchable: %v", hits)
	}
	hits, err = ix.Search("selling", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageID != "1" {
		t.Fatalf("hits = %v, want the rewritten message", hits)
	}
	if !hits[0].Timestamp.Equal(ts) {
		t.Errorf("hit timestamp = %v, want %v", hits[0].Timestamp, ts)
	}
}

func TestUpsertBatch(t *testing.T) {
	ix := openTestIndex(t)
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	recs := []models.Record{
		testRecord("1", "100", "first", ts),
		testRecord("2", "100", "second", ts.Add(time.Minute)),
		testRecord("3", "100", "third", ts.Add(2*time.Minute)),
	}
	if err := ix.UpsertBatch(recs); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if n := rowCount(t, ix); n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
	if err := ix.UpsertBatch(nil); err != nil {
		t.Fatalf("empty UpsertBatch: %v", err)
	}
}

func TestLatestTimestamp(t *testing.T) {
	ix := openTestIndex(t)
	older := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 11, 30, 0, 123456789, time.UTC)

	if err := ix.UpsertBatch([]models.Record{
		testRecord("1", "100", "a", older),
		testRecord("2", "100", "b", newer),
		testRecord("3", "200", "c", newer.Add(time.Hour)),
	}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	got, err := ix.LatestTimestamp("100")
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !got.Equal(newer) {
		t.Errorf("LatestTimestamp = %v, want %v", got, newer)
	}

	if _, err := ix.LatestTimestamp("999"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("empty channel error = %v, want sql.ErrNoRows", err)
	}
}

func TestLatestTimestampCorrupt(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Upsert(testRecord("1", "100", "a", time.Now())); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := ix.db.Exec(`UPDATE messages SET timestamp = 'garbage' WHERE message_id = '1'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := ix.LatestTimestamp("100"); !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("error = %v, want ErrBadTimestamp", err)
	}
}

func TestCountSince(t *testing.T) {
	ix := openTestIndex(t)
	now := time.Now().UTC()

	if err := ix.UpsertBatch([]models.Record{
		testRecord("1", "100", "recent", now.Add(-10*time.Minute)),
		testRecord("2", "100", "stale", now.Add(-48*time.Hour)),
	}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	count, err := ix.CountSince("Trading Floor", time.Hour)
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != 1 {
		t.Errorf("CountSince = %d, want 1", count)
	}

	count, err = ix.CountSince("Other Server", time.Hour)
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != 0 {
		t.Errorf("CountSince for unknown server = %d, want 0", count)
	}
}

func TestSearchLimit(t *testing.T) {
	ix := openTestIndex(t)
	ts := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := testRecord(string(rune('a'+i)), "100", "rocket to the moon", ts)
		if err := ix.Upsert(rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	hits, err := ix.Search("rocket", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("hits = %d, want limit of 3", len(hits))
	}
}
