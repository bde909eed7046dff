package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"discord-scraper/index"
)

type fakeIndex struct {
	count     int64
	countErr  error
	hits      []index.SearchHit
	searchErr error
	lastQuery string
}

func (f *fakeIndex) CountSince(string, time.Duration) (int64, error) {
	return f.count, f.countErr
}

func (f *fakeIndex) Search(query string, _ int) ([]index.SearchHit, error) {
	f.lastQuery = query
	return f.hits, f.searchErr
}

func newTestServer(idx *fakeIndex) *Server {
	return NewServer(idx, "Trading Floor", 300*time.Second, ":0", zerolog.Nop())
}

func TestHealthCheckHealthy(t *testing.T) {
	s := newTestServer(&fakeIndex{count: 42})
	rec := httptest.NewRecorder()

	s.handleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health_check", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "42 documents") {
		t.Errorf("body = %q, want document count", rec.Body.String())
	}
}

func TestHealthCheckStalledPipeline(t *testing.T) {
	s := newTestServer(&fakeIndex{count: 0})
	rec := httptest.NewRecorder()

	s.handleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health_check", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 on zero documents", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Restart the scraper") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHealthCheckQueryFailure(t *testing.T) {
	s := newTestServer(&fakeIndex{countErr: errors.New("index offline")})
	rec := httptest.NewRecorder()

	s.handleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health_check", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	s := newTestServer(&fakeIndex{})
	rec := httptest.NewRecorder()

	s.handleSearch(rec, httptest.NewRequest(http.MethodGet, "/search", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchReturnsHits(t *testing.T) {
	idx := &fakeIndex{hits: []index.SearchHit{
		{MessageID: "1", ChannelID: "100", Text: "to the moon"},
	}}
	s := newTestServer(idx)
	rec := httptest.NewRecorder()

	s.handleSearch(rec, httptest.NewRequest(http.MethodGet, "/search?q=moon", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if idx.lastQuery != "moon" {
		t.Errorf("query passed to index = %q", idx.lastQuery)
	}
	var hits []index.SearchHit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageID != "1" {
		t.Errorf("hits = %v", hits)
	}
}

func TestSearchEmptyResultIsJSONArray(t *testing.T) {
	s := newTestServer(&fakeIndex{})
	rec := httptest.NewRecorder()

	s.handleSearch(rec, httptest.NewRequest(http.MethodGet, "/search?q=nothing", nil))

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}
