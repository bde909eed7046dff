package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"discord-scraper/index"
)

// IndexReader is the read access to the sink the health surface needs.
type IndexReader interface {
	CountSince(serverName string, window time.Duration) (int64, error)
	Search(query string, limit int) ([]index.SearchHit, error)
}

var newDocs = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "discord_index_new_docs_number",
	Help: "Number of indexed messages over the trailing health-check window.",
}, []string{"guild"})

// Server exposes the liveness probe, the Prometheus metrics and a minimal
// search endpoint over the index. It only reads from the sink; the
// ingestion core does not depend on it.
type Server struct {
	index  IndexReader
	guild  string
	window time.Duration
	addr   string
	log    zerolog.Logger
}

func NewServer(idx IndexReader, guild string, window time.Duration, addr string, logger zerolog.Logger) *Server {
	return &Server{index: idx, guild: guild, window: window, addr: addr, log: logger}
}

// Start serves in a background goroutine. A listener failure is fatal: the
// process is expected to be restarted by an external supervisor rather than
// limp along unobservable.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health_check", s.handleHealthCheck)
	mux.HandleFunc("/search", s.handleSearch)
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		s.log.Info().Str("addr", s.addr).Msg("health server listening")
		if err := http.ListenAndServe(s.addr, mux); err != nil {
			s.log.Fatal().Err(err).Str("addr", s.addr).Msg("health server failed")
		}
	}()
}

// handleHealthCheck reports unhealthy when no documents landed inside the
// trailing window, which is the one externally visible symptom of a stalled
// pipeline.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	count, err := s.index.CountSince(s.guild, s.window)
	if err != nil {
		s.log.Error().Err(err).Msg("health-check query failed")
		http.Error(w, "index query failed", http.StatusInternalServerError)
		return
	}

	newDocs.WithLabelValues(s.guild).Set(float64(count))
	if count == 0 {
		http.Error(w, fmt.Sprintf("Error! %d documents found. Restart the scraper.", count), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "Ok, %d documents found", count)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	hits, err := s.index.Search(query, 50)
	if err != nil {
		s.log.Error().Err(err).Str("query", query).Msg("search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if hits == nil {
		hits = []index.SearchHit{}
	}
	json.NewEncoder(w).Encode(hits)
}
