// Package web serves the decision dashboard, its streams and the operator API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/events"
	"github.com/vadiminshakov/fusiontrader/internal/metrics"
	"github.com/vadiminshakov/fusiontrader/internal/storage/recorder"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
	wsWriteTimeout      = 5 * time.Second
	defaultRecentLimit  = 50
	maxRecentLimit      = 500
	maxOverrideBody     = 1 << 20
)

type journalReader interface {
	EventsAfter(index uint64) ([]domain.DecisionEventRecord, error)
}

// Overrider applies a runtime configuration patch and returns the journaled event.
type Overrider interface {
	ApplyOverride(ctx context.Context, patch config.Patch) (domain.OverrideEvent, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the HTML UI, an SSE journal stream, a websocket live feed and a JSON API.
// Every collaborator is optional; endpoints without one answer 503.
type Server struct {
	Addr      string
	Journal   journalReader
	Recorder  recorder.Recorder
	Events    *events.Broadcaster
	Overrider Overrider
	Logger    *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, journal journalReader, rec recorder.Recorder, bus *events.Broadcaster, ov Overrider, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Addr: addr, Journal: journal, Recorder: rec, Events: bus, Overrider: ov, Logger: l}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /decisions/stream", s.handleJournalStream)
	mux.HandleFunc("GET /ws", s.handleLive)
	mux.HandleFunc("GET /api/decisions", s.handleRecent)
	mux.HandleFunc("GET /api/decisions/counts", s.handleCounts)
	mux.HandleFunc("POST /api/override", s.handleOverride)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// handleJournalStream replays the journal from ?after=<index> and then polls it.
func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		unavailable(w, "decision journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastIndex, err := queryUint(r, "after", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(journalPollInterval)
	defer pollTicker.Stop()

	sendEvents := func() error {
		records, err := s.Journal.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Event)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: %s\n", record.Type)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastIndex = record.Index
		}
		if len(records) > 0 {
			flusher.Flush()
		}
		return nil
	}

	if err := sendEvents(); err != nil {
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		s.Logger.Error("journal stream initial load", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEvents(); err != nil {
				s.Logger.Warn("journal stream poll", zap.Error(err))
			}
		}
	}
}

// handleLive pushes every broadcast event to a websocket client.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		unavailable(w, "live events not available")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.Events.Subscribe()
	defer s.Events.Unsubscribe(sub)

	// the reader only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case e, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				s.Logger.Debug("websocket write", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.Recorder == nil {
		unavailable(w, "decision history not available")
		return
	}
	limit, err := queryUint(r, "limit", defaultRecentLimit)
	if err != nil || limit == 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.Recorder.Recent(r.URL.Query().Get("symbol"), int(limit))
	if err != nil {
		s.Logger.Error("load recent decisions", zap.Error(err))
		http.Error(w, "failed to load decisions", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []recorder.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if s.Recorder == nil {
		unavailable(w, "decision history not available")
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	counts, err := s.Recorder.Counts(since)
	if err != nil {
		s.Logger.Error("count decisions", zap.Error(err))
		http.Error(w, "failed to count decisions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	if s.Overrider == nil {
		unavailable(w, "overrides not available")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxOverrideBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var patch config.Patch
	if err := json.Unmarshal(raw, &patch); err != nil || len(patch) == 0 {
		http.Error(w, "body must be a non-empty JSON object", http.StatusBadRequest)
		return
	}

	event, err := s.Overrider.ApplyOverride(r.Context(), patch)
	if err != nil {
		s.Logger.Warn("override rejected", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unavailable(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprint(w, msg)
}
