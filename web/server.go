package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"kfsim-go/sim"
)

// MetricsWriter dumps a metrics registry as JSON.
type MetricsWriter interface {
	WriteJSON(w io.Writer)
}

type Server struct {
	Hub     *Hub
	ctrl    Controller
	metrics MetricsWriter
}

func NewServer(ctrl Controller, hub *Hub, m MetricsWriter) *Server {
	if hub == nil {
		hub = NewHub(nil)
	}
	return &Server{
		Hub:     hub,
		ctrl:    ctrl,
		metrics: m,
	}
}

// Publish broadcasts s to all websocket clients. It is meant to be registered
// as a runner subscriber.
func (s *Server) Publish(snap sim.Snapshot) {
	b, err := encodeSnapshot(snap)
	if err != nil {
		log.Printf("encode snapshot: %v", err)
		return
	}
	s.Hub.Broadcast(b)
}

// Handler builds the HTTP mux. distDir, when set, is served at /.
func (s *Server) Handler(distDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, s.ctrl, w, r)
	})
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.Current())
	})
	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := Decode(raw)
		if err == nil {
			err = Dispatch(s.ctrl, msg)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Outbound{Type: MsgError, Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	if s.metrics != nil {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			s.metrics.WriteJSON(w)
		})
	}

	if distDir != "" {
		fs := http.FileServer(http.Dir(distDir))
		mux.Handle("/", fs)
	}
	return mux
}

// Start serves HTTP on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int, distDir string) error {
	go s.Hub.Run(ctx)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(distDir),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP Server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// writeJSON encodes v before touching the response so an encode failure
// becomes a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warnf("write json: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(b, '\n'))
}
