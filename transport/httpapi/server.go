// Package httpapi exposes the background process to other processes over
// HTTP: request/response messages, the out-of-band capture hooks and a
// stream of broadcasts.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/dispatch"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/lifecycle"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	HealthPath     = "/v1/health"
	EventsPath     = "/v1/events"
	MenuClickPath  = "/v1/context-menu"
	PageLoadedPath = "/v1/page-loaded"

	maxBodyBytes   = 32 << 20
	eventBuffer    = 32
	keepAliveEvery = 25 * time.Second
)

// Controller is the background process the server fronts.
type Controller interface {
	Handle(ctx context.Context, req drippler.Request) drippler.Response
	HandleContextMenuClick(ctx context.Context, click lifecycle.MenuClick) error
	NotifyPageLoaded(ctx context.Context, url string)
}

var _ Controller = (*lifecycle.Controller)(nil)

// Server routes HTTP requests to a Controller.
type Server struct {
	ctl Controller
	bus *events.Bus
	log zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log.With().Str("component", "httpapi").Logger()
	}
}

// WithBus enables the broadcast stream.
func WithBus(bus *events.Bus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

// New creates a Server.
func New(ctl Controller, opts ...Option) *Server {
	s := &Server{ctl: ctl, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanics)

	r.HandleFunc(dispatch.MessagesPath, s.messages).Methods(http.MethodPost).Name("messages")
	r.HandleFunc(MenuClickPath, s.menuClick).Methods(http.MethodPost).Name("context-menu")
	r.HandleFunc(PageLoadedPath, s.pageLoaded).Methods(http.MethodPost).Name("page-loaded")
	r.HandleFunc(HealthPath, s.health).Methods(http.MethodGet).Name("health")
	if s.bus != nil {
		r.HandleFunc(EventsPath, s.events).Methods(http.MethodGet).Name("events")
	}
	return r
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	var req drippler.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, drippler.Fail(drippler.Wrap(drippler.KindValidation, "decode request", err)))
		return
	}
	s.log.Debug().Str("action", req.Action).Str("remote", r.RemoteAddr).Msg("message received")
	writeJSON(w, http.StatusOK, s.ctl.Handle(r.Context(), req))
}

func (s *Server) menuClick(w http.ResponseWriter, r *http.Request) {
	var click lifecycle.MenuClick
	if err := decodeBody(w, r, &click); err != nil {
		writeJSON(w, http.StatusBadRequest, drippler.Fail(drippler.Wrap(drippler.KindValidation, "decode menu click", err)))
		return
	}
	if err := s.ctl.HandleContextMenuClick(r.Context(), click); err != nil {
		writeJSON(w, http.StatusOK, drippler.Fail(err))
		return
	}
	writeJSON(w, http.StatusOK, drippler.OK(nil))
}

type pageLoaded struct {
	URL string `json:"url"`
}

func (s *Server) pageLoaded(w http.ResponseWriter, r *http.Request) {
	var p pageLoaded
	if err := decodeBody(w, r, &p); err != nil || p.URL == "" {
		writeJSON(w, http.StatusBadRequest, drippler.Fail(drippler.E(drippler.KindValidation, "url is required")))
		return
	}
	s.ctl.NotifyPageLoaded(r.Context(), p.URL)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// events streams broadcasts as server-sent events. A target query parameter
// limits the stream to messages for that page plus untargeted ones.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	target := r.URL.Query().Get("target")

	msgs, unsubscribe := s.bus.SubscribeChan(eventBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case m := <-msgs:
			if m.Target != "" && m.Target != target {
				continue
			}
			b, err := json.Marshal(m)
			if err != nil {
				s.log.Warn().Err(err).Str("action", m.Action).Msg("failed to encode broadcast")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Action, b)
			flusher.Flush()
		}
	}
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, drippler.Fail(drippler.E(drippler.KindUnknown, "Unknown error occurred")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
