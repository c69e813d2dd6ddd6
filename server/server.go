// Package server exposes an sdk.System over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/sdk"
	"github.com/highfives-app/highfives/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

const maxBodySize = 64 * 1024

type Server struct {
	System *sdk.System

	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer

	// CORSOrigins defaults to allowing any origin.
	CORSOrigins []string

	Logger *zerolog.Logger

	serveMux *http.ServeMux
}

func New(sys *sdk.System) *Server {
	s := &Server{
		System:   sys,
		Logger:   &nopLogger,
		serveMux: &http.ServeMux{},
	}

	s.serveMux.HandleFunc("POST /api/resolve", s.handleResolve)
	s.serveMux.HandleFunc("POST /api/highfives", s.handleSubmit)
	s.serveMux.HandleFunc("GET /api/highfives", s.handleList)
	s.serveMux.HandleFunc("GET /api/highfives/{id}", s.handleGet)
	s.serveMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	s.serveMux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.Gatherer == nil {
			http.NotFound(w, r)
			return
		}
		promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})

	return s
}

// Router returns the mux, to which more handlers can be added.
func (s *Server) Router() *http.ServeMux { return s.serveMux }

// Handler wraps the mux with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	}).Handler(s.serveMux)
}

// Start listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger().Info().Str("addr", addr).Msg("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type resolveRequest struct {
	Recipient  string `json:"recipient"`
	AmountMsat int64  `json:"amount_msat,omitempty"`
}

type instructionResponse struct {
	highfives.PaymentInstruction
	URI string `json:"uri"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}

	var pi highfives.PaymentInstruction
	var err error
	if req.AmountMsat != 0 {
		pi, err = s.System.ResolvePaymentAmount(r.Context(), req.Recipient, req.AmountMsat)
	} else {
		pi, err = s.System.ResolvePayment(r.Context(), req.Recipient)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instructionResponse{PaymentInstruction: pi, URI: pi.URI()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req sdk.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}

	ack, err := s.System.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ack)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{Recipient: q.Get("recipient")}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit", Kind: "invalid-request"})
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("until"); v != "" {
		until, err := parseTime(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid until", Kind: "invalid-request"})
			return
		}
		filter.Until = until
	}

	acks := s.System.List(r.Context(), filter)
	if acks == nil {
		acks = []highfives.Acknowledgment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"highfives": acks})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ack, err := s.System.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// parseTime takes unix seconds or RFC 3339.
func parseTime(v string) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   err.Error(),
			Kind:    "invalid-request",
			Message: "the request body must be a JSON object",
		})
		return false
	}
	return true
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if kind := highfives.KindOf(err); kind != 0 {
		writeJSON(w, statusFor(kind), errorResponse{
			Error:   err.Error(),
			Kind:    kind.String(),
			Message: kind.UserMessage(),
		})
		return
	}

	switch {
	case errors.Is(err, sdk.ErrMissingRecipient), errors.Is(err, sdk.ErrMissingReason), errors.Is(err, sdk.ErrReasonTooLong):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid-request", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not-found"})
	default:
		s.logger().Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
	}
}

func statusFor(kind highfives.ErrorKind) int {
	switch kind {
	case highfives.NoPaymentMethodConfigured:
		return http.StatusNotFound
	case highfives.UpstreamUnavailable:
		return http.StatusServiceUnavailable
	case highfives.UpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}
