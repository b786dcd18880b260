// Package gateway is the HTTP and WebSocket surface of voxgate.
//
// REST handles admission (create session, inspect session, list voices);
// the WebSocket endpoint adapts an accepted connection into a
// [stream.Transport] and hands it to the worker pool. All streaming
// semantics live in internal/stream; this package only translates between
// HTTP and the pipeline's types.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/ratelimit"
	"github.com/MrWong99/voxgate/internal/session"
	"github.com/MrWong99/voxgate/internal/stream"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// Server holds the gateway's dependencies. Construct with [NewServer] and
// mount [Server.Routes] on an http.Server.
type Server struct {
	svc     *stream.Service
	queue   *stream.Queue
	limiter *ratelimit.Limiter
	metrics *observe.Metrics
	health  *health.Handler
}

// NewServer wires the HTTP surface to the streaming service.
func NewServer(svc *stream.Service, q *stream.Queue, l *ratelimit.Limiter, m *observe.Metrics, h *health.Handler) *Server {
	return &Server{
		svc:     svc,
		queue:   q,
		limiter: l,
		metrics: m,
		health:  h,
	}
}

// Routes returns the fully assembled handler. The WebSocket route bypasses
// the observability middleware because the connection hijack is
// incompatible with the status-recording response writer.
func (s *Server) Routes() http.Handler {
	rest := http.NewServeMux()
	rest.HandleFunc("POST /v1/tts/sessions", s.handleCreateSession)
	rest.HandleFunc("GET /v1/tts/sessions/{id}", s.handleGetSession)
	rest.HandleFunc("GET /v1/voices", s.handleListVoices)
	rest.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(rest)

	root := http.NewServeMux()
	root.HandleFunc("GET /v1/tts/stream/{id}", s.handleStream)
	root.Handle("/", observe.Middleware(s.metrics)(rest))
	return root
}

// createSessionRequest is the admission payload.
type createSessionRequest struct {
	Provider     string `json:"provider"`
	Voice        string `json:"voice"`
	Text         string `json:"text"`
	TargetFormat string `json:"target_format,omitempty"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
	Language     string `json:"language,omitempty"`
}

// createSessionResponse points the client at its audio stream.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
	WsURL     string `json:"ws_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if d := s.admit(r); !d.Allowed {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	sess, err := s.svc.CreateSession(r.Context(), stream.CreateRequest{
		Provider:     req.Provider,
		Voice:        req.Voice,
		Text:         req.Text,
		TargetFormat: req.TargetFormat,
		SampleRateHz: req.SampleRateHz,
		Language:     req.Language,
	})
	if err != nil {
		status, reason := mapCreateError(err)
		writeError(w, status, reason)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		WsURL:     wsScheme(r) + "://" + r.Host + "/v1/tts/stream/" + sess.ID,
	})
}

// mapCreateError translates service validation errors onto HTTP statuses.
func mapCreateError(err error) (int, string) {
	switch {
	case errors.Is(err, stream.ErrEmptyText):
		return http.StatusBadRequest, "empty_text"
	case errors.Is(err, stream.ErrBadFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, stream.ErrBadSampleRate):
		return http.StatusBadRequest, "unsupported_sample_rate"
	case errors.Is(err, stream.ErrVoiceNotOwned):
		return http.StatusBadRequest, "voice_not_owned"
	case errors.Is(err, tts.ErrUnknownProvider):
		return http.StatusNotFound, "unknown_provider"
	case errors.Is(err, tts.ErrUnknownVoice):
		return http.StatusNotFound, "unknown_voice"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// sessionView is the read model returned by GET /v1/tts/sessions/{id}.
type sessionView struct {
	SessionID     string     `json:"session_id"`
	Provider      string     `json:"provider"`
	Voice         string     `json:"voice"`
	Language      string     `json:"language,omitempty"`
	TargetFormat  string     `json:"target_format"`
	SampleRateHz  int        `json:"sample_rate_hz"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Store().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_session")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func viewOf(sess session.Session) sessionView {
	return sessionView{
		SessionID:     sess.ID,
		Provider:      sess.Provider,
		Voice:         sess.Voice,
		Language:      sess.Language,
		TargetFormat:  string(sess.TargetFormat),
		SampleRateHz:  sess.SampleRateHz,
		Status:        string(sess.Status),
		FailureReason: sess.FailureReason,
		CreatedAt:     sess.CreatedAt,
		StartedAt:     sess.StartedAt,
		FinishedAt:    sess.FinishedAt,
	}
}

// voiceView is one entry of the GET /v1/voices catalogue.
type voiceView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Language         string   `json:"language"`
	Provider         string   `json:"provider"`
	SampleRateHz     int      `json:"sample_rate_hz"`
	SupportedFormats []string `json:"supported_formats"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.svc.Providers().ListVoices(r.Context())
	if err != nil {
		slog.Error("voice catalogue unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "provider_error")
		return
	}

	// Every catalogue voice emits pcm16, so all transcoder targets apply.
	formats := make([]string, 0, len(audio.Formats()))
	for _, f := range audio.Formats() {
		formats = append(formats, string(f))
	}

	provider := r.URL.Query().Get("provider")
	language := r.URL.Query().Get("language")
	out := make([]voiceView, 0, len(voices))
	for _, v := range voices {
		if provider != "" && v.Provider != provider {
			continue
		}
		if language != "" && v.Language != language {
			continue
		}
		out = append(out, voiceView{
			ID:               v.ID,
			Name:             v.Name,
			Language:         v.Language,
			Provider:         v.Provider,
			SampleRateHz:     v.SampleRateHz,
			SupportedFormats: formats,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]voiceView{"voices": out})
}

// admit runs the request's origin through the rate limiter and refreshes
// the limiter gauges.
func (s *Server) admit(r *http.Request) ratelimit.Decision {
	d := s.limiter.Admit(originKey(r))
	ctx := r.Context()
	s.metrics.RateLimitMaxUsage.Record(ctx, s.limiter.MaxBucketUsage())
	s.metrics.RateLimitWindowRemaining.Record(ctx, s.limiter.MinWindowRemaining().Seconds())
	return d
}

// originKey derives the rate-limit bucket key from the peer address. The
// port is stripped so reconnects from the same host share a bucket.
func originKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "rate_limited")
}

// apiError is the uniform REST error body.
type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, apiError{Error: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// wsScheme picks ws or wss to match how the client reached us.
func wsScheme(r *http.Request) string {
	if r.TLS != nil {
		return "wss"
	}
	return "ws"
}
