package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/internal/session"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// Validation errors surfaced by [Service.CreateSession]. The gateway maps
// these onto HTTP statuses.
var (
	// ErrEmptyText rejects requests whose text is empty after trimming.
	ErrEmptyText = errors.New("stream: text must not be empty")

	// ErrBadSampleRate rejects sample rates outside (0, 192000] or rates
	// the target codec cannot produce.
	ErrBadSampleRate = errors.New("stream: unsupported sample rate")

	// ErrBadFormat rejects unknown target formats.
	ErrBadFormat = errors.New("stream: unsupported target format")

	// ErrVoiceNotOwned rejects voices that exist but belong to a different
	// provider. Only enforced when strict voice ownership is enabled.
	ErrVoiceNotOwned = errors.New("stream: voice not owned by provider")
)

// maxSampleRateHz bounds client-requested output rates.
const maxSampleRateHz = 192000

// Config holds the pipeline tuning knobs.
type Config struct {
	// PullTimeout bounds each "pull next chunk" operation. Default: 10s.
	PullTimeout time.Duration

	// MaxAttempts is the total number of synthesis attempts while no audio
	// has been sent yet. Default: 3.
	MaxAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	// Default: 200ms.
	BackoffBase time.Duration

	// StrictVoiceOwnership makes CreateSession reject voices owned by a
	// different provider than the one requested.
	StrictVoiceOwnership bool

	// FFmpegPath overrides the ffmpeg binary used for mp3 transcoding.
	FFmpegPath string
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.PullTimeout <= 0 {
		c.PullTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	return c
}

// CreateRequest is the admission payload for a new session.
type CreateRequest struct {
	Provider     string
	Voice        string
	Text         string
	TargetFormat string
	SampleRateHz int
	Language     string
}

// Service owns session creation and the end-to-end streaming driver. One
// instance serves the whole process; per-session state lives on the stack
// of the worker driving the pipeline.
type Service struct {
	store     *session.Store
	providers *tts.Registry
	breakers  *resilience.Registry
	metrics   *observe.Metrics
	cfg       Config
}

// NewService wires the pipeline dependencies together.
func NewService(store *session.Store, providers *tts.Registry, breakers *resilience.Registry, m *observe.Metrics, cfg Config) *Service {
	return &Service{
		store:     store,
		providers: providers,
		breakers:  breakers,
		metrics:   m,
		cfg:       cfg.withDefaults(),
	}
}

// CreateSession validates req and persists a new pending session. The
// returned session carries the generated id the client uses to open its
// stream.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (session.Session, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return session.Session{}, ErrEmptyText
	}

	if _, err := s.providers.Get(req.Provider); err != nil {
		return session.Session{}, err
	}
	voice, err := s.providers.FindVoice(ctx, req.Voice)
	if err != nil {
		return session.Session{}, err
	}
	if s.cfg.StrictVoiceOwnership && voice.Provider != req.Provider {
		return session.Session{}, fmt.Errorf("%w: voice %q belongs to %q", ErrVoiceNotOwned, req.Voice, voice.Provider)
	}

	format := audio.Format(req.TargetFormat)
	if req.TargetFormat == "" {
		format = audio.FormatPCM16
	}
	if !format.IsValid() {
		return session.Session{}, fmt.Errorf("%w: %q", ErrBadFormat, req.TargetFormat)
	}

	rate := req.SampleRateHz
	if rate == 0 {
		rate = voice.SampleRateHz
	}
	if rate <= 0 || rate > maxSampleRateHz {
		return session.Session{}, fmt.Errorf("%w: %d", ErrBadSampleRate, rate)
	}
	if format == audio.FormatOpus && !audio.OpusRateSupported(rate) {
		return session.Session{}, fmt.Errorf("%w: %d not valid for opus", ErrBadSampleRate, rate)
	}

	sess := session.Session{
		ID:           uuid.NewString(),
		Provider:     req.Provider,
		Voice:        req.Voice,
		Language:     req.Language,
		Text:         text,
		TargetFormat: format,
		SampleRateHz: rate,
		Status:       session.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := s.store.Insert(&sess); err != nil {
		return session.Session{}, err
	}
	slog.Info("session created",
		"session_id", sess.ID,
		"provider", sess.Provider,
		"voice", sess.Voice,
		"format", string(sess.TargetFormat),
		"sample_rate_hz", sess.SampleRateHz,
	)
	return sess, nil
}

// Store exposes the session store for read-side handlers.
func (s *Service) Store() *session.Store {
	return s.store
}

// Providers exposes the provider registry for catalogue handlers.
func (s *Service) Providers() *tts.Registry {
	return s.providers
}

// pipeline outcome sentinels, local to the streaming driver.
var (
	errClientGone  = errors.New("client disconnected")
	errShutdown    = errors.New("shutting down")
	errPullTimeout = errors.New("provider pull timed out")
	errTranscode   = errors.New("transcode failed")
)

// Stream drives one admitted session to its terminal state. It is the
// [StreamFunc] run by the worker pool; ctx is the pool lifecycle context
// and its cancellation means process shutdown, not client cancellation.
func (s *Service) Stream(ctx context.Context, item WorkItem) {
	log := slog.With("session_id", item.SessionID)

	sess, err := s.store.Get(item.SessionID)
	if err != nil {
		log.Error("session lookup failed", "error", err)
		_ = item.Transport.Close(CloseInternalError, "unknown session")
		return
	}
	log = log.With("provider", sess.Provider)

	// Liveness check: a client that disconnected while queued must not
	// trigger synthesis at all.
	select {
	case <-item.Transport.Done():
		log.Info("client gone before streaming started")
		_ = s.store.UpdateStatus(sess.ID, session.StatusCancelled, "")
		s.metrics.RecordSession(ctx, sess.Provider, string(session.StatusCancelled))
		_ = item.Transport.Close(CloseNormal, "client gone")
		return
	default:
	}

	if err := s.store.UpdateStatus(sess.ID, session.StatusStreaming, ""); err != nil {
		// Raced with an out-of-band cancellation.
		log.Warn("session not startable", "error", err)
		_ = item.Transport.Close(CloseNormal, "session not startable")
		return
	}

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	start := time.Now()
	p := &pipeline{
		svc:       s,
		log:       log,
		sess:      &sess,
		transport: item.Transport,
	}
	p.run(ctx)
	s.metrics.RecordSynthesis(ctx, sess.Provider, time.Since(start).Seconds())
}

// pipeline is the per-session streaming driver state.
type pipeline struct {
	svc       *Service
	log       *slog.Logger
	sess      *session.Session
	transport Transport

	// sent counts successfully delivered audio frames; it doubles as the
	// next seq minus one and gates the retry policy.
	sent int
}

// run executes the stages in order and settles the session into exactly
// one terminal state with exactly one terminal frame (or none on client
// cancellation).
func (p *pipeline) run(ctx context.Context) {
	s := p.svc

	provider, err := s.providers.Get(p.sess.Provider)
	if err != nil {
		// Validated at admission; only a racing deregistration gets here.
		p.fail(ctx, nil, 500, "provider_unavailable", CloseInternalError)
		return
	}

	lease, err := s.breakers.For(p.sess.Provider).Permit()
	if err != nil {
		p.log.Warn("circuit breaker denied session")
		s.metrics.RecordProviderFailure(ctx, p.sess.Provider, "circuit_open")
		p.fail(ctx, nil, 503, "provider_unavailable", CloseTryAgainLater)
		return
	}

	transcoder, err := audio.NewTranscoder(
		audio.Target{Format: p.sess.TargetFormat, SampleRateHz: p.sess.SampleRateHz},
		audio.WithFFmpegPath(s.cfg.FFmpegPath),
	)
	if err != nil {
		p.log.Error("transcoder setup failed", "error", err)
		p.fail(ctx, lease, 500, "transcode_failed", CloseInternalError)
		return
	}

	req := tts.Request{
		Text:     p.sess.Text,
		VoiceID:  p.sess.Voice,
		Language: p.sess.Language,
	}

	for attempt := 1; ; attempt++ {
		// Each attempt gets its own context so an abandoned stream (timeout,
		// client gone, retry) never leaves the provider goroutine blocked on
		// its results channel.
		attemptCtx, cancelAttempt := context.WithCancel(ctx)
		results, err := provider.Synthesize(attemptCtx, req)
		if err == nil {
			err = p.drain(ctx, results, transcoder)
		}
		cancelAttempt()

		switch {
		case err == nil:
			p.complete(ctx, lease)
			return

		case errors.Is(err, errClientGone):
			p.cancel(ctx, lease)
			return

		case errors.Is(err, errShutdown):
			p.log.Info("session interrupted by shutdown")
			// Shutdown is not a provider fault.
			lease.Record(true)
			p.terminate(ctx, 503, "shutting_down", CloseTryAgainLater, "shutdown")
			return

		case errors.Is(err, errTranscode):
			p.log.Error("transcode failed", "error", err)
			p.fail(ctx, lease, 500, "transcode_failed", CloseInternalError)
			return

		case p.sent > 0:
			p.log.Error("provider failed mid-stream", "error", err, "frames_sent", p.sent)
			s.metrics.RecordProviderFailure(ctx, p.sess.Provider, "mid_stream")
			p.fail(ctx, lease, 502, "provider_mid_stream", CloseInternalError)
			return

		case attempt >= s.cfg.MaxAttempts:
			p.log.Error("provider failed before first byte, retries exhausted",
				"error", err, "attempts", attempt)
			s.metrics.RecordProviderFailure(ctx, p.sess.Provider, "start_failed")
			p.fail(ctx, lease, 502, "provider_error", CloseInternalError)
			return

		default:
			backoff := s.cfg.BackoffBase << (attempt - 1)
			p.log.Warn("provider attempt failed, retrying",
				"error", err, "attempt", attempt, "backoff", backoff)
			if err := p.sleep(ctx, backoff); err != nil {
				if errors.Is(err, errClientGone) {
					p.cancel(ctx, lease)
				} else {
					lease.Record(true)
					p.terminate(ctx, 503, "shutting_down", CloseTryAgainLater, "shutdown")
				}
				return
			}
		}
	}
}

// drain pulls, transcodes, and sends chunks until the provider stream
// ends. It returns nil on normal exhaustion; otherwise one of the pipeline
// sentinels, a transcode error, or the provider's terminal error.
func (p *pipeline) drain(ctx context.Context, results <-chan tts.Result, transcoder audio.Transcoder) error {
	for {
		res, open, err := p.pull(ctx, results)
		if err != nil {
			return err
		}
		if !open {
			return p.flushTail(ctx, transcoder)
		}
		if res.Err != nil {
			return res.Err
		}

		// Cancellation checkpoint between pull and transcode.
		if err := p.checkpoint(ctx); err != nil {
			return err
		}

		payload, err := transcoder.Transcode(ctx, res.Chunk)
		if err != nil {
			return errors.Join(errTranscode, err)
		}
		if len(payload) == 0 {
			// Compressed targets may buffer a partial codec frame.
			continue
		}

		// Cancellation checkpoint between transcode and send.
		if err := p.checkpoint(ctx); err != nil {
			return err
		}

		if err := p.transport.Send(ctx, AudioFrame(p.sent+1, payload)); err != nil {
			p.log.Info("transport send failed", "error", err)
			return errClientGone
		}
		p.sent++
		p.svc.metrics.RecordFrame(ctx, p.sess.Provider, string(p.sess.TargetFormat), len(payload))
	}
}

// flushTail drains the transcoder's buffered codec state once the
// provider stream is exhausted, emitting the final partial frame before
// eos. Opus targets buffer up to one 20 ms frame; PCM targets flush
// nothing.
func (p *pipeline) flushTail(ctx context.Context, transcoder audio.Transcoder) error {
	payload, err := transcoder.Flush()
	if err != nil {
		return errors.Join(errTranscode, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := p.transport.Send(ctx, AudioFrame(p.sent+1, payload)); err != nil {
		p.log.Info("transport send failed", "error", err)
		return errClientGone
	}
	p.sent++
	p.svc.metrics.RecordFrame(ctx, p.sess.Provider, string(p.sess.TargetFormat), len(payload))
	return nil
}

// pull waits for the next provider result, bounded by the per-chunk
// timeout. open is false when the provider stream is exhausted.
func (p *pipeline) pull(ctx context.Context, results <-chan tts.Result) (res tts.Result, open bool, err error) {
	// Cancellation wins over a ready result.
	if err := p.checkpoint(ctx); err != nil {
		return tts.Result{}, false, err
	}

	timer := time.NewTimer(p.svc.cfg.PullTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return tts.Result{}, false, errShutdown
	case <-p.transport.Done():
		return tts.Result{}, false, errClientGone
	case <-timer.C:
		return tts.Result{}, false, fmt.Errorf("%w after %v", errPullTimeout, p.svc.cfg.PullTimeout)
	case res, open = <-results:
		return res, open, nil
	}
}

// checkpoint observes cancellation between pipeline stages.
func (p *pipeline) checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errShutdown
	case <-p.transport.Done():
		return errClientGone
	default:
		return nil
	}
}

// sleep backs off between synthesis attempts, still honouring
// cancellation.
func (p *pipeline) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errShutdown
	case <-p.transport.Done():
		return errClientGone
	case <-timer.C:
		return nil
	}
}

// complete settles the session as successfully streamed: eos frame,
// breaker success, terminal status.
func (p *pipeline) complete(ctx context.Context, lease *resilience.Lease) {
	if err := p.transport.Send(ctx, EosFrame()); err != nil {
		p.log.Info("eos send failed", "error", err)
		p.cancel(ctx, lease)
		return
	}
	lease.Record(true)
	_ = p.transport.Close(CloseNormal, "complete")
	_ = p.svc.store.UpdateStatus(p.sess.ID, session.StatusCompleted, "")
	p.svc.metrics.RecordSession(ctx, p.sess.Provider, string(session.StatusCompleted))
	p.log.Info("session completed", "frames", p.sent)
}

// cancel settles a client-side abort: no terminal frame, breaker not
// blamed.
func (p *pipeline) cancel(ctx context.Context, lease *resilience.Lease) {
	if lease != nil {
		lease.Record(true)
	}
	_ = p.transport.Close(CloseNormal, "cancelled")
	_ = p.svc.store.UpdateStatus(p.sess.ID, session.StatusCancelled, "")
	p.svc.metrics.RecordSession(ctx, p.sess.Provider, string(session.StatusCancelled))
	p.log.Info("session cancelled by client", "frames", p.sent)
}

// fail settles a server-side failure, blaming the breaker when a lease is
// held.
func (p *pipeline) fail(ctx context.Context, lease *resilience.Lease, code int, reason string, closeCode CloseCode) {
	if lease != nil {
		lease.Record(false)
	}
	p.terminate(ctx, code, reason, closeCode, reason)
}

// terminate sends the terminal error frame and records the failed status.
// Frame delivery is best effort: the peer may already be gone.
func (p *pipeline) terminate(ctx context.Context, code int, message string, closeCode CloseCode, reason string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = p.transport.Send(sendCtx, ErrorFrame(code, message))
	_ = p.transport.Close(closeCode, message)
	_ = p.svc.store.UpdateStatus(p.sess.ID, session.StatusFailed, reason)
	p.svc.metrics.RecordSession(sendCtx, p.sess.Provider, string(session.StatusFailed))
}
