// Package genrotor fans generation requests out across multiple API
// credentials and multiple model identifiers so that a request succeeds if
// any credential/model combination succeeds.
//
// The Rotator type is the main entry point: create one with New (or load a
// Config with LoadConfig / ConfigFromEnv) and issue requests with Generate
// or GenerateBlocking. Models are tried in roster order, grouped into
// consecutive primary/secondary pairs; within each pair every credential is
// tried in turn before the traversal moves on.
package genrotor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/halcyon-ai/genrotor/internal/attemptlog"
	"github.com/halcyon-ai/genrotor/internal/errfmt"
	"github.com/halcyon-ai/genrotor/internal/logging"
	"github.com/halcyon-ai/genrotor/internal/metrics"
	"github.com/halcyon-ai/genrotor/transport"
)

// Pair slot labels used in logs, metrics, and the attempt journal.
const (
	slotPrimary   = "primary"
	slotSecondary = "secondary"
)

// CallerFactory builds a transport caller bound to one credential.
type CallerFactory func(credential string) (transport.Caller, error)

// Rotator executes the failover traversal over an ordered list of
// credential-bound callers and an ordered model roster. Both lists are
// fixed at construction, so a Rotator is safe for concurrent use.
type Rotator struct {
	callers  []transport.Caller
	models   []string
	logger   *slog.Logger
	attempts attemptlog.Writer
	factory  CallerFactory

	// ownedJournal is non-nil when New opened the journal itself and
	// Close should tear it down.
	ownedJournal *attemptlog.SQLWriter
}

// Option customises a Rotator during construction.
type Option func(*Rotator)

// WithLogger replaces the package-level logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rotator) { r.logger = l }
}

// WithAttemptWriter injects an attempt journal writer. Takes precedence
// over Config.AttemptLog.
func WithAttemptWriter(w attemptlog.Writer) Option {
	return func(r *Rotator) { r.attempts = w }
}

// WithCallerFactory overrides how credentials are turned into transport
// callers. Used by tests and custom backends.
func WithCallerFactory(f CallerFactory) Option {
	return func(r *Rotator) { r.factory = f }
}

// New creates a Rotator: one transport caller per credential, order
// preserved. Returns ErrNoCredentials when cfg carries no credentials.
func New(cfg Config, opts ...Option) (*Rotator, error) {
	r := &Rotator{
		models: slices.Clone(cfg.Models),
		logger: logging.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}

	factory := r.factory
	if factory == nil {
		f, err := defaultFactory(cfg)
		if err != nil {
			return nil, err
		}
		factory = f
	}

	for i, cred := range cfg.Credentials {
		caller, err := factory(cred)
		if err != nil {
			return nil, fmt.Errorf("building client %d: %w", i+1, err)
		}
		r.callers = append(r.callers, caller)
	}

	if r.attempts == nil {
		journal, err := openJournal(cfg.AttemptLog)
		if err != nil {
			return nil, err
		}
		if journal != nil {
			r.attempts = journal
			r.ownedJournal = journal
		} else {
			r.attempts = attemptlog.NoopWriter{}
		}
	}

	return r, nil
}

// defaultFactory maps Config.Provider to a transport constructor.
func defaultFactory(cfg Config) (CallerFactory, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return func(cred string) (transport.Caller, error) {
			return transport.NewGemini(cred, cfg.BaseURL)
		}, nil
	case ProviderOpenAI:
		return func(cred string) (transport.Caller, error) {
			return transport.NewOpenAI(cred, cfg.BaseURL)
		}, nil
	case ProviderBedrock:
		return func(cred string) (transport.Caller, error) {
			return transport.NewBedrock(cred, cfg.Region)
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}
}

func openJournal(cfg *AttemptLogConfig) (*attemptlog.SQLWriter, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Backend {
	case "sqlite":
		return attemptlog.NewSQLiteWriter(cfg.DSN)
	case "postgres":
		return attemptlog.NewPostgresWriter(cfg.DSN)
	default:
		return nil, fmt.Errorf("attempt_log: unknown backend %q", cfg.Backend)
	}
}

// Models returns a copy of the model roster.
func (r *Rotator) Models() []string {
	return slices.Clone(r.models)
}

// Clients returns the number of credential-bound callers.
func (r *Rotator) Clients() int {
	return len(r.callers)
}

// Close releases the attempt journal if the Rotator opened it.
func (r *Rotator) Close() error {
	if r.ownedJournal != nil {
		return r.ownedJournal.Close()
	}
	return nil
}

// modelPair groups two consecutive roster entries. secondary is empty for a
// trailing odd entry.
type modelPair struct {
	primary   string
	secondary string
}

// pairModels partitions the roster into pairs of at most two, preserving
// order: [A,B,C,D,E] becomes {A,B}, {C,D}, {E,-}.
func pairModels(models []string) []modelPair {
	pairs := make([]modelPair, 0, (len(models)+1)/2)
	for i := 0; i < len(models); i += 2 {
		p := modelPair{primary: models[i]}
		if i+1 < len(models) {
			p.secondary = models[i+1]
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// Generate runs the failover traversal and returns the first successful
// response. Model pairs are visited in roster order; within each pair every
// caller is tried in construction order, primary model first, then the
// secondary model on the same caller. Recognized transport errors
// (ClientError, ServerError) are logged and the traversal continues; any
// other error aborts the traversal and propagates unmodified. When every
// combination fails the *ExhaustedError carries the attempt-scope counts.
//
// ctx is passed through to each transport call; no timeout is imposed here.
func (r *Rotator) Generate(ctx context.Context, contents any, cfg *transport.GenerationConfig) (*transport.Response, error) {
	start := time.Now()
	log := r.requestLogger(ctx)

	pairs := pairModels(r.models)
	for i, pair := range pairs {
		log.Info("processing model group",
			"group", i+1,
			"groups", len(pairs),
			"primary", pair.primary,
			"secondary", pair.secondary,
		)

		for ci, caller := range r.callers {
			clientID := fmt.Sprintf("client-%d", ci+1)

			resp, err := r.attempt(ctx, log, caller, clientID, pair.primary, slotPrimary, contents, cfg)
			if err == nil {
				metrics.GenerateDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
				return resp, nil
			}
			if !transport.Recognized(err) {
				metrics.GenerateDuration.WithLabelValues("fatal").Observe(time.Since(start).Seconds())
				return nil, err
			}

			if pair.secondary == "" {
				continue
			}

			resp, err = r.attempt(ctx, log, caller, clientID, pair.secondary, slotSecondary, contents, cfg)
			if err == nil {
				metrics.GenerateDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
				return resp, nil
			}
			if !transport.Recognized(err) {
				metrics.GenerateDuration.WithLabelValues("fatal").Observe(time.Since(start).Seconds())
				return nil, err
			}
		}
	}

	metrics.ExhaustionsTotal.Inc()
	metrics.GenerateDuration.WithLabelValues("exhausted").Observe(time.Since(start).Seconds())
	err := &ExhaustedError{Clients: len(r.callers), Models: len(r.models)}
	log.Error("generation exhausted", "clients", err.Clients, "models", err.Models)
	return nil, err
}

// GenerateBlocking runs the identical traversal without caller-supplied
// cancellation, for code paths that have no context to thread through.
func (r *Rotator) GenerateBlocking(contents any, cfg *transport.GenerationConfig) (*transport.Response, error) {
	return r.Generate(context.Background(), contents, cfg)
}

// attempt issues one transport call and records its outcome in logs,
// metrics, and the attempt journal. The returned error is the transport
// error unmodified; classification happens in Generate.
func (r *Rotator) attempt(ctx context.Context, log *slog.Logger, caller transport.Caller, clientID, model, slot string, contents any, cfg *transport.GenerationConfig) (*transport.Response, error) {
	log.Debug("attempting model", "client", clientID, "slot", slot, "model", model)

	start := time.Now()
	resp, err := caller.Call(ctx, model, contents, cfg)
	metrics.AttemptDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.AttemptsTotal.WithLabelValues(model, slot, "success").Inc()
		log.Info("model succeeded", "client", clientID, "slot", slot, "model", model)
		r.journal(ctx, clientID, model, slot, "success", "")
		return resp, nil

	case transport.Recognized(err):
		msg := errfmt.Normalize(err.Error())
		metrics.AttemptsTotal.WithLabelValues(model, slot, "failure").Inc()
		log.Warn("model failed", "client", clientID, "slot", slot, "model", model, "error", msg)
		r.journal(ctx, clientID, model, slot, "failure", msg)
		return nil, err

	default:
		metrics.AttemptsTotal.WithLabelValues(model, slot, "fatal").Inc()
		log.Error("unexpected transport error", "client", clientID, "slot", slot, "model", model, "error", err.Error())
		r.journal(ctx, clientID, model, slot, "fatal", err.Error())
		return nil, err
	}
}

// journal records an attempt row. Write failures must not disturb the
// traversal; they are logged and dropped.
func (r *Rotator) journal(ctx context.Context, clientID, model, slot, outcome, errMsg string) {
	entry := attemptlog.Entry{
		TraceID:      logging.TraceIDFromContext(ctx),
		Model:        model,
		Client:       clientID,
		Slot:         slot,
		Outcome:      outcome,
		ErrorMessage: errMsg,
	}
	if err := r.attempts.Write(ctx, entry); err != nil {
		r.logger.Warn("attempt journal write failed", "error", err.Error())
	}
}

func (r *Rotator) requestLogger(ctx context.Context) *slog.Logger {
	if id := logging.TraceIDFromContext(ctx); id != "" {
		return r.logger.With("trace_id", id)
	}
	return r.logger
}
