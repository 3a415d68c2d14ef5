// Package analysis submits a document's analysis job and polls its status
// until the backend reports a terminal outcome.
//
// The chain is: submit, wait FirstPollDelay, then check every PollInterval.
// Transport and decode errors during a check are transient: they are logged
// and the check is rescheduled, never failing the chain. A 401 ends the chain
// immediately. Exactly one check is ever scheduled or in flight; Start and
// Cancel invalidate any previous chain through a generation counter, so late
// completions from an old chain are dropped.
package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/docflow/internal/clock"
	"github.com/fpang/docflow/internal/docapi"
)

// ErrCanceled is returned by Start when the chain was cancelled while the
// submission was in flight.
var ErrCanceled = errors.New("analysis canceled")

// API is the subset of the backend client the poller needs.
type API interface {
	StartAnalysis(ctx context.Context, token string, documentID int64) (*docapi.StartAnalysisResponse, error)
	AnalysisStatus(ctx context.Context, token string, documentID int64) (*docapi.StatusResponse, error)
}

// Config holds the poll schedule.
type Config struct {
	FirstPollDelay time.Duration
	PollInterval   time.Duration
	// MaxPollDuration bounds polling after submission. Zero means poll
	// until a terminal status arrives.
	MaxPollDuration time.Duration
}

// DefaultConfig returns the standard schedule: first check after 10s,
// then every 5s, no overall budget.
func DefaultConfig() Config {
	return Config{
		FirstPollDelay: 10 * time.Second,
		PollInterval:   5 * time.Second,
	}
}

// Update is delivered to the observer on every phase change and after each
// non-terminal check.
type Update struct {
	DocumentID int64
	Phase      Phase
	// Snapshot is the most recent status response, if any.
	Snapshot        *docapi.StatusResponse
	Failure         Failure
	Message         string
	Err             error
	Attempts        int
	TransientErrors int
}

// Poller drives one analysis chain at a time.
type Poller struct {
	api      API
	clock    clock.Clock
	cfg      Config
	observer func(Update)

	mu         sync.Mutex
	gen        uint64
	timer      clock.Timer
	cancelCtx  context.CancelFunc
	chainCtx   context.Context
	documentID int64
	token      string
	pollStart  time.Time
	attempts   int
	transient  int
	snapshot   *docapi.StatusResponse
}

// NewPoller creates an idle poller. observer may be nil.
func NewPoller(api API, c clock.Clock, cfg Config, observer func(Update)) *Poller {
	if cfg.FirstPollDelay <= 0 {
		cfg.FirstPollDelay = DefaultConfig().FirstPollDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Poller{api: api, clock: c, cfg: cfg, observer: observer}
}

// Start cancels any running chain, submits the job and, on success,
// schedules the first status check. It returns once the submission has
// resolved; the rest of the chain is reported through the observer.
// ctx scopes the whole chain: cancelling it stops polling like Cancel.
func (p *Poller) Start(ctx context.Context, documentID int64, token string) error {
	gen, chainCtx := p.begin(ctx, documentID, token)

	p.emit(gen, Update{DocumentID: documentID, Phase: PhasePosting})

	_, err := p.api.StartAnalysis(chainCtx, token, documentID)

	p.mu.Lock()
	if gen != p.gen || chainCtx.Err() != nil {
		p.mu.Unlock()
		return ErrCanceled
	}
	if err != nil {
		failure, msg := FailureSubmission, docapi.ServerMessage(err, MsgSubmissionFallback)
		if docapi.IsUnauthorized(err) {
			failure, msg = FailureUnauthorized, MsgUnauthorized
		}
		p.mu.Unlock()

		log.Error().Err(err).Int64("documentId", documentID).Msg("Failed to start analysis")
		p.finish(gen, Update{DocumentID: documentID, Phase: PhaseFailed, Failure: failure, Message: msg, Err: err})
		return err
	}
	p.pollStart = p.clock.Now()
	p.mu.Unlock()

	p.emit(gen, Update{DocumentID: documentID, Phase: PhasePolling})
	p.schedule(gen, p.cfg.FirstPollDelay)
	return nil
}

// Follow polls a job that is already running on the server, without
// submitting a new one. The first check runs after PollInterval, since the
// caller has just seen the job's status.
func (p *Poller) Follow(ctx context.Context, documentID int64, token string) {
	gen, _ := p.begin(ctx, documentID, token)

	p.mu.Lock()
	if gen == p.gen {
		p.pollStart = p.clock.Now()
	}
	p.mu.Unlock()

	p.emit(gen, Update{DocumentID: documentID, Phase: PhasePolling})
	p.schedule(gen, p.cfg.PollInterval)
}

// begin replaces any running chain with a fresh one scoped to ctx.
func (p *Poller) begin(ctx context.Context, documentID int64, token string) (uint64, context.Context) {
	p.mu.Lock()
	p.stopLocked()
	gen := p.gen
	chainCtx, cancel := context.WithCancel(ctx)
	p.chainCtx = chainCtx
	p.cancelCtx = cancel
	p.documentID = documentID
	p.token = token
	p.attempts = 0
	p.transient = 0
	p.snapshot = nil
	p.mu.Unlock()

	context.AfterFunc(chainCtx, func() { p.cancelGen(gen) })
	return gen, chainCtx
}

// Cancel stops the current chain. Pending timers are stopped before Cancel
// returns and any in-flight request's result is ignored.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Pending reports whether a status check is scheduled.
func (p *Poller) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

func (p *Poller) cancelGen(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen {
		p.stopLocked()
	}
}

func (p *Poller) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancelCtx != nil {
		p.cancelCtx()
		p.cancelCtx = nil
	}
	p.gen++
}

func (p *Poller) schedule(gen uint64, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.timer = p.clock.AfterFunc(delay, func() { p.check(gen) })
}

func (p *Poller) check(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.attempts++
	ctx, id, token := p.chainCtx, p.documentID, p.token
	p.mu.Unlock()

	resp, err := p.api.AnalysisStatus(ctx, token, id)

	p.mu.Lock()
	if gen != p.gen || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if resp != nil {
		p.snapshot = resp
	}
	if err != nil && !docapi.IsUnauthorized(err) {
		p.transient++
	}
	u := Update{
		DocumentID:      id,
		Phase:           PhasePolling,
		Snapshot:        p.snapshot,
		Attempts:        p.attempts,
		TransientErrors: p.transient,
	}
	elapsed := p.clock.Now().Sub(p.pollStart)
	p.mu.Unlock()

	logger := log.With().Int64("documentId", id).Int("attempt", u.Attempts).Logger()

	switch {
	case err != nil && docapi.IsUnauthorized(err):
		logger.Warn().Err(err).Msg("Status check rejected credentials")
		u.Phase, u.Failure, u.Message, u.Err = PhaseFailed, FailureUnauthorized, MsgUnauthorized, err
		p.finish(gen, u)
		return

	case err != nil:
		logger.Warn().Err(err).Dur("nextPoll", p.cfg.PollInterval).Msg("Status check failed, retrying")

	case resp.Document.DocumentStatus.IsReady():
		logger.Info().Str("status", string(resp.Document.DocumentStatus)).Msg("Analysis ready")
		u.Phase = PhaseReady
		p.finish(gen, u)
		return

	case resp.Document.DocumentStatus == docapi.StatusFailed:
		logger.Warn().Msg("Analysis failed on the server")
		u.Phase, u.Failure, u.Message = PhaseFailed, FailureServer, MsgServerFailed
		p.finish(gen, u)
		return

	default:
		logger.Debug().Str("status", string(resp.Document.DocumentStatus)).Dur("nextPoll", p.cfg.PollInterval).Msg("Analysis still running")
	}

	if p.cfg.MaxPollDuration > 0 && elapsed >= p.cfg.MaxPollDuration {
		logger.Warn().Dur("elapsed", elapsed).Dur("budget", p.cfg.MaxPollDuration).Msg("Poll budget exhausted")
		u.Phase, u.Failure, u.Message = PhaseFailed, FailureTimeout, MsgTimedOut
		p.finish(gen, u)
		return
	}

	p.emit(gen, u)
	p.schedule(gen, p.cfg.PollInterval)
}

// finish reports a terminal update and releases the chain's context.
func (p *Poller) finish(gen uint64, u Update) {
	p.emit(gen, u)
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen && p.cancelCtx != nil {
		p.cancelCtx()
		p.cancelCtx = nil
	}
}

func (p *Poller) emit(gen uint64, u Update) {
	if p.observer == nil {
		return
	}
	p.mu.Lock()
	current := gen == p.gen
	p.mu.Unlock()
	if current {
		p.observer(u)
	}
}
