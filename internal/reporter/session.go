package reporter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const DefaultInterval = 2 * time.Second

var (
	ErrNotActive         = errors.New("session is not active")
	ErrThrottled         = errors.New("report inside throttle window")
	ErrReportInFlight    = errors.New("report already in flight")
	ErrInvalidTransition = errors.New("invalid session transition")
)

type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransportSample is one reading from the torrent transport.
type TransportSample struct {
	UploadSpeed   float64 // bytes per second
	DownloadSpeed float64
	NumPeers      uint32
	Progress      float64
}

type Sampler interface {
	Sample() TransportSample
}

// Result is the outcome of one report attempt. Exactly one of Update and Err is set.
type Result struct {
	Update *LedgerUpdate
	Err    error
}

type SessionConfig struct {
	ContentID string
	Title     string
	// Interval between periodic reports. Each report claims Interval of seeding time.
	Interval time.Duration
	// Window is the minimum spacing of reports, defaulting to Interval.
	Window time.Duration
}

type Snapshot struct {
	State            State
	DisplayBalance   float64
	ConfirmedBalance float64
	ReportsSent      int
	ReportsDropped   int
	ReportsFailed    int
	LastError        error
}

// SeedingSession reports transport samples for one content item to the ledger.
// Reports are throttled to one per window and never overlap.
type SeedingSession struct {
	cfg      SessionConfig
	sampler  Sampler
	reporter Reporter
	clock    clockwork.Clock
	logger   providers.Logger
	limiter  *rate.Limiter
	inFlight atomic.Bool
	pending  sync.WaitGroup
	onResult func(Result)

	mu        sync.Mutex
	state     State
	ctx       context.Context
	unwatch   func() bool
	ticker    clockwork.Ticker
	stopTick  chan struct{}
	display   float64
	frozen    float64
	confirmed float64
	sent      int
	dropped   int
	failed    int
	lastErr   error
}

func NewSeedingSession(cfg SessionConfig, sampler Sampler, reporter Reporter, clock clockwork.Clock, logger providers.Logger) *SeedingSession {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Interval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SeedingSession{
		cfg:      cfg,
		sampler:  sampler,
		reporter: reporter,
		clock:    clock,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(cfg.Window), 1),
	}
}

// OnResult registers fn to receive every completed report. It runs on the
// goroutine that sent the report.
func (s *SeedingSession) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// SetConfirmedBalance seeds the display with a balance read from the ledger.
func (s *SeedingSession) SetConfirmedBalance(total float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = total
	if s.state == StatePaused {
		return
	}
	s.display = total
}

// Start begins periodic reporting. Cancelling ctx stops the session like Stop:
// reports already in flight still complete, use Wait to block until they do.
func (s *SeedingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}
	s.ctx = context.WithoutCancel(ctx)
	s.state = StateActive
	s.startTicker()
	s.unwatch = context.AfterFunc(ctx, s.Stop)
	return nil
}

func (s *SeedingSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.state)
	}
	s.stopTicker()
	s.frozen = s.display
	s.state = StatePaused
	return nil
}

// Resume restarts periodic reports. Time spent paused is never reported and
// the display keeps its frozen value until the next confirmed report.
func (s *SeedingSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	s.display = s.frozen
	s.state = StateActive
	s.startTicker()
	return nil
}

// Stop ends the session for good. A report already in flight still completes.
func (s *SeedingSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	if s.state == StatePaused {
		s.display = s.frozen
	}
	s.stopTicker()
	s.state = StateStopped
	if s.unwatch != nil {
		s.unwatch()
	}
}

// Wait blocks until every report already in flight has completed.
func (s *SeedingSession) Wait() {
	s.pending.Wait()
}

func (s *SeedingSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	display := s.display
	if s.state == StatePaused {
		display = s.frozen
	}
	return Snapshot{
		State:            s.state,
		DisplayBalance:   display,
		ConfirmedBalance: s.confirmed,
		ReportsSent:      s.sent,
		ReportsDropped:   s.dropped,
		ReportsFailed:    s.failed,
		LastError:        s.lastErr,
	}
}

// ReportNow sends a report immediately, subject to the throttle window.
func (s *SeedingSession) ReportNow() Result {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return Result{Err: ErrNotActive}
	}
	return s.report(ctx, s.clock.Now())
}

// startTicker must be called under s.mu.
func (s *SeedingSession) startTicker() {
	s.ticker = s.clock.NewTicker(s.cfg.Interval)
	s.stopTick = make(chan struct{})
	go s.loop(s.ctx, s.ticker, s.stopTick)
}

// stopTicker must be called under s.mu.
func (s *SeedingSession) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopTick)
	s.ticker = nil
}

func (s *SeedingSession) loop(ctx context.Context, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case at := <-ticker.Chan():
			s.report(ctx, at)
		}
	}
}

// report runs one attempt at time at. Ticks pass their scheduled time so
// processing delay never pushes a tick into the previous window.
func (s *SeedingSession) report(ctx context.Context, at time.Time) Result {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return Result{Err: ErrNotActive}
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped++
		s.mu.Unlock()
		return Result{Err: ErrReportInFlight}
	}
	if !s.limiter.AllowN(at, 1) {
		s.inFlight.Store(false)
		s.dropped++
		s.mu.Unlock()
		return Result{Err: ErrThrottled}
	}

	sample := s.sampler.Sample()
	report := s.buildReport(sample)
	s.display += models.EstimateClientReward(sample.UploadSpeed, sample.NumPeers)
	s.sent++
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()

	update, err := s.reporter.Report(ctx, report)
	s.inFlight.Store(false)

	res := s.complete(update, err)

	s.mu.Lock()
	fn := s.onResult
	s.mu.Unlock()
	if fn != nil {
		fn(res)
	}
	return res
}

func (s *SeedingSession) buildReport(sample TransportSample) *models.SeedingReport {
	secs := uint64(s.cfg.Interval / time.Second)
	bytes := uint64(math.Max(0, sample.UploadSpeed) * s.cfg.Interval.Seconds())
	active := true
	return &models.SeedingReport{
		ContentID:      s.cfg.ContentID,
		BytesUploaded:  bytes,
		UploadSpeed:    sample.UploadSpeed,
		PeersConnected: sample.NumPeers,
		SeedingTime:    secs,
		IsActive:       &active,
		Title:          s.cfg.Title,
		ReportID:       uuid.NewString(),
	}
}

func (s *SeedingSession) complete(update *LedgerUpdate, err error) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failed++
		s.lastErr = err
		switch {
		case errors.Is(err, ErrRejected):
			s.logger.Warnf(providers.TypePost, "Ledger rejected report for %s: %s", s.cfg.ContentID, err)
		case errors.Is(err, ErrStorageUnavailable):
			s.logger.Errorf(providers.TypePost, "Ledger storage failed for %s: %s", s.cfg.ContentID, err)
		case errors.Is(err, ErrNetworkFailure):
			s.logger.Warnf(providers.TypePost, "Ledger unreachable, keeping local balance: %s", err)
		default:
			s.logger.Errorf(providers.TypePost, "Report for %s failed: %s", s.cfg.ContentID, err)
		}
		return Result{Err: err}
	}

	s.confirmed = *update.TotalTokens
	s.lastErr = nil
	if s.state != StatePaused {
		s.display = s.confirmed
	}
	return Result{Update: update}
}
