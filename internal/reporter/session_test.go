package reporter

import (
	"context"
	"errors"
	"fmt"
	"streamflix/internal/models"
	"streamflix/internal/testutil"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSampler struct {
	sample TransportSample
}

func (f fixedSampler) Sample() TransportSample { return f.sample }

// fakeReporter credits every report with a fixed amount. When gate is set each
// call blocks until a value is sent on it.
type fakeReporter struct {
	mu      sync.Mutex
	reports []*models.SeedingReport
	ctxs    []context.Context
	total   float64
	perCall float64
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeReporter) Report(ctx context.Context, report *models.SeedingReport) (*LedgerUpdate, error) {
	f.mu.Lock()
	f.reports = append(f.reports, report)
	f.ctxs = append(f.ctxs, ctx)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.total += f.perCall
	ok := true
	total, earned := f.total, f.perCall
	return &LedgerUpdate{Success: &ok, TotalTokens: &total, TokensEarned: &earned}, nil
}

func (f *fakeReporter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func newTestSession(t *testing.T, rep *fakeReporter, sample TransportSample) (*SeedingSession, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := NewSeedingSession(SessionConfig{ContentID: "movie-1", Title: "Movie"}, fixedSampler{sample}, rep, clock, &testutil.MockLogger{})
	return s, clock
}

func TestSession_ThrottleDropsReportInsideWindow(t *testing.T) {
	rep := &fakeReporter{perCall: 1}
	s, clock := newTestSession(t, rep, TransportSample{NumPeers: 1})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	res := s.ReportNow()
	require.NoError(t, res.Err)

	clock.Advance(500 * time.Millisecond)
	res = s.ReportNow()
	assert.ErrorIs(t, res.Err, ErrThrottled)
	assert.Equal(t, 1, rep.calls())

	clock.Advance(1500 * time.Millisecond)
	res = s.ReportNow()
	require.NoError(t, res.Err)
	assert.Equal(t, 2, rep.calls())

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.ReportsSent)
	assert.Equal(t, 1, snap.ReportsDropped)
}

func TestSession_TickerSendsPeriodicReports(t *testing.T) {
	rep := &fakeReporter{perCall: 2}
	s, clock := newTestSession(t, rep, TransportSample{UploadSpeed: 1000, NumPeers: 3})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return rep.calls() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return rep.calls() == 2 }, time.Second, 5*time.Millisecond)

	rep.mu.Lock()
	first, second := rep.reports[0], rep.reports[1]
	rep.mu.Unlock()

	assert.Equal(t, "movie-1", first.ContentID)
	assert.Equal(t, "Movie", first.Title)
	assert.Equal(t, uint64(2), first.SeedingTime)
	assert.Equal(t, uint64(2000), first.BytesUploaded)
	assert.Equal(t, uint32(3), first.PeersConnected)
	require.NotNil(t, first.IsActive)
	assert.True(t, *first.IsActive)
	assert.NotEmpty(t, first.ReportID)
	assert.NotEqual(t, first.ReportID, second.ReportID)

	assert.Eventually(t, func() bool { return s.Snapshot().ConfirmedBalance == 4 }, time.Second, 5*time.Millisecond)
}

func TestSession_OptimisticEstimateReplacedByConfirmedTotal(t *testing.T) {
	rep := &fakeReporter{perCall: 20, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	// 1 MB/s is 8 Mbps; with 2 peers the estimate is 16.
	s, _ := newTestSession(t, rep, TransportSample{UploadSpeed: 1_000_000, NumPeers: 2})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	done := make(chan Result, 1)
	go func() { done <- s.ReportNow() }()
	<-rep.entered

	assert.Equal(t, 16.0, s.Snapshot().DisplayBalance)
	assert.Equal(t, 0.0, s.Snapshot().ConfirmedBalance)

	rep.gate <- struct{}{}
	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, 20.0, *res.Update.TotalTokens)
	assert.Equal(t, 20.0, s.Snapshot().DisplayBalance)
}

func TestSession_PauseFreezesDisplay(t *testing.T) {
	rep := &fakeReporter{perCall: 50, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, clock := newTestSession(t, rep, TransportSample{UploadSpeed: 1_000_000, NumPeers: 1})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	done := make(chan Result, 1)
	go func() { done <- s.ReportNow() }()
	<-rep.entered

	require.NoError(t, s.Pause())
	frozen := s.Snapshot().DisplayBalance
	assert.Equal(t, 8.0, frozen)

	rep.gate <- struct{}{}
	require.NoError(t, (<-done).Err)

	snap := s.Snapshot()
	assert.Equal(t, StatePaused, snap.State)
	assert.Equal(t, frozen, snap.DisplayBalance)
	assert.Equal(t, 50.0, snap.ConfirmedBalance)

	res := s.ReportNow()
	assert.ErrorIs(t, res.Err, ErrNotActive)

	require.NoError(t, s.Resume())
	assert.Equal(t, frozen, s.Snapshot().DisplayBalance)
	assert.Equal(t, 50.0, s.Snapshot().ConfirmedBalance)

	rep.mu.Lock()
	rep.gate, rep.entered = nil, nil
	rep.mu.Unlock()
	clock.Advance(DefaultInterval)
	assert.Eventually(t, func() bool { return s.Snapshot().DisplayBalance == 100.0 }, time.Second, 5*time.Millisecond)
}

func TestSession_PausedTickerSendsNothing(t *testing.T) {
	rep := &fakeReporter{perCall: 1}
	s, clock := newTestSession(t, rep, TransportSample{NumPeers: 1})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.NoError(t, s.Pause())

	clock.Advance(10 * DefaultInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rep.calls())

	require.NoError(t, s.Resume())
	clock.Advance(DefaultInterval)
	assert.Eventually(t, func() bool { return rep.calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_SkipsWhileInFlight(t *testing.T) {
	rep := &fakeReporter{perCall: 1, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, _ := newTestSession(t, rep, TransportSample{NumPeers: 1})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	done := make(chan Result, 1)
	go func() { done <- s.ReportNow() }()
	<-rep.entered

	// Rejected by the in-flight check, not the throttle.
	res := s.ReportNow()
	assert.ErrorIs(t, res.Err, ErrReportInFlight)

	rep.gate <- struct{}{}
	require.NoError(t, (<-done).Err)
	assert.Equal(t, 1, rep.calls())
	assert.Equal(t, 1, s.Snapshot().ReportsDropped)
}

func TestSession_CancelledStartContextLetsInFlightReportFinish(t *testing.T) {
	rep := &fakeReporter{perCall: 7, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, _ := newTestSession(t, rep, TransportSample{NumPeers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	done := make(chan Result, 1)
	go func() { done <- s.ReportNow() }()
	<-rep.entered

	cancel()
	assert.Eventually(t, func() bool { return s.Snapshot().State == StateStopped }, time.Second, 5*time.Millisecond)
	rep.mu.Lock()
	reportCtx := rep.ctxs[0]
	rep.mu.Unlock()
	assert.NoError(t, reportCtx.Err())

	rep.gate <- struct{}{}
	s.Wait()
	res := <-done
	require.NoError(t, res.Err)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.ReportsSent)
	assert.Equal(t, 0, snap.ReportsFailed)
	assert.Equal(t, 7.0, snap.ConfirmedBalance)
	assert.Equal(t, 7.0, snap.DisplayBalance)
}

func TestSession_StopLetsInFlightReportFinish(t *testing.T) {
	rep := &fakeReporter{perCall: 7, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, clock := newTestSession(t, rep, TransportSample{NumPeers: 1})
	require.NoError(t, s.Start(context.Background()))

	done := make(chan Result, 1)
	go func() { done <- s.ReportNow() }()
	<-rep.entered

	s.Stop()
	rep.mu.Lock()
	ctx := rep.ctxs[0]
	rep.mu.Unlock()
	assert.NoError(t, ctx.Err())

	rep.gate <- struct{}{}
	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, 7.0, s.Snapshot().ConfirmedBalance)

	clock.Advance(10 * DefaultInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rep.calls())
	assert.ErrorIs(t, s.ReportNow().Err, ErrNotActive)
}

func TestSession_ErrorKeepsDisplayedBalance(t *testing.T) {
	cases := []error{
		fmt.Errorf("%w: dial tcp", ErrNetworkFailure),
		fmt.Errorf("%w: 400 invalid request", ErrRejected),
		fmt.Errorf("%w: 500 storage failure", ErrStorageUnavailable),
		errors.New("unexpected"),
	}
	for _, cause := range cases {
		t.Run(cause.Error(), func(t *testing.T) {
			rep := &fakeReporter{err: cause}
			s, _ := newTestSession(t, rep, TransportSample{UploadSpeed: 1_000_000, NumPeers: 1})
			s.SetConfirmedBalance(30)
			require.NoError(t, s.Start(context.Background()))
			defer s.Stop()

			var got Result
			s.OnResult(func(r Result) { got = r })

			res := s.ReportNow()
			assert.ErrorIs(t, res.Err, cause)
			assert.Equal(t, res, got)

			snap := s.Snapshot()
			assert.Equal(t, 38.0, snap.DisplayBalance)
			assert.Equal(t, 30.0, snap.ConfirmedBalance)
			assert.Equal(t, 1, snap.ReportsFailed)
			assert.ErrorIs(t, snap.LastError, cause)
		})
	}
}

func TestSession_Transitions(t *testing.T) {
	s, _ := newTestSession(t, &fakeReporter{}, TransportSample{})

	assert.ErrorIs(t, s.ReportNow().Err, ErrNotActive)
	assert.ErrorIs(t, s.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Resume(), ErrInvalidTransition)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Resume(), ErrInvalidTransition)
	assert.Equal(t, StateActive, s.Snapshot().State)

	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.Snapshot().State)
	assert.ErrorIs(t, s.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidTransition)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "state(9)", State(9).String())
}
