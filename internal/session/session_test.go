package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/glimpse/internal/config"
	"github.com/dyluth/glimpse/internal/trial"
	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rig is a display whose pulses are fed by the test, with a clock that
// follows the last pulse.
type rig struct {
	hz     float64
	err    error
	pulses chan time.Time

	mu  sync.Mutex
	now time.Time
}

func newRig() *rig {
	return &rig{
		hz:     100,
		pulses: make(chan time.Time),
		now:    time.Unix(1700000000, 0),
	}
}

func (r *rig) RefreshRate(ctx context.Context) (float64, error) {
	return r.hz, r.err
}

func (r *rig) Pulses(ctx context.Context) <-chan time.Time {
	return r.pulses
}

func (r *rig) clock() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// pulse advances the clock by one refresh period and delivers a pulse.
func (r *rig) pulse(done <-chan struct{}) bool {
	r.mu.Lock()
	r.now = r.now.Add(10 * time.Millisecond)
	t := r.now
	r.mu.Unlock()

	select {
	case r.pulses <- t:
		return true
	case <-done:
		return false
	}
}

func seconds(v float64) *config.Seconds {
	s := config.Seconds(v)
	return &s
}

func testConfig(t *testing.T, trials int) *config.GlimpseConfig {
	t.Helper()
	rows, cols := 16, 16
	cfg := &config.GlimpseConfig{
		Version: "1.0",
		Session: config.SessionConfig{ID: "test-session", Seed: 99, Trials: trials},
		Display: config.DisplayConfig{StimulusHz: 100, RefreshHz: 100},
		Grid:    config.GridConfig{Rows: &rows, Cols: &cols},
		Timing: config.TimingConfig{
			Cue:        seconds(0.05),
			Fixation:   seconds(0.05),
			InterTrial: seconds(0.05),
			MinOnset:   seconds(0.1),
			MaxOnset:   seconds(0.1),
			Stimulus:   seconds(0.1),
			RTDelay:    seconds(0),
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

type runner struct {
	sess *Session
	rig  *rig
	errc chan error
}

func start(t *testing.T, sess *Session, r *rig) *runner {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- sess.Run(context.Background()) }()
	return &runner{sess: sess, rig: r, errc: errc}
}

// feed delivers up to n pulses, stopping early when the session ends.
func (rn *runner) feed(n int) {
	for i := 0; i < n; i++ {
		if !rn.rig.pulse(rn.sess.Done()) {
			return
		}
	}
}

func (rn *runner) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-rn.errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.EqualError(t, err, "config is required")
}

func TestNew_FallbackRefreshRate(t *testing.T) {
	r := newRig()
	r.err = errors.New("no vsync")

	cfg := testConfig(t, 1)
	cfg.Display.StimulusHz = 30
	cfg.Display.FallbackHz = 60

	sess, err := New(context.Background(), Options{Config: cfg, Display: r, Clock: r.clock})
	require.NoError(t, err)
	assert.Equal(t, 30.0, sess.RealizedRate())
	assert.Equal(t, "test-session", sess.ID())
	assert.Equal(t, uint64(99), sess.Seed())
}

func TestNew_GeneratesSessionIDAndSeed(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Session.ID = ""
	cfg.Session.Seed = 0

	sess, err := New(context.Background(), Options{Config: cfg, Display: newRig()})
	require.NoError(t, err)
	assert.Len(t, sess.ID(), 36)
	assert.NotZero(t, sess.Seed())
}

func TestRun_CompletesConfiguredTrials(t *testing.T) {
	r := newRig()
	sink := eventlog.NewMemorySink()

	sess, err := New(context.Background(), Options{
		Config:  testConfig(t, 2),
		Display: r,
		Sinks:   []eventlog.Sink{sink},
		Clock:   r.clock,
	})
	require.NoError(t, err)

	rn := start(t, sess, r)
	rn.feed(1000)
	rn.wait(t)

	results := sess.Results()
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, i+1, res.Index)
		assert.Equal(t, trial.OutcomeMiss, res.Outcome)
		assert.False(t, res.Aborted)
		assert.Equal(t, 10, res.NoiseFrames)
	}

	assert.Len(t, sink.OfType(eventlog.EventTrialStart), 2)
	assert.Len(t, sink.OfType(eventlog.EventTrialEnd), 2)

	frames := sink.OfType(eventlog.EventFrame)
	require.NotEmpty(t, frames)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].FrameNumber, frames[i-1].FrameNumber)
	}
	for _, ev := range sink.Events() {
		assert.Equal(t, "test-session", ev.SessionID)
	}

	snap := sess.Snapshot()
	assert.True(t, snap.Done)
	assert.Equal(t, 2, snap.Completed)
}

func TestRun_ResponseDuringCoherentIsHit(t *testing.T) {
	r := newRig()
	var (
		sess *Session
		once sync.Once
		out  trial.ResponseOutcome
	)

	sess, err := New(context.Background(), Options{
		Config:  testConfig(t, 1),
		Display: r,
		Clock:   r.clock,
		OnFrame: func(f trial.Frame) {
			if f.Phase == trial.PhaseCoherent {
				once.Do(func() { out = sess.Respond(f.Time) })
			}
		},
	})
	require.NoError(t, err)

	rn := start(t, sess, r)
	rn.feed(1000)
	rn.wait(t)

	assert.Equal(t, trial.ActionRecorded, out.Action)
	results := sess.Results()
	require.Len(t, results, 1)
	assert.Equal(t, trial.OutcomeHit, results[0].Outcome)
	assert.True(t, results[0].HasReactionTime)
	assert.Zero(t, results[0].ReactionTime)
}

func TestStop_FinalizesInFlightTrial(t *testing.T) {
	r := newRig()
	sink := eventlog.NewMemorySink()

	sess, err := New(context.Background(), Options{
		Config:  testConfig(t, 0),
		Display: r,
		Sinks:   []eventlog.Sink{sink},
		Clock:   r.clock,
	})
	require.NoError(t, err)

	rn := start(t, sess, r)
	rn.feed(15)
	sess.Stop()
	rn.wait(t)

	results := sess.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
	assert.Equal(t, trial.OutcomeMiss, results[0].Outcome)

	ends := sink.OfType(eventlog.EventTrialEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, eventlog.ResponseMiss, ends[0].Response)

	// stopping twice is a no-op
	sess.Stop()
	assert.Len(t, sess.Results(), 1)
}

func TestRun_ContextCancelStops(t *testing.T) {
	r := newRig()
	sess, err := New(context.Background(), Options{Config: testConfig(t, 0), Display: r, Clock: r.clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sess.Run(ctx) }()

	for i := 0; i < 5; i++ {
		r.pulse(sess.Done())
	}
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
	<-sess.Done()
	require.Len(t, sess.Results(), 1)
	assert.True(t, sess.Results()[0].Aborted)
}

func TestRun_AfterStop(t *testing.T) {
	sess, err := New(context.Background(), Options{Config: testConfig(t, 1), Display: newRig()})
	require.NoError(t, err)

	sess.Stop()
	assert.EqualError(t, sess.Run(context.Background()), "session already stopped")
}

func TestPauseResume(t *testing.T) {
	r := newRig()
	sess, err := New(context.Background(), Options{Config: testConfig(t, 0), Display: r, Clock: r.clock})
	require.NoError(t, err)

	assert.False(t, sess.Pause(), "cannot pause before start")

	rn := start(t, sess, r)
	rn.feed(3)
	assert.True(t, sess.Pause())
	assert.True(t, sess.Snapshot().Paused)
	assert.Equal(t, trial.ActionIgnored, sess.Respond(r.clock()).Action)
	assert.True(t, sess.Resume())
	assert.False(t, sess.Resume())

	sess.Stop()
	rn.wait(t)
}

type failingSink struct {
	*eventlog.MemorySink
}

func (failingSink) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name   string
		sinks  []eventlog.Sink
		status int
		health string
	}{
		{"no pingable sinks", []eventlog.Sink{eventlog.NewMemorySink()}, http.StatusOK, "healthy"},
		{"sink unreachable", []eventlog.Sink{failingSink{eventlog.NewMemorySink()}}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := New(context.Background(), Options{Config: testConfig(t, 1), Display: newRig(), Sinks: tt.sinks})
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			sess.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.health, body.Status)
		})
	}
}

func TestHandler_Status(t *testing.T) {
	r := newRig()
	sess, err := New(context.Background(), Options{Config: testConfig(t, 2), Display: r, Clock: r.clock})
	require.NoError(t, err)

	handler := sess.Handler()
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	var before StatusResponse
	require.NoError(t, json.Unmarshal(get("/status").Body.Bytes(), &before))
	assert.Equal(t, trial.PhaseIdle, before.Phase)
	assert.Equal(t, "test-session", before.Session)
	assert.Empty(t, before.Results)

	rn := start(t, sess, r)
	rn.feed(1000)
	rn.wait(t)

	rec := get("/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var after StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.True(t, after.Done)
	assert.Equal(t, 2, after.Completed)
	assert.Len(t, after.Results, 2)
	assert.Equal(t, 2, after.Summary.Misses)

	assert.Equal(t, http.StatusOK, get("/trials/2").Code)
	assert.Equal(t, http.StatusNotFound, get("/trials/3").Code)
	assert.Equal(t, http.StatusBadRequest, get("/trials/first").Code)
}

func TestHandler_Controls(t *testing.T) {
	sess, err := New(context.Background(), Options{Config: testConfig(t, 1), Display: newRig()})
	require.NoError(t, err)

	post := func(path string) ActionResponse {
		rec := httptest.NewRecorder()
		sess.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body ActionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	resp := post("/respond")
	assert.Equal(t, string(trial.ActionIgnored), resp.Action)
	assert.False(t, resp.Changed)
	assert.False(t, post("/pause").Changed)
	assert.False(t, post("/resume").Changed)

	rec := httptest.NewRecorder()
	sess.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/respond", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
