package livecall

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/hamsa"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/twilio"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const SnapshotEvent = "live_calls"

type JobSource interface {
	ListJobs(ctx context.Context, limit int) ([]hamsa.Job, error)
}

type CallSource interface {
	ListActiveCalls(ctx context.Context) ([]twilio.Call, error)
}

type Options struct {
	Interval  time.Duration
	MaxAge    time.Duration
	JobsLimit int
	// PollTimeout bounds one poll. Zero means Interval * 5.
	PollTimeout time.Duration
}

func OptionsFromConfig() Options {
	return Options{
		Interval:  time.Duration(config.Conf.LivePollInterval) * time.Second,
		MaxAge:    time.Duration(config.Conf.LiveMaxJobAge) * time.Second,
		JobsLimit: config.Conf.HamsaJobsLimit,
	}
}

// Monitor keeps the live call snapshot fresh while at least one viewer is
// attached. Polls may overlap; each takes a sequence number and only a
// result newer than the last applied one replaces the snapshot.
type Monitor struct {
	jobs    JobSource
	calls   CallSource
	broker  *Broker
	options Options
	now     func() time.Time

	sequence atomic.Uint64

	mu          sync.Mutex
	snapshot    []LiveCall
	appliedSeq  uint64
	hasSnapshot bool
	viewers     int
	cancel      context.CancelFunc
	polls       sync.WaitGroup
}

// NewMonitor builds a monitor. calls may be nil when no telephony account
// is configured; the carrier side is then always empty.
func NewMonitor(jobs JobSource, calls CallSource, broker *Broker, options Options) *Monitor {
	if options.Interval <= 0 {
		options.Interval = 2 * time.Second
	}

	if options.PollTimeout <= 0 {
		options.PollTimeout = options.Interval * 5
	}

	return &Monitor{
		jobs:    jobs,
		calls:   calls,
		broker:  broker,
		options: options,
		now:     time.Now,
	}
}

// Acquire registers a viewer and starts the poll loop for the first one.
// The returned func releases the viewer; the loop stops with the last.
func (monitor *Monitor) Acquire() func() {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	monitor.viewers++
	if monitor.viewers == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		monitor.cancel = cancel

		monitor.polls.Add(1)

		go monitor.loop(ctx)

		logging.Logger.Info("Live call polling started", zap.Duration("interval", monitor.options.Interval))
	}

	var once sync.Once

	return func() {
		once.Do(monitor.release)
	}
}

func (monitor *Monitor) release() {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	monitor.viewers--
	if monitor.viewers > 0 {
		return
	}

	monitor.viewers = 0

	if monitor.cancel != nil {
		monitor.cancel()
		monitor.cancel = nil

		logging.Logger.Info("Live call polling stopped")
	}
}

// Running reports whether the poll loop is active.
func (monitor *Monitor) Running() bool {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	return monitor.cancel != nil
}

// Close stops the loop regardless of viewers and waits for in-flight polls.
func (monitor *Monitor) Close() {
	monitor.mu.Lock()
	if monitor.cancel != nil {
		monitor.cancel()
		monitor.cancel = nil
	}

	monitor.viewers = 0
	monitor.mu.Unlock()

	monitor.polls.Wait()
}

func (monitor *Monitor) loop(ctx context.Context) {
	defer monitor.polls.Done()
	defer handlePanic()

	ticker := time.NewTicker(monitor.options.Interval)
	defer ticker.Stop()

	monitor.spawnPoll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.spawnPoll(ctx)
		}
	}
}

// spawnPoll does not wait for an earlier poll to finish.
func (monitor *Monitor) spawnPoll(ctx context.Context) {
	monitor.polls.Add(1)

	go func() {
		defer monitor.polls.Done()
		defer handlePanic()

		monitor.Poll(ctx)
	}()
}

// Poll fetches both sources once and applies the result if it is still the
// newest. It reports whether the snapshot was replaced.
func (monitor *Monitor) Poll(ctx context.Context) bool {
	seq := monitor.sequence.Add(1)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, monitor.options.PollTimeout)
	defer cancel()

	jobs, calls, result := monitor.fetch(ctx)
	prometheus.LivePollDuration.WithLabelValues(result).Observe(prometheus.Since(start))

	if result == pollFailed {
		logging.Logger.Warn("[Poll] Both live call sources failed, keeping previous snapshot",
			zap.Uint64("sequence", seq),
		)

		return false
	}

	live := Reconcile(jobs, calls, monitor.now(), monitor.options.MaxAge)

	return monitor.apply(seq, live)
}

const (
	pollOK      = "ok"
	pollPartial = "partial"
	pollFailed  = "failed"
)

func (monitor *Monitor) fetch(ctx context.Context) ([]hamsa.Job, []twilio.Call, string) {
	var (
		jobs     []hamsa.Job
		calls    []twilio.Call
		jobsErr  error
		callsErr error
		group    errgroup.Group
	)

	group.Go(func() error {
		jobs, jobsErr = monitor.jobs.ListJobs(ctx, monitor.options.JobsLimit)
		if jobsErr != nil {
			logging.Logger.Warn("[Poll] Failed to list voice agent jobs", zap.String("error", jobsErr.Error()))
		}

		return nil
	})

	if monitor.calls != nil {
		group.Go(func() error {
			calls, callsErr = monitor.calls.ListActiveCalls(ctx)
			if callsErr != nil {
				logging.Logger.Warn("[Poll] Failed to list telephony calls", zap.String("error", callsErr.Error()))
			}

			return nil
		})
	}

	_ = group.Wait()

	switch {
	case jobsErr != nil && (callsErr != nil || monitor.calls == nil):
		return nil, nil, pollFailed
	case jobsErr != nil || callsErr != nil:
		return jobs, calls, pollPartial
	default:
		return jobs, calls, pollOK
	}
}

// apply swaps in live and broadcasts it under one lock, so subscribers see
// snapshots in sequence order.
func (monitor *Monitor) apply(seq uint64, live []LiveCall) bool {
	data, err := json.Marshal(live)
	if err != nil {
		logging.Logger.Error("Failed to encode live call snapshot", zap.String("error", err.Error()))
		data = nil
	}

	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	if seq <= monitor.appliedSeq {
		prometheus.StalePollResults.Inc()
		logging.Logger.Debug("Discarding stale live call poll result",
			zap.Uint64("sequence", seq),
			zap.Uint64("applied_sequence", monitor.appliedSeq),
		)

		return false
	}

	monitor.snapshot = live
	monitor.appliedSeq = seq
	monitor.hasSnapshot = true

	prometheus.LiveCalls.Set(float64(len(live)))

	if monitor.broker != nil && data != nil {
		monitor.broker.Publish(SnapshotEvent, data)
	}

	return true
}

// Current returns the last applied snapshot and whether one exists.
func (monitor *Monitor) Current() ([]LiveCall, bool) {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	return slices.Clone(monitor.snapshot), monitor.hasSnapshot
}

// Snapshot returns the current snapshot while the loop runs, and polls once
// otherwise. A failed one-shot poll returns the last known snapshot.
func (monitor *Monitor) Snapshot(ctx context.Context) []LiveCall {
	if monitor.Running() {
		live, ok := monitor.Current()
		if ok {
			return live
		}
	}

	monitor.Poll(ctx)

	live, _ := monitor.Current()
	if live == nil {
		live = []LiveCall{}
	}

	return live
}

func handlePanic() {
	r := recover()
	if r != nil {
		logging.Logger.Error("Recovered from panic in live call poller", zap.Any("panic", r))
	}
}
