package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/metrics"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/scheduler"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/sender"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storage"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrCycleInProgress = errors.New("poll cycle is already running")

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultSendTimeout   = 15 * time.Second
	defaultLedgerTimeout = 5 * time.Second
)

type Config struct {
	Destination       string
	Offsets           []int
	Template          string
	Location          *time.Location
	TimeLayout        string
	RetentionDays     int
	SendRatePerMinute int
	FetchTimeout      time.Duration
	SendTimeout       time.Duration
	LedgerTimeout     time.Duration
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Fetched      int
	Rejected     int
	Due          int
	Sent         int
	Failed       int
	RecordFailed int
}

// App is the poll loop: fetch events, find due reminders, deliver and record them.
// Cycles and purges never overlap.
type App struct {
	mu        sync.Mutex
	source    calendar.Source
	ledger    storage.Ledger
	sender    sender.Sender
	scheduler *scheduler.Scheduler
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	config    Config
}

type Option func(*App)

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

func New(source calendar.Source, ledger storage.Ledger, s sender.Sender, config Config, opts ...Option) *App {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaultFetchTimeout
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultSendTimeout
	}
	if config.LedgerTimeout <= 0 {
		config.LedgerTimeout = defaultLedgerTimeout
	}

	limit := rate.Inf
	burst := 1
	if config.SendRatePerMinute > 0 {
		limit = rate.Limit(float64(config.SendRatePerMinute) / 60.0)
		burst = max(1, config.SendRatePerMinute/10)
	}

	a := &App{
		source: source,
		ledger: ledger,
		sender: s,
		scheduler: scheduler.New(ledger,
			scheduler.WithLocation(config.Location),
			scheduler.WithTimeLayout(config.TimeLayout)),
		limiter: rate.NewLimiter(limit, burst),
		config:  config,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCycle runs one fetch-compute-dispatch-record pass. Errors mean the cycle ended early
// and will be retried on the next tick; individual delivery failures are not errors.
func (a *App) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	if !a.mu.TryLock() {
		a.metrics.Cycle(metrics.CycleSkipped, 0)
		return CycleResult{}, ErrCycleInProgress
	}
	defer a.mu.Unlock()

	started := time.Now()
	res, result, err := a.runCycle(ctx, now)
	a.metrics.Cycle(result, time.Since(started))
	return res, err
}

func (a *App) runCycle(ctx context.Context, now time.Time) (CycleResult, string, error) {
	var res CycleResult

	fetchCtx, cancel := context.WithTimeout(ctx, a.config.FetchTimeout)
	raws, err := a.source.ListUpcomingEvents(fetchCtx)
	cancel()
	if err != nil {
		log.Errorf("failed to fetch events: %v", err)
		return res, metrics.CycleFetchError, fmt.Errorf("failed to fetch events: %w", err)
	}
	events := calendar.NormalizeAll(raws, a.config.Location)
	res.Fetched = len(events)
	res.Rejected = len(raws) - len(events)
	a.metrics.Fetched(res.Fetched, res.Rejected)

	checkCtx, cancel := context.WithTimeout(ctx, a.config.LedgerTimeout)
	due, err := a.scheduler.ComputeDue(checkCtx, now, events, a.config.Offsets, a.config.Template)
	cancel()
	if err != nil {
		log.Errorf("failed to compute due notifications: %v", err)
		return res, metrics.CycleLedgerError, err
	}
	res.Due = len(due)
	a.metrics.Due(res.Due)
	log.Debugf("cycle at %s: %d events, %d due", now.Format(time.RFC3339), res.Fetched, res.Due)

	for _, d := range due {
		if ctx.Err() != nil {
			log.Warnf("cycle interrupted, %d notifications left for the next run", res.Due-res.Sent-res.Failed)
			break
		}
		if err := a.limiter.Wait(ctx); err != nil {
			log.Warnf("send rate limit wait aborted, %d notifications left for the next run: %v",
				res.Due-res.Sent-res.Failed, err)
			break
		}
		a.dispatch(ctx, d, &res)
	}

	log.Infof("cycle finished: %d events, %d due, %d sent, %d failed", res.Fetched, res.Due, res.Sent, res.Failed)
	return res, metrics.CycleOK, nil
}

func (a *App) dispatch(ctx context.Context, d scheduler.Due, res *CycleResult) {
	entry := log.WithField("event", d.Event.ID).WithField("lead", d.LeadMinutes)

	sendCtx, cancel := context.WithTimeout(ctx, a.config.SendTimeout)
	err := a.sender.Send(sendCtx, a.config.Destination, d.Message)
	cancel()
	if err != nil {
		res.Failed++
		a.metrics.DeliveryFailed()
		entry.Errorf("failed to send notification: %v", err)
		return
	}
	res.Sent++
	a.metrics.Sent()
	entry.Infof("notification sent for %q", d.Event.Title)

	// Recording must not be cut short by shutdown once the message is out.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.LedgerTimeout)
	err = a.ledger.MarkNotified(recordCtx, d.Event.ID, d.LeadMinutes)
	cancel()
	if err != nil {
		res.RecordFailed++
		a.metrics.RecordFailed()
		entry.Errorf("notification sent but not recorded, it may be sent again: %v", err)
	}
}

// Purge removes ledger records older than the configured retention.
func (a *App) Purge(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.LedgerTimeout)
	defer cancel()

	removed, err := a.ledger.Purge(ctx, a.config.RetentionDays)
	if err != nil {
		log.Errorf("failed to purge notifications: %v", err)
		return 0, err
	}
	remaining, err := a.ledger.Count(ctx)
	if err != nil {
		log.Warnf("failed to count notifications: %v", err)
	}
	a.metrics.Purged(removed, remaining)
	if removed > 0 {
		log.Infof("cleaned up %d old notification records", removed)
	}
	return removed, nil
}

// Notifications lists every ledger record.
func (a *App) Notifications(ctx context.Context) ([]storage.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.LedgerTimeout)
	defer cancel()
	return a.ledger.ListAll(ctx)
}
