// Package poller drives the periodic refresh of the today view.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher is the single operation the poller needs from the service.
type Refresher interface {
	RefreshToday(ctx context.Context) error
}

// Polls counts refresh passes by outcome.
var Polls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "energy_poll_total",
		Help: "Aggregation refresh passes by result.",
	},
	[]string{"result"},
)

// Poller schedules aggregation passes at a fixed interval. The service
// itself enforces the single-flight guard, so an overrunning pass just
// causes the next tick to be skipped there.
type Poller struct {
	ctx       context.Context
	refresher Refresher
	log       *logrus.Logger
	cron      *cron.Cron
	interval  time.Duration
}

// New creates a Poller refreshing every interval.
func New(ctx context.Context, refresher Refresher, interval time.Duration, log *logrus.Logger) *Poller {
	return &Poller{
		ctx:       ctx,
		refresher: refresher,
		log:       log,
		cron:      cron.New(),
		interval:  interval,
	}
}

// Start begins polling. The first pass runs immediately so the today
// view is populated before the first tick.
func (p *Poller) Start() error {
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, p.collect); err != nil {
		return fmt.Errorf("scheduling poll: %w", err)
	}
	go p.collect()
	p.cron.Start()
	return nil
}

// Stop halts the schedule. A pass already running is not interrupted.
func (p *Poller) Stop() {
	p.cron.Stop()
}

func (p *Poller) collect() {
	timeout := 2 * p.interval
	if timeout < time.Minute {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := p.refresher.RefreshToday(ctx); err != nil {
		Polls.WithLabelValues("error").Inc()
		p.log.WithError(err).Error("refresh pass failed, keeping previous view")
		return
	}
	Polls.WithLabelValues("ok").Inc()
	p.log.WithFields(logrus.Fields{
		"duration": time.Since(started).String(),
	}).Debug("refresh pass finished")
}
