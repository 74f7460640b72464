// Package pipeline runs the per-cycle sequence: acquire a reading, validate,
// build the message, publish or park it in the offline queue, then try to
// flush the backlog. Everything runs on one goroutine; a backoff delay
// blocks the whole cycle by design.
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/carbonready/fieldnode/internal/msg"
	"github.com/carbonready/fieldnode/internal/queue"
	"github.com/carbonready/fieldnode/internal/sensor"
	"github.com/carbonready/fieldnode/internal/tele"
)

const serviceInterval = 1 * time.Second

type Pipeline struct {
	alive    *alive.Alive
	log      *log.Logger
	source   sensor.Source
	builder  msg.Builder
	queue    *queue.Queue
	tele     *tele.Controller
	interval time.Duration
}

func New(source sensor.Source, builder msg.Builder, q *queue.Queue, ctrl *tele.Controller, interval time.Duration, lg *log.Logger) *Pipeline {
	if interval <= 0 {
		panic("code error pipeline interval must be positive")
	}
	return &Pipeline{
		alive:    alive.NewAlive(),
		log:      lg,
		source:   source,
		builder:  builder,
		queue:    q,
		tele:     ctrl,
		interval: interval,
	}
}

// Run blocks until Stop. The first cycle starts immediately, then one per
// interval tick; between cycles the transport gets serviced while idle.
func (p *Pipeline) Run() {
	if !p.alive.Add(1) {
		return
	}
	defer p.alive.Done()

	cycleTick := time.NewTicker(p.interval)
	defer cycleTick.Stop()
	serviceTick := time.NewTicker(serviceInterval)
	defer serviceTick.Stop()

	p.Cycle()
	for {
		select {
		case <-p.alive.StopChan():
			return
		case <-cycleTick.C:
			p.Cycle()
		case <-serviceTick.C:
			p.tele.Service()
		}
	}
}

func (p *Pipeline) Stop() {
	p.alive.Stop()
	p.alive.WaitTasks()
}

// Cycle runs one acquire-build-deliver pass.
func (p *Pipeline) Cycle() {
	r, err := p.source.Acquire()
	if err != nil {
		p.log.Errorf("acquire: %v", err)
		return
	}
	r = r.Revalidate()
	if !r.Valid {
		// skip the whole cycle: nothing is built, queued or transmitted
		p.log.Warnf("reading invalid, skipping cycle: %+v", r)
		return
	}

	m, err := p.builder.Build(r)
	if err != nil {
		p.log.Errorf("build: %v", err)
		return
	}

	if err := p.tele.Publish(m); err != nil {
		p.log.Errorf("publish failed after %d retries: %v", p.tele.LastRetries(), err)
		p.park(m)
	}

	p.flush()
}

// park stores a message that exhausted its publish tries. A full queue loses
// this newest message, distinct from the publish failure that led here.
func (p *Pipeline) park(m []byte) {
	err := p.queue.Enqueue(m)
	switch {
	case err == nil:
	case errors.Cause(err) == queue.ErrFull:
		p.log.Errorf("offline queue full (%d), newest reading lost", p.queue.Count())
	default:
		p.log.Errorf("enqueue: %v", err)
	}
}

// flush tries to deliver the whole backlog oldest-first. The queue is
// cleared only after every entry was acknowledged; on the first failure the
// backlog stays untouched for the next cycle.
func (p *Pipeline) flush() {
	if p.queue.Count() == 0 {
		return
	}
	if !p.tele.IsConnected() {
		if err := p.tele.Connect(); err != nil {
			p.log.Debugf("flush deferred, no connection: %v", err)
			return
		}
	}

	entries := p.queue.DrainAll()
	for i, e := range entries {
		if err := p.tele.Publish(e); err != nil {
			p.log.Errorf("flush stopped at %d/%d: %v", i+1, len(entries), err)
			return
		}
	}
	if err := p.queue.Clear(); err != nil {
		p.log.Errorf("flush delivered %d but clear failed: %v", len(entries), err)
		return
	}
	p.log.Infof("flushed %d offline messages", len(entries))
}
