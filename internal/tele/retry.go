package tele

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/juju/errors"

	"github.com/carbonready/fieldnode/helpers"
)

const (
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultMaxRetries     = 3
)

// Controller contract:
// - Publish blocks the calling goroutine through the whole backoff window;
//   the device has no other work to do during a cycle, so latency is traded
//   for reliability.
// - Publish returns nil only on acknowledged delivery; after exhaustion the
//   message belongs to the caller (normally the offline queue).
// - there is no cancellation mid-publish: once started, a retry sequence
//   runs to success or exhaustion.
type Controller struct {
	log         *log.Logger
	transport   Transporter
	baseDelay   time.Duration
	maxRetries  int
	lastRetries int
	sleep       func(time.Duration) // swapped in tests
}

func NewController(transport Transporter, conf Config, lg *log.Logger) *Controller {
	return &Controller{
		log:        lg,
		transport:  transport,
		baseDelay:  helpers.IntMillisecondDefault(conf.RetryBaseDelayMs, DefaultRetryBaseDelay),
		maxRetries: helpers.IntDefault(conf.MaxRetries, DefaultMaxRetries),
		sleep:      time.Sleep,
	}
}

// ConnectRetry tries to establish the first session at boot under an
// exponential backoff schedule. Exhaustion is not fatal: the device keeps
// cycling and Publish reconnects on demand.
func (self *Controller) ConnectRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = self.baseDelay
	err := backoff.Retry(
		func() error { return self.transport.Connect() },
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(self.maxRetries)), ctx),
	)
	return errors.Annotate(err, "tele connect")
}

func (self *Controller) Connect() error    { return self.transport.Connect() }
func (self *Controller) IsConnected() bool { return self.transport.IsConnected() }
func (self *Controller) Service()          { self.transport.Service() }
func (self *Controller) Close()            { self.transport.Close() }

// LastRetries reports how many retries the previous Publish consumed.
func (self *Controller) LastRetries() int { return self.lastRetries }

// Publish delivers payload with up to maxRetries+1 total tries. Before retry
// attempt k the controller sleeps baseDelay*2^k and re-establishes the
// session if it dropped.
func (self *Controller) Publish(payload []byte) error {
	if !self.transport.IsConnected() {
		if err := self.transport.Connect(); err != nil {
			self.log.Errorf("connect before publish: %v", err)
		}
	}

	self.lastRetries = 0
	var lastErr error
	for attempt := 0; attempt <= self.maxRetries; attempt++ {
		if attempt > 0 {
			self.lastRetries = attempt
			delay := self.backoffDelay(attempt)
			self.log.Infof("retry %d/%d after %v", attempt, self.maxRetries, delay)
			self.sleep(delay)
			if !self.transport.IsConnected() {
				if err := self.transport.Connect(); err != nil {
					self.log.Errorf("reconnect: %v", err)
				}
			}
		}
		if err := self.transport.Publish(payload); err != nil {
			lastErr = err
			self.log.Errorf("publish attempt %d/%d: %v", attempt+1, self.maxRetries+1, err)
			continue
		}
		return nil
	}
	return errors.Annotatef(lastErr, "publish failed after %d attempts", self.maxRetries+1)
}

// backoffDelay for retry attempt k is baseDelay*2^k, k starting at 1.
func (self *Controller) backoffDelay(attempt int) time.Duration {
	return self.baseDelay << uint(attempt)
}
