package pipeline

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonready/fieldnode/internal/msg"
	"github.com/carbonready/fieldnode/internal/queue"
	"github.com/carbonready/fieldnode/internal/reading"
	"github.com/carbonready/fieldnode/internal/sensor"
	"github.com/carbonready/fieldnode/internal/tele"
)

type fixture struct {
	mock *tele.Mock
	q    *queue.Queue
	p    *Pipeline
}

func newFixture(t *testing.T, src sensor.Source, mock *tele.Mock, capacity int) *fixture {
	lg := log.New(os.Stderr)
	lg.SetPrefix(t.Name())
	q := queue.Open(t.TempDir(), capacity, lg)
	ctrl := tele.NewController(mock, tele.Config{RetryBaseDelayMs: 1, MaxRetries: 1}, lg)
	b := msg.Builder{FarmID: "F1", DeviceID: "D1"}
	return &fixture{
		mock: mock,
		q:    q,
		p:    New(src, b, q, ctrl, time.Minute, lg),
	}
}

func goodSource() sensor.Source {
	return sensor.SourceFunc(func() (reading.Reading, error) {
		return reading.Reading{
			SoilMoisture:    45,
			SoilTemperature: 22.5,
			AirTemperature:  25,
			Humidity:        60,
			Timestamp:       1700000000,
		}, nil
	})
}

func TestCycleHappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t, goodSource(), &tele.Mock{T: t}, 10)
	f.p.Cycle()
	assert.Equal(t, 1, f.mock.PublishCalls)
	assert.Equal(t, 0, f.q.Count())
	require.Len(t, f.mock.Published, 1)
	assert.NoError(t, msg.Verify(f.mock.Published[0]))
}

func TestCycleSkipsInvalidReading(t *testing.T) {
	t.Parallel()
	src := sensor.SourceFunc(func() (reading.Reading, error) {
		return reading.Reading{
			SoilMoisture:    reading.ErrorValue,
			SoilTemperature: 22.5,
			AirTemperature:  25,
			Humidity:        60,
			Timestamp:       1700000000,
		}, nil
	})
	f := newFixture(t, src, &tele.Mock{T: t}, 10)
	f.p.Cycle()
	assert.Equal(t, 0, f.mock.PublishCalls, "nothing transmitted")
	assert.Equal(t, 0, f.q.Count(), "nothing stored")
}

func TestCycleIgnoresSourceValidFlag(t *testing.T) {
	t.Parallel()
	// a source claiming validity for an out-of-range reading is overruled
	src := sensor.SourceFunc(func() (reading.Reading, error) {
		return reading.Reading{
			SoilMoisture:    200,
			SoilTemperature: 22.5,
			AirTemperature:  25,
			Humidity:        60,
			Timestamp:       1700000000,
			Valid:           true,
		}, nil
	})
	f := newFixture(t, src, &tele.Mock{T: t}, 10)
	f.p.Cycle()
	assert.Equal(t, 0, f.mock.PublishCalls)
	assert.Equal(t, 0, f.q.Count())
}

func TestCycleAcquireError(t *testing.T) {
	t.Parallel()
	src := sensor.SourceFunc(func() (reading.Reading, error) {
		return reading.Reading{}, errors.New("probe timeout")
	})
	f := newFixture(t, src, &tele.Mock{T: t}, 10)
	f.p.Cycle()
	assert.Equal(t, 0, f.mock.PublishCalls)
	assert.Equal(t, 0, f.q.Count())
}

func TestCycleEnqueuesOnPublishFailure(t *testing.T) {
	t.Parallel()
	e := errors.New("broker down")
	// controller tries twice per publish; flush connect is refused so the
	// backlog stays for the next cycle
	mock := &tele.Mock{
		T:                  t,
		PublishErrs:        []error{e, e},
		ConnectErrs:        []error{nil, e, e},
		DisconnectAfterErr: true,
	}
	f := newFixture(t, goodSource(), mock, 10)
	f.p.Cycle()
	assert.Equal(t, 2, f.mock.PublishCalls, "MaxRetries+1 tries")
	require.Equal(t, 1, f.q.Count())
	assert.NoError(t, msg.Verify(f.q.DrainAll()[0]))
}

func TestCycleDropsNewestWhenQueueFull(t *testing.T) {
	t.Parallel()
	e := errors.New("broker down")
	mock := &tele.Mock{
		T:                  t,
		PublishErrs:        []error{e, e},
		ConnectErrs:        []error{nil, e, e},
		DisconnectAfterErr: true,
	}
	f := newFixture(t, goodSource(), mock, 1)
	require.NoError(t, f.q.Enqueue([]byte(`{"old":"entry"}`)))

	f.p.Cycle()
	assert.Equal(t, 1, f.q.Count(), "stored backlog is kept, newest dropped")
	assert.Equal(t, `{"old":"entry"}`, string(f.q.DrainAll()[0]))
}

func TestFlushDeliversBacklogInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, goodSource(), &tele.Mock{T: t}, 10)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.q.Enqueue([]byte(fmt.Sprintf("backlog%d", i))))
	}

	f.p.Cycle()
	// current reading first, then the backlog oldest-first
	require.Equal(t, 4, f.mock.PublishCalls)
	assert.Equal(t, 0, f.q.Count())
	assert.Equal(t, "backlog0", string(f.mock.Published[1]))
	assert.Equal(t, "backlog1", string(f.mock.Published[2]))
	assert.Equal(t, "backlog2", string(f.mock.Published[3]))
}

func TestFlushFailureLeavesQueueUntouched(t *testing.T) {
	t.Parallel()
	e := errors.New("flaky link")
	// live reading delivers, then backlog0 delivers, backlog1 exhausts its
	// two tries and the flush stops
	mock := &tele.Mock{T: t, PublishErrs: []error{nil, nil, e, e}}
	f := newFixture(t, goodSource(), mock, 10)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.q.Enqueue([]byte(fmt.Sprintf("backlog%d", i))))
	}

	f.p.Cycle()
	require.Equal(t, 3, f.q.Count(), "no partial removal")
	entries := f.q.DrainAll()
	for i, en := range entries {
		assert.Equal(t, fmt.Sprintf("backlog%d", i), string(en), "order preserved")
	}
}

func TestRunStops(t *testing.T) {
	t.Parallel()
	f := newFixture(t, goodSource(), &tele.Mock{T: t}, 10)
	done := make(chan struct{})
	go func() {
		f.p.Run()
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	f.p.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	assert.GreaterOrEqual(t, f.mock.PublishCalls, 1, "first cycle runs immediately")
}
