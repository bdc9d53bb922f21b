// Package notification delivers appointment lifecycle events to an external
// sink. Delivery is fire-and-forget: a failed or slow sink never affects the
// operation that produced the event.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event describes one appointment status change. OldStatus is empty for the
// initial booking.
type Event struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	OldStatus     string    `json:"old_status,omitempty"`
	NewStatus     string    `json:"new_status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives events. Implementations must tolerate at-least-once delivery.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// LogSink writes events to the log. It is the default sink when no external
// transport is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, evt Event) error {
	s.logger.Info().
		Str("appointment_id", evt.AppointmentID.String()).
		Str("doctor_id", evt.DoctorID.String()).
		Str("patient_id", evt.PatientID.String()).
		Str("old_status", evt.OldStatus).
		Str("new_status", evt.NewStatus).
		Time("timestamp", evt.Timestamp).
		Msg("appointment event")
	return nil
}

// RedisSink publishes events as JSON to a redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}

// Dispatcher decouples event producers from the sink. Emit never blocks the
// caller: events are queued to a worker goroutine, and when the queue is full
// the event is dropped and counted, never awaited.
type Dispatcher struct {
	sink    Sink
	logger  zerolog.Logger
	timeout time.Duration

	ch   chan Event
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	dropped int
}

const defaultQueueSize = 256

func NewDispatcher(sink Sink, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		timeout: 5 * time.Second,
		ch:      make(chan Event, defaultQueueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for evt := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Publish(ctx, evt); err != nil {
			d.logger.Warn().Err(err).
				Str("appointment_id", evt.AppointmentID.String()).
				Str("new_status", evt.NewStatus).
				Msg("event delivery failed")
		}
		cancel()
	}
}

// Emit queues the event for delivery. Never blocks.
func (d *Dispatcher) Emit(evt Event) {
	select {
	case d.ch <- evt:
	default:
		d.mu.Lock()
		d.dropped++
		n := d.dropped
		d.mu.Unlock()
		d.logger.Warn().Int("dropped_total", n).Msg("event queue full, dropping event")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.ch)
	})
	d.wg.Wait()
}
