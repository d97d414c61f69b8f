// Package alarm provides one-shot wake timers addressed by a stable integer key.
package alarm

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Payload is handed to the receiver when a timer fires.
type Payload struct {
	TripID      uint   `json:"trip_id"`
	UserID      string `json:"user_id"`
	TripTitle   string `json:"trip_title"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

// Receiver handles fired timers.
type Receiver interface {
	OnAlarm(ctx context.Context, payload Payload)
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(ctx context.Context, payload Payload)

// OnAlarm calls f.
func (f ReceiverFunc) OnAlarm(ctx context.Context, payload Payload) {
	f(ctx, payload)
}

// Manager registers and cancels one-shot timers.
type Manager interface {
	// Set registers a timer. An existing timer with the same key is replaced.
	Set(key int32, fireAt time.Time, payload Payload) error
	// Cancel removes a timer. Unknown keys are ignored.
	Cancel(key int32)
	// Pending lists the keys of timers that have not fired yet.
	Pending() []int32
}

// Key derives the timer key for a trip reminder. It is the 31-multiplier
// string hash over tripID followed by the type label, truncated to int32.
func Key(tripID uint, reminderType string) int32 {
	var h int32
	for _, r := range strconv.FormatUint(uint64(tripID), 10) + reminderType {
		h = 31*h + int32(r)
	}
	return h
}

// TimerManager is an in-process Manager. Pending timers do not survive a restart.
type TimerManager struct {
	mu       sync.Mutex
	timers   map[int32]*time.Timer
	receiver Receiver
	baseCtx  context.Context
	logger   zerolog.Logger
}

// NewTimerManager constructs a Manager delivering fired payloads to receiver.
func NewTimerManager(ctx context.Context, receiver Receiver, logger zerolog.Logger) *TimerManager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &TimerManager{
		timers:   make(map[int32]*time.Timer),
		receiver: receiver,
		baseCtx:  ctx,
		logger:   logger.With().Str("component", "alarm_manager").Logger(),
	}
}

func (m *TimerManager) Set(key int32, fireAt time.Time, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.timers[key]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(time.Until(fireAt), func() {
		m.mu.Lock()
		current, ok := m.timers[key]
		if !ok || current != timer {
			m.mu.Unlock()
			return
		}
		delete(m.timers, key)
		m.mu.Unlock()

		if m.baseCtx.Err() != nil {
			return
		}
		m.logger.Debug().Int32("key", key).Str("type", payload.Type).Uint("trip_id", payload.TripID).Msg("alarm fired")
		if m.receiver != nil {
			m.receiver.OnAlarm(m.baseCtx, payload)
		}
	})
	m.timers[key] = timer
	return nil
}

func (m *TimerManager) Cancel(key int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.timers[key]; ok {
		timer.Stop()
		delete(m.timers, key)
	}
}

func (m *TimerManager) Pending() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]int32, 0, len(m.timers))
	for key := range m.timers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Stop cancels every pending timer.
func (m *TimerManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, timer := range m.timers {
		timer.Stop()
		delete(m.timers, key)
	}
}
