package alarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStableAndDistinct(t *testing.T) {
	require.Equal(t, Key(42, "day_of"), Key(42, "day_of"))
	require.NotEqual(t, Key(42, "day_of"), Key(42, "seven_day"))
	require.NotEqual(t, Key(42, "day_of"), Key(43, "day_of"))

	// "1a" hashes to 31*'1' + 'a'.
	require.Equal(t, int32(31*49+97), Key(1, "a"))
}

func TestTimerManagerFiresOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []Payload
	)
	receiver := ReceiverFunc(func(_ context.Context, payload Payload) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, payload)
	})

	manager := NewTimerManager(context.Background(), receiver, zerolog.Nop())
	require.NoError(t, manager.Set(7, time.Now().Add(20*time.Millisecond), Payload{TripID: 1, Type: "day_of"}))
	require.Equal(t, []int32{7}, manager.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, manager.Pending())
}

func TestTimerManagerSetReplacesExistingKey(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []string
	)
	receiver := ReceiverFunc(func(_ context.Context, payload Payload) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, payload.TripTitle)
	})

	manager := NewTimerManager(context.Background(), receiver, zerolog.Nop())
	require.NoError(t, manager.Set(1, time.Now().Add(30*time.Millisecond), Payload{TripTitle: "old"}))
	require.NoError(t, manager.Set(1, time.Now().Add(40*time.Millisecond), Payload{TripTitle: "new"}))
	require.Len(t, manager.Pending(), 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"new"}, fired)
}

func TestTimerManagerCancelUnknownKeyIsNoop(t *testing.T) {
	manager := NewTimerManager(context.Background(), nil, zerolog.Nop())
	manager.Cancel(99)

	require.NoError(t, manager.Set(5, time.Now().Add(time.Hour), Payload{}))
	manager.Cancel(5)
	require.Empty(t, manager.Pending())
}
