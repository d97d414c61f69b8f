package service

import (
	"sync"

	"github.com/noah-isme/tripmate-api/internal/dto"
)

const inboxBufferSize = 16

// inboxFanout delivers notifications to the SSE streams a user has open on
// this node. Slow streams drop entries instead of blocking the publisher.
type inboxFanout struct {
	mu      sync.RWMutex
	streams map[string]map[chan dto.NotificationResponse]struct{}
}

func newInboxFanout() *inboxFanout {
	return &inboxFanout{streams: make(map[string]map[chan dto.NotificationResponse]struct{})}
}

func (f *inboxFanout) open(userID string) chan dto.NotificationResponse {
	ch := make(chan dto.NotificationResponse, inboxBufferSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streams[userID] == nil {
		f.streams[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	f.streams[userID][ch] = struct{}{}
	return ch
}

func (f *inboxFanout) close(userID string, ch chan dto.NotificationResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()

	streams, ok := f.streams[userID]
	if !ok {
		return
	}
	if _, ok := streams[ch]; !ok {
		return
	}
	delete(streams, ch)
	close(ch)
	if len(streams) == 0 {
		delete(f.streams, userID)
	}
}

// deliver reports how many streams accepted the notification.
func (f *inboxFanout) deliver(notification dto.NotificationResponse) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	delivered := 0
	for ch := range f.streams[notification.UserID] {
		select {
		case ch <- notification:
			delivered++
		default:
		}
	}
	return delivered
}

func (f *inboxFanout) openStreams(userID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.streams[userID])
}
