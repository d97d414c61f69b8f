package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/observability"
)

const (
	chatCacheQueueSize    = 256
	chatCacheWriteTimeout = 5 * time.Second
)

var errCacheWriterClosed = errors.New("chat cache writer closed")

type cacheOp struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// chatCacheWriter serialises every mutation of the local chat cache through a
// single goroutine, so concurrent subscriptions cannot interleave partial writes.
type chatCacheWriter struct {
	ops      chan cacheOp
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

func newChatCacheWriter(logger zerolog.Logger) *chatCacheWriter {
	w := &chatCacheWriter{
		ops:    make(chan cacheOp, chatCacheQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "chat_cache_writer").Logger(),
	}
	go w.run()
	return w
}

func (w *chatCacheWriter) run() {
	defer close(w.done)
	for {
		select {
		case op := <-w.ops:
			err := op.fn(op.ctx)
			if op.result != nil {
				op.result <- err
				continue
			}
			if err != nil {
				observability.ChatCacheWriteErrors().Inc()
				w.logger.Debug().Err(err).Msg("best-effort cache write failed")
			}
		case <-w.quit:
			return
		}
	}
}

// Do queues fn and waits for it to complete.
func (w *chatCacheWriter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	op := cacheOp{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case w.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return errCacheWriterClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return errCacheWriterClosed
	}
}

// Submit queues fn without waiting. The write is dropped when the queue is full.
func (w *chatCacheWriter) Submit(fn func(ctx context.Context) error) {
	timed := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, chatCacheWriteTimeout)
		defer cancel()
		return fn(ctx)
	}
	select {
	case <-w.quit:
		return
	default:
	}
	select {
	case w.ops <- cacheOp{ctx: context.Background(), fn: timed}:
	default:
		observability.ChatCacheWriteErrors().Inc()
		w.logger.Warn().Msg("chat cache queue full, dropping write")
	}
}

// Flush waits until every previously queued write has been applied.
func (w *chatCacheWriter) Flush(ctx context.Context) error {
	return w.Do(ctx, func(context.Context) error { return nil })
}

func (w *chatCacheWriter) Close() {
	w.stopOnce.Do(func() {
		close(w.quit)
		<-w.done
	})
}
