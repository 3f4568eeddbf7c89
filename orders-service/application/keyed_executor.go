package application

import (
	"context"
	"sync"
)

// KeyedExecutor runs tasks one at a time per key and concurrently across keys.
// Each key owns a mailbox drained by a goroutine that exits once the mailbox
// is empty, so idle orders hold no resources.
type KeyedExecutor struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
}

type mailbox struct {
	queue []*task
}

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

func NewKeyedExecutor() *KeyedExecutor {
	return &KeyedExecutor{mailboxes: make(map[string]*mailbox)}
}

// Do queues fn behind every earlier task of key and waits for its result.
// fn must not call Do with the same key.
func (e *KeyedExecutor) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	e.mu.Lock()
	mb, ok := e.mailboxes[key]
	if !ok {
		mb = &mailbox{}
		e.mailboxes[key] = mb
		go e.drain(key, mb)
	}
	mb.queue = append(mb.queue, t)
	e.mu.Unlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *KeyedExecutor) drain(key string, mb *mailbox) {
	for {
		e.mu.Lock()
		if len(mb.queue) == 0 {
			delete(e.mailboxes, key)
			e.mu.Unlock()
			return
		}
		t := mb.queue[0]
		mb.queue[0] = nil
		mb.queue = mb.queue[1:]
		e.mu.Unlock()

		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		t.done <- t.fn(t.ctx)
	}
}

// Active returns the number of keys with queued or running tasks
func (e *KeyedExecutor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.mailboxes)
}
