package engine

import "sync"

// messageQueue is a thread-safe FIFO queue for session messages.
//
// The queue is unbounded so that persistence goroutines and the push
// subscriber can enqueue acks and deltas without ever blocking against
// the session loop.
//
// Thread-safety is provided for external enqueuing (persistence
// callbacks, the push subscriber) while the session's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type messageQueue struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newMessageQueue() *messageQueue {
	return &messageQueue{
		messages: make([]Message, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *messageQueue) Enqueue(m Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.messages = append(q.messages, m)

	// Non-blocking signal: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Message{}, false) if the queue is empty.
func (q *messageQueue) TryDequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return Message{}, false
	}

	m := q.messages[0]

	// Nil out the slot so the array does not retain the message's
	// pointers until reallocation.
	q.messages[0] = Message{}

	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}

	return m, true
}

// Wait returns a channel that signals when messages may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *messageQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close signals that no more messages will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
