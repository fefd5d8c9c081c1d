package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

func TestMessageQueue_FIFO(t *testing.T) {
	q := newMessageQueue()

	require.True(t, q.Enqueue(Message{Type: MessageTypeLocal, Request: "a"}))
	require.True(t, q.Enqueue(Message{Type: MessageTypeLocal, Request: "b"}))
	require.True(t, q.Enqueue(Message{Type: MessageTypeLocal, Request: "c"}))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		m, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, m.Request)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "queue should be empty")
	assert.Equal(t, 0, q.Len())
}

func TestMessageQueue_EnqueueAfterClose(t *testing.T) {
	q := newMessageQueue()
	q.Close()

	ok := q.Enqueue(Message{Type: MessageTypeLocal})
	assert.False(t, ok)

	// Double close must not panic.
	q.Close()
}

func TestMessageQueue_SignalCoalesces(t *testing.T) {
	q := newMessageQueue()

	q.Enqueue(Message{Type: MessageTypeLocal, Request: "1"})
	q.Enqueue(Message{Type: MessageTypeLocal, Request: "2"})

	// One signal is enough to wake a waiter; both messages drain.
	<-q.Wait()
	m1, ok1 := q.TryDequeue()
	m2, ok2 := q.TryDequeue()
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, "1", m1.Request)
	assert.Equal(t, "2", m2.Request)
}

func TestMessageQueue_WaitClosedAfterClose(t *testing.T) {
	q := newMessageQueue()
	q.Close()

	select {
	case _, open := <-q.Wait():
		assert.False(t, open, "signal channel should be closed")
	default:
		t.Fatal("Wait() should fire immediately after Close")
	}
}

func TestMessageQueue_SlotCleared(t *testing.T) {
	q := newMessageQueue()
	q.Enqueue(Message{Type: MessageTypeLocal, Mutation: sheet.AddColumn{Name: "x"}})

	m, ok := q.TryDequeue()
	require.True(t, ok)
	assert.NotNil(t, m.Mutation)
	assert.Equal(t, 0, q.Len())
}
