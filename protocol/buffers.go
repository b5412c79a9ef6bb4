package protocol

import (
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

var (
	ErrQueueFull  = errors.New("queue: not enough free space")
	ErrQueueEmpty = errors.New("queue: empty")
)

// Queue is a bounded FIFO of bytes shared by one producer and one consumer
// goroutine. Writes are all-or-nothing; reads take what is available.
//
// Readable fires after data is written and Writable after data is read, so
// workers can wait on a channel with a timeout instead of spinning.
type Queue struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	readable chan struct{}
	writable chan struct{}
}

// NewQueue creates a Queue holding up to capacity bytes
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		rb:       ringbuffer.New(capacity),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// Write appends all of data or nothing
func (q *Queue) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	q.mu.Lock()
	if q.rb.Free() < len(data) {
		q.mu.Unlock()
		return ErrQueueFull
	}
	_, err := q.rb.Write(data)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	notify(q.readable)
	return nil
}

// WriteByte appends a single byte
func (q *Queue) WriteByte(b byte) error {
	q.mu.Lock()
	err := q.rb.WriteByte(b)
	q.mu.Unlock()
	if err != nil {
		if errors.Is(err, ringbuffer.ErrIsFull) {
			return ErrQueueFull
		}
		return err
	}
	notify(q.readable)
	return nil
}

// Read removes up to len(data) bytes and returns how many were copied
func (q *Queue) Read(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	q.mu.Lock()
	n, _ := q.rb.Read(data)
	q.mu.Unlock()
	if n > 0 {
		notify(q.writable)
	}
	return n
}

// ReadByte removes the oldest byte
func (q *Queue) ReadByte() (byte, error) {
	q.mu.Lock()
	b, err := q.rb.ReadByte()
	q.mu.Unlock()
	if err != nil {
		return 0, ErrQueueEmpty
	}
	notify(q.writable)
	return b, nil
}

// Available returns the number of bytes available for reading
func (q *Queue) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rb.Length()
}

// Free returns the number of bytes available for writing
func (q *Queue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rb.Free()
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return q.rb.Capacity()
}

// IsEmpty returns true if the queue holds no data
func (q *Queue) IsEmpty() bool {
	return q.Available() == 0
}

// IsFull returns true if no byte can be written
func (q *Queue) IsFull() bool {
	return q.Free() == 0
}

// Reset discards all queued data
func (q *Queue) Reset() {
	q.mu.Lock()
	q.rb.Reset()
	q.mu.Unlock()
	notify(q.writable)
}

// Readable signals that data was written since the last receive
func (q *Queue) Readable() <-chan struct{} {
	return q.readable
}

// Writable signals that space was freed since the last receive
func (q *Queue) Writable() <-chan struct{} {
	return q.writable
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
