package anomaly

import (
	"math"
	"sync"
)

// RingBuffer is a fixed-capacity FIFO of float64 values. When full, a push
// overwrites the oldest value. It is not safe for concurrent use on its own;
// SensorHistory guards it.
type RingBuffer struct {
	data  []float64
	start int
	size  int
}

// NewRingBuffer allocates a buffer holding at most capacity values.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the buffer is full.
func (r *RingBuffer) Push(v float64) {
	if r.size < len(r.data) {
		r.data[(r.start+r.size)%len(r.data)] = v
		r.size++
		return
	}
	r.data[r.start] = v
	r.start = (r.start + 1) % len(r.data)
}

// Len is the number of values currently held.
func (r *RingBuffer) Len() int { return r.size }

// Cap is the fixed capacity.
func (r *RingBuffer) Cap() int { return len(r.data) }

// Values returns the held values oldest first.
func (r *RingBuffer) Values() []float64 {
	out := make([]float64, r.size)
	for i := range out {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return out
}

// MeanStd returns the population mean and standard deviation of the held values.
func (r *RingBuffer) MeanStd() (mean, std float64) {
	if r.size == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < r.size; i++ {
		sum += r.data[(r.start+i)%len(r.data)]
	}
	mean = sum / float64(r.size)

	var sq float64
	for i := 0; i < r.size; i++ {
		d := r.data[(r.start+i)%len(r.data)] - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(r.size))
}

// SensorHistory is one sensor's rolling window.
type SensorHistory struct {
	mu  sync.Mutex
	buf *RingBuffer
}

// Observe pushes v and returns the window size and statistics including v.
func (h *SensorHistory) Observe(v float64) (n int, mean, std float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Push(v)
	mean, std = h.buf.MeanStd()
	return h.buf.Len(), mean, std
}

// Snapshot returns a copy of the window, oldest first.
func (h *SensorHistory) Snapshot() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.Values()
}

// HistoryArena owns one SensorHistory per sensor name. Lookups take a read
// lock; only the first observation of a new sensor takes the write lock.
type HistoryArena struct {
	capacity int

	mu      sync.RWMutex
	sensors map[string]*SensorHistory
}

// NewHistoryArena creates an arena whose buffers hold capacity values each.
func NewHistoryArena(capacity int) *HistoryArena {
	return &HistoryArena{
		capacity: capacity,
		sensors:  make(map[string]*SensorHistory),
	}
}

// Sensor returns the history for name, creating it on first use.
func (a *HistoryArena) Sensor(name string) *SensorHistory {
	a.mu.RLock()
	h, ok := a.sensors[name]
	a.mu.RUnlock()
	if ok {
		return h
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.sensors[name]; ok {
		return h
	}
	h = &SensorHistory{buf: NewRingBuffer(a.capacity)}
	a.sensors[name] = h
	return h
}

// Reset drops the history of name.
func (a *HistoryArena) Reset(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sensors, name)
}

// Len is the number of tracked sensors.
func (a *HistoryArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sensors)
}
