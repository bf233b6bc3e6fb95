// Package events fans committed swap observations out to subscribers.
// A Stream plugs into the pool engine's observer hook and gives external
// consumers (TWAP keepers, monitors) a buffered feed of (tick, timestamp)
// samples without ever blocking the swap path.
package events

import (
	"errors"
	"sync"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observation is one committed swap sample.
type Observation struct {
	Seq       uint64 `json:"seq"`
	Tick      int64  `json:"tick"`
	Timestamp int64  `json:"timestamp"`
}

// Config holds the stream's configuration.
type Config struct {
	// BufferSize is the per-subscriber channel capacity. A subscriber
	// that falls more than BufferSize observations behind loses the
	// oldest unread ones.
	BufferSize uint
	Logger     Logger
}

func (c *Config) validate() error {
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Stream broadcasts observations to any number of subscribers. It
// implements the pool engine's Observer interface.
type Stream struct {
	mu         sync.Mutex
	logger     Logger
	bufferSize uint
	subs       map[int]chan Observation
	nextSubID  int
	seq        uint64
	last       Observation
	haveLast   bool
	closed     bool
}

// NewStream constructs a stream, returning an error if the config is
// invalid.
func NewStream(cfg *Config) (*Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Stream{
		logger:     cfg.Logger,
		bufferSize: cfg.BufferSize,
		subs:       make(map[int]chan Observation),
	}, nil
}

// RecordObservation publishes one sample to every subscriber. Sends never
// block: a subscriber with a full buffer misses the sample and a warning
// is logged in its place.
func (s *Stream) RecordObservation(tick int64, timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.seq++
	obs := Observation{Seq: s.seq, Tick: tick, Timestamp: timestamp}
	s.last = obs
	s.haveLast = true

	for id, ch := range s.subs {
		select {
		case ch <- obs:
		default:
			s.logger.Warn("subscriber buffer full, dropping observation",
				"subscriber", id,
				"seq", obs.Seq,
				"tick", obs.Tick,
			)
		}
	}
}

// Last returns the most recent observation, if any has been recorded.
func (s *Stream) Last() (Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast
}

// Subscribe registers a new subscriber and returns its receive channel
// together with a cancel function. Cancel is idempotent and closes the
// channel once any buffered observations have been drained by the caller
// or discarded.
func (s *Stream) Subscribe() (<-chan Observation, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Observation, s.bufferSize)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close shuts the stream down and closes all subscriber channels. Further
// observations are discarded.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
