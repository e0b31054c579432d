package idgen

import (
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// 64-bit ID layout:
	// 1 bit: Unused (sign bit)
	// 41 bits: Timestamp (milliseconds) - gives ~69 years
	// 10 bits: Worker ID - gives 1024 workers
	// 12 bits: Sequence - gives 4096 IDs per millisecond per worker

	workerBits   = 10
	sequenceBits = 12

	MaxWorkerID = -1 ^ (-1 << workerBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	workerShift    = sequenceBits
	timestampShift = sequenceBits + workerBits

	// Epoch is 2024-01-01 00:00:00 UTC in milliseconds.
	Epoch = 1704067200000
)

var (
	ErrWorkerIDTooLarge = errors.New("worker ID too large")
	ErrClockMovedBack   = errors.New("clock moved backwards")
)

// Snowflake generates unique, time-ordered 64-bit IDs.
type Snowflake struct {
	mu       sync.Mutex
	clock    Clock
	workerID int64
	lastTime int64
	sequence int64
}

// New creates a generator for workerID in [0, MaxWorkerID].
func New(workerID int64, clock Clock) (*Snowflake, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrWorkerIDTooLarge
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Snowflake{
		clock:    clock,
		workerID: workerID,
		lastTime: -1,
	}, nil
}

// WorkerIDFor maps a cluster node ID onto the worker ID space.
func WorkerIDFor(nodeID string) int64 {
	return int64(xxhash.Sum64String(nodeID) % (MaxWorkerID + 1))
}

// Next generates the next ID.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now < s.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == s.lastTime {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted, spin to the next millisecond
			for now <= s.lastTime {
				now = s.clock.Now()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTime = now

	return ((now - Epoch) << timestampShift) | (s.workerID << workerShift) | s.sequence, nil
}

// Parts is a decoded ID.
type Parts struct {
	Time     time.Time
	WorkerID int64
	Sequence int64
}

// Decode splits an ID into its fields.
func Decode(id int64) Parts {
	return Parts{
		Time:     time.UnixMilli((id >> timestampShift) + Epoch),
		WorkerID: (id >> workerShift) & MaxWorkerID,
		Sequence: id & maxSequence,
	}
}
