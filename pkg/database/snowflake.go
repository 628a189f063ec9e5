package database

import (
	"sync/atomic"
	"time"
)

// Snowflake generates unique, time-ordered 64-bit IDs.
// Format: 1 bit (unused) | 41 bits (timestamp) | 10 bits (worker) | 12 bits (sequence)
// Timestamp is milliseconds since a custom epoch, so sorting by ID sorts by
// creation time - the store relies on this for history ordering.
type Snowflake struct {
	epoch    int64 // Custom epoch in milliseconds
	workerID int64 // Worker/node ID (0-1023)
	state    int64 // Atomic state: upper 52 bits = timestamp, lower 12 bits = sequence
}

const (
	workerIDBits   = 10
	sequenceBits   = 12
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
	sequenceMask   = (1 << sequenceBits) - 1 // 4095
	maxWorkerID    = (1 << workerIDBits) - 1 // 1023
)

// NewSnowflake creates a new Snowflake ID generator.
// workerID must be unique per server instance (0-1023); out-of-range values
// fall back to 0.
func NewSnowflake(epoch int64, workerID int64) *Snowflake {
	if workerID < 0 || workerID > maxWorkerID {
		workerID = 0
	}
	return &Snowflake{
		epoch:    epoch,
		workerID: workerID,
	}
}

// NextID generates the next unique ID using lock-free atomic operations
func (s *Snowflake) NextID() int64 {
	for {
		oldState := atomic.LoadInt64(&s.state)
		lastTime := oldState >> sequenceBits
		sequence := oldState & sequenceMask

		now := time.Now().UnixMilli()
		if now < lastTime {
			// Clock moved backwards - keep issuing against the last
			// known time so IDs stay monotonic.
			now = lastTime
		}

		var newTime, newSequence int64
		if now == lastTime {
			newSequence = (sequence + 1) & sequenceMask
			newTime = lastTime
			if newSequence == 0 {
				// Sequence exhausted (>4096 IDs in one millisecond);
				// spin until the clock advances.
				for time.Now().UnixMilli() <= lastTime {
				}
				newTime = time.Now().UnixMilli()
			}
		} else {
			newTime = now
			newSequence = 0
		}

		newState := (newTime << sequenceBits) | newSequence
		if atomic.CompareAndSwapInt64(&s.state, oldState, newState) {
			return ((newTime - s.epoch) << timestampShift) |
				(s.workerID << workerIDShift) |
				newSequence
		}
		// CAS failed - another goroutine advanced the state, retry
	}
}
