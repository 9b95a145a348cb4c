// Package idgen generates unique, roughly time-ordered business numbers
package idgen

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake layout: 41-bit millisecond timestamp, 10-bit worker ID,
// 12-bit per-millisecond sequence.
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake is a thread-safe unique ID generator
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init initializes the default generator. Worker IDs outside [0, 1023] are
// clamped to 0.
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			workerID = 0
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

// NextID generates the next ID from the default generator
func NextID() int64 {
	if defaultGenerator == nil {
		Init(1)
	}
	return defaultGenerator.Generate()
}

// Generate produces the next unique ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// Sequence exhausted for this millisecond, spin to the next one
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateTransactionNumber produces a transaction number such as
// TXN20250901143052 followed by an 8-digit suffix
func GenerateTransactionNumber() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("TXN%s%08d", timestamp, id%100000000)
}

// GenerateInvoiceNumber produces an invoice number such as
// INV20250901143052 followed by an 8-digit suffix
func GenerateInvoiceNumber() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("INV%s%08d", timestamp, id%100000000)
}
