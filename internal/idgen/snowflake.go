// Package idgen hands out the int64 identifiers used for workflow instances
// and history rows.
package idgen

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Layout: 41 bits of milliseconds since epoch, 10 bits node, 12 bits sequence.
const (
	nodeBits     = 10
	sequenceBits = 12
	maxNode      = 1<<nodeBits - 1
	maxSequence  = 1<<sequenceBits - 1
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits
)

// Epoch is the zero point of generated timestamps.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Snowflake generates strictly increasing ids for one node. Safe for
// concurrent use.
type Snowflake struct {
	mu       sync.Mutex
	node     int64
	lastMS   int64
	sequence int64
	now      func() time.Time
}

// NewSnowflake returns a generator for node, which must be in [0, 1023].
func NewSnowflake(node int64) (*Snowflake, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("snowflake node %d out of range [0, %d]", node, maxNode)
	}
	return &Snowflake{node: node, now: time.Now}, nil
}

// NextID returns the next id. If the wall clock moves backwards the generator
// keeps using its last timestamp so ids never decrease.
func (s *Snowflake) NextID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().Sub(Epoch).Milliseconds()
	if ms < s.lastMS {
		ms = s.lastMS
	}
	if ms == s.lastMS {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// Sequence exhausted for this millisecond: borrow the next one.
			ms++
		}
	} else {
		s.sequence = 0
	}
	s.lastMS = ms
	return ms<<timeShift | s.node<<nodeShift | s.sequence, nil
}

// Node extracts the node part of id.
func Node(id int64) int64 { return (id >> nodeShift) & maxNode }

// Time extracts the creation time encoded in id.
func Time(id int64) time.Time {
	return Epoch.Add(time.Duration(id>>timeShift) * time.Millisecond)
}
