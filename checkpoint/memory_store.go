package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the N most recent checkpoints per thread in a ring
// buffer. When the ring is full the oldest checkpoint is evicted first.
// Saving an existing id replaces that entry in place.
type MemoryStore struct {
	capacity int
	mu       sync.RWMutex
	threads  map[string][]*Checkpoint // oldest first
}

// NewMemoryStore creates an in-memory store bounded to capacity checkpoints
// per thread. Non-positive capacity falls back to the default.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultConfig().MemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		threads:  make(map[string][]*Checkpoint),
	}
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.threads[cp.ThreadID]
	for i, existing := range ring {
		if existing.ID == cp.ID {
			ring[i] = cp
			return nil
		}
	}
	if len(ring) >= s.capacity {
		ring = ring[1:]
	}
	s.threads[cp.ThreadID] = append(ring, cp)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cp := range s.threads[threadID] {
		if cp.ID == checkpointID {
			return cp.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.threads[threadID]
	if len(ring) == 0 {
		return nil, ErrNotFound
	}
	return ring[len(ring)-1].clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.threads[threadID]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]*Checkpoint, 0, limit)
	for i := len(ring) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ring[i].clone())
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, threadID, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.threads[threadID]
	for i, cp := range ring {
		if cp.ID == checkpointID {
			s.threads[threadID] = append(ring[:i], ring[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for threadID, ring := range s.threads {
		kept := ring[:0]
		for _, cp := range ring {
			if cp.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, cp)
		}
		if len(kept) == 0 {
			delete(s.threads, threadID)
		} else {
			s.threads[threadID] = kept
		}
	}
	return deleted, nil
}
