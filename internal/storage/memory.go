package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smartdevs17/bridge-relayer/internal/models"
)

// MemoryStorage implements Storage in memory. It backs tests and the
// `storage.type: memory` mode; nothing survives a restart.
type MemoryStorage struct {
	mu          sync.RWMutex
	checkpoints map[string]uint64
	records     map[string]*models.RelayRecord
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[string]uint64),
		records:     make(map[string]*models.RelayRecord),
	}
}

func (s *MemoryStorage) Connect() error { return nil }
func (s *MemoryStorage) Close() error   { return nil }
func (s *MemoryStorage) Ping() error    { return nil }
func (s *MemoryStorage) Migrate() error { return nil }

func checkpointKey(chainID, contract string) string {
	return chainID + "/" + strings.ToLower(contract)
}

// GetCheckpoint returns the stored checkpoint for a chain/contract pair
func (s *MemoryStorage) GetCheckpoint(ctx context.Context, chainID, contract string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.checkpoints[checkpointKey(chainID, contract)]
	if !ok {
		return 0, ErrNotFound
	}
	return block, nil
}

// SetCheckpoint stores the checkpoint for a chain/contract pair
func (s *MemoryStorage) SetCheckpoint(ctx context.Context, chainID, contract string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpointKey(chainID, contract)] = block
	return nil
}

// SaveRelayRecord upserts a relay record by event ID
func (s *MemoryStorage) SaveRelayRecord(ctx context.Context, record *models.RelayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	clone := *record
	s.records[record.EventID] = &clone
	return nil
}

// GetRelayRecord retrieves a single relay record by event ID
func (s *MemoryStorage) GetRelayRecord(ctx context.Context, eventID string) (*models.RelayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// GetRelayRecords retrieves relay records based on filter
func (s *MemoryStorage) GetRelayRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RelayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.collect(func(r *models.RelayRecord) bool {
		return matchesFilter(r, filter)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return []*models.RelayRecord{}, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}

	return records, nil
}

// GetRetryableRecords returns failed records still under the attempt limit
func (s *MemoryStorage) GetRetryableRecords(ctx context.Context, maxAttempts, limit int) ([]*models.RelayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.collect(func(r *models.RelayRecord) bool {
		if r.Status != models.RelayStatusFailed {
			return false
		}
		return maxAttempts <= 0 || r.Attempts < maxAttempts
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// CountRelayRecords counts relay records matching the filter
func (s *MemoryStorage) CountRelayRecords(ctx context.Context, filter models.RecordFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesFilter(record, filter) {
			count++
		}
	}
	return count, nil
}

// GetRelayStats returns aggregate statistics for the relay record set
func (s *MemoryStorage) GetRelayStats(ctx context.Context) (*models.RelayStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.RelayStats{
		ByStatus: make(map[string]int64),
	}

	for _, record := range s.records {
		stats.ByStatus[string(record.Status)]++
		stats.TotalRecords++

		created := record.CreatedAt
		if stats.OldestRecord == nil || created.Before(*stats.OldestRecord) {
			t := created
			stats.OldestRecord = &t
		}
		if stats.LatestRecord == nil || created.After(*stats.LatestRecord) {
			t := created
			stats.LatestRecord = &t
		}
	}

	return stats, nil
}

// collect returns cloned records matching pred, in (block, log index) order
func (s *MemoryStorage) collect(pred func(*models.RelayRecord) bool) []*models.RelayRecord {
	records := []*models.RelayRecord{}
	for _, record := range s.records {
		if pred(record) {
			clone := *record
			records = append(records, &clone)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})

	return records
}

func matchesFilter(record *models.RelayRecord, filter models.RecordFilter) bool {
	if filter.Status != nil && record.Status != *filter.Status {
		return false
	}
	if filter.FromBlock != nil && record.BlockNumber < *filter.FromBlock {
		return false
	}
	if filter.ToBlock != nil && record.BlockNumber > *filter.ToBlock {
		return false
	}
	return true
}
