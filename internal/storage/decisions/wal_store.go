// Package decisions journals final decisions and config overrides in a WAL.
package decisions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const (
	DefaultDir   = "./wal/decisions"
	segmentLimit = 1000
	maxSegments  = 20

	decisionKeyPrefix = "decision_"
	overrideKeyPrefix = "override_"
)

// WALStore persists journal events in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init decision WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save writes a final decision.
func (s *WALStore) Save(d domain.FinalDecision) error {
	if d.Symbol == "" {
		return fmt.Errorf("decision symbol is required")
	}
	return s.write(decisionKeyPrefix+d.Symbol, d)
}

// SaveOverride writes a config override event.
func (s *WALStore) SaveOverride(event domain.OverrideEvent) error {
	if event.ID == "" {
		return fmt.Errorf("override event id is required")
	}
	return s.write(overrideKeyPrefix+event.ID, event)
}

func (s *WALStore) write(key string, event any) error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal journal event %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all journal events written after the provided WAL index.
func (s *WALStore) EventsAfter(index uint64) ([]domain.DecisionEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("decision store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.DecisionEventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// evicted segments
			continue
		}

		switch {
		case strings.HasPrefix(key, decisionKeyPrefix):
			var event domain.FinalDecision
			if err := json.Unmarshal(payload, &event); err != nil {
				return nil, errors.Wrap(err, "decode decision event")
			}
			records = append(records, domain.DecisionEventRecord{Index: idx, Type: domain.EventTypeDecision, Event: event})
		case strings.HasPrefix(key, overrideKeyPrefix):
			var event domain.OverrideEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return nil, errors.Wrap(err, "decode override event")
			}
			records = append(records, domain.DecisionEventRecord{Index: idx, Type: domain.EventTypeOverride, Event: event})
		}
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
