package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"formulaevo/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type table int

const (
	reportsTable table = iota
	historiesTable
	invariantsTable
)

// MemoryStore keeps encoded payloads so callers never share backing arrays
// with stored records.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	reports     map[string][]byte
	histories   map[string][]byte
	invariants  map[string][]byte
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.reports = make(map[string][]byte)
	s.histories = make(map[string][]byte)
	s.invariants = make(map[string][]byte)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveValidationReport(_ context.Context, report model.ValidationReport) error {
	if report.ID == "" {
		return errors.New("validation report id is required")
	}
	payload, err := EncodeValidationReport(report)
	if err != nil {
		return err
	}
	return s.put(reportsTable, report.ID, payload)
}

func (s *MemoryStore) GetValidationReport(_ context.Context, id string) (model.ValidationReport, bool, error) {
	payload, ok, err := s.get(reportsTable, id)
	if err != nil || !ok {
		return model.ValidationReport{}, false, err
	}
	report, err := DecodeValidationReport(payload)
	if err != nil {
		return model.ValidationReport{}, false, err
	}
	return report, true, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, history model.EvolutionHistory) error {
	if history.RunID == "" {
		return errors.New("history run id is required")
	}
	payload, err := EncodeHistory(history)
	if err != nil {
		return err
	}
	return s.put(historiesTable, history.RunID, payload)
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) (model.EvolutionHistory, bool, error) {
	payload, ok, err := s.get(historiesTable, runID)
	if err != nil || !ok {
		return model.EvolutionHistory{}, false, err
	}
	history, err := DecodeHistory(payload)
	if err != nil {
		return model.EvolutionHistory{}, false, err
	}
	return history, true, nil
}

func (s *MemoryStore) SaveInvariantSet(_ context.Context, set model.InvariantSet) error {
	if set.ID == "" {
		return errors.New("invariant set id is required")
	}
	payload, err := EncodeInvariantSet(set)
	if err != nil {
		return err
	}
	return s.put(invariantsTable, set.ID, payload)
}

func (s *MemoryStore) GetInvariantSet(_ context.Context, id string) (model.InvariantSet, bool, error) {
	payload, ok, err := s.get(invariantsTable, id)
	if err != nil || !ok {
		return model.InvariantSet{}, false, err
	}
	set, err := DecodeInvariantSet(payload)
	if err != nil {
		return model.InvariantSet{}, false, err
	}
	return set, true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	run.Domains = append([]string(nil), run.Domains...)
	s.runs[run.RunID] = run
	return nil
}

// ListRuns returns the run index ordered by creation time, then run id.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}
	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.Domains = append([]string(nil), run.Domains...)
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) put(t table, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.tableLocked(t)[key] = payload
	return nil
}

func (s *MemoryStore) get(t table, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, false, errNotInitialized
	}
	payload, ok := s.tableLocked(t)[key]
	return payload, ok, nil
}

func (s *MemoryStore) tableLocked(t table) map[string][]byte {
	switch t {
	case reportsTable:
		return s.reports
	case historiesTable:
		return s.histories
	default:
		return s.invariants
	}
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
}
