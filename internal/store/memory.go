package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// MemoryArchive is the Archive used when no database path is configured.
// Results and schedules live for the process lifetime only.
type MemoryArchive struct {
	mu        sync.RWMutex
	results   map[string]*schema.WorkflowResult
	schedules map[string]*Schedule
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		results:   make(map[string]*schema.WorkflowResult),
		schedules: make(map[string]*Schedule),
	}
}

func (m *MemoryArchive) SaveResult(_ context.Context, result *schema.WorkflowResult) error {
	if result == nil || result.RunID == "" {
		return schema.NewError(schema.ErrCodeStore, "result has no run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.RunID] = result
	return nil
}

func (m *MemoryArchive) GetResult(_ context.Context, runID string) (*schema.WorkflowResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	return result, nil
}

func (m *MemoryArchive) ListResults(_ context.Context, workflowID string, limit int) ([]*schema.WorkflowResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schema.WorkflowResult, 0, len(m.results))
	for _, r := range m.results {
		if workflowID != "" && r.WorkflowID != workflowID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryArchive) SaveSchedule(_ context.Context, s *Schedule) error {
	if s == nil || s.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "schedule has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *MemoryArchive) GetSchedule(_ context.Context, id string) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	return s, nil
}

func (m *MemoryArchive) ListSchedules(_ context.Context) ([]*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryArchive) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

func (m *MemoryArchive) Close() error { return nil }
