package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

// TaskStore holds work items in memory. FetchErr, when set, is returned by FetchOverdue.
type TaskStore struct {
	mu         sync.Mutex
	items      map[string]types.WorkItem
	fetchCalls int

	FetchErr error
}

func NewTaskStore(items ...types.WorkItem) *TaskStore {
	s := &TaskStore{items: make(map[string]types.WorkItem, len(items))}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *TaskStore) Put(item types.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

func (s *TaskStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// FetchCalls reports how many times FetchOverdue ran.
func (s *TaskStore) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *TaskStore) FetchOverdue(_ context.Context, cutoff time.Time, statuses []string, limit, offset int) ([]types.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchCalls++
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}

	var overdue []types.WorkItem
	for _, item := range s.items {
		if item.DueAt.IsZero() || !item.DueAt.Before(cutoff) || !slices.Contains(statuses, item.Status) {
			continue
		}
		overdue = append(overdue, item)
	}
	sort.Slice(overdue, func(i, j int) bool {
		if overdue[i].DueAt.Equal(overdue[j].DueAt) {
			return overdue[i].ID < overdue[j].ID
		}
		return overdue[i].DueAt.Before(overdue[j].DueAt)
	})

	if offset >= len(overdue) {
		return nil, nil
	}
	end := min(offset+limit, len(overdue))
	return overdue[offset:end], nil
}

func (s *TaskStore) FindByID(_ context.Context, id string) (*types.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return &item, nil
}
