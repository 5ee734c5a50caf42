package scene

import (
	"context"
	"sync"
)

// Store persists scene state between room lifetimes.
type Store interface {
	// Load returns the stored state, or a fresh state when none exists.
	Load(ctx context.Context, projectId string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, projectId string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps copies of states in process memory.
type MemoryStore struct {
	mutex  sync.Mutex
	states map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: map[string]*State{},
	}
}

func (s *MemoryStore) Load(ctx context.Context, projectId string) (*State, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, ok := s.states[projectId]
	if !ok {
		return NewState(projectId), nil
	}
	return state.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, state *State) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.states[state.ProjectId] = state.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, projectId string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.states, projectId)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
