package storage

import (
	"context"
	"sync"

	"todo-api/domain"
)

// Memory is an in-memory store used for local runs and tests. It mirrors
// the Azure-backed Storage semantics: todos live in per-owner partitions
// and users are keyed by normalized email. All operations are individually
// atomic under a single mutex.
type Memory struct {
	mu    sync.RWMutex
	todos map[string]map[string]domain.Todo
	users map[string]domain.User
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		todos: make(map[string]map[string]domain.Todo),
		users: make(map[string]domain.User),
	}
}

func (m *Memory) ListTodos(_ context.Context, userID string) ([]domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	todos := []domain.Todo{}
	for _, todo := range m.todos[userID] {
		todos = append(todos, todo)
	}
	return todos, nil
}

func (m *Memory) GetTodo(_ context.Context, userID, id string) (domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	todo, ok := m.todos[userID][id]
	if !ok {
		return domain.Todo{}, ErrNotFound
	}
	return todo, nil
}

func (m *Memory) InsertTodo(_ context.Context, todo domain.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.todos[todo.UserID]
	if !ok {
		partition = make(map[string]domain.Todo)
		m.todos[todo.UserID] = partition
	}
	partition[todo.ID] = todo
	return nil
}

func (m *Memory) UpdateTodo(_ context.Context, todo domain.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.todos[todo.UserID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := partition[todo.ID]; !ok {
		return ErrNotFound
	}
	partition[todo.ID] = todo
	return nil
}

func (m *Memory) DeleteTodo(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.todos[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := partition[id]; !ok {
		return ErrNotFound
	}
	delete(partition, id)
	return nil
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) InsertUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.NormalizeEmail(user.Email)
	if _, ok := m.users[key]; ok {
		return ErrEmailTaken
	}
	m.users[key] = user
	return nil
}
