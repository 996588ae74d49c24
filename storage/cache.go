package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

type backend interface {
	ListTodos(ctx context.Context, userID string) ([]domain.Todo, error)
	GetTodo(ctx context.Context, userID, id string) (domain.Todo, error)
	InsertTodo(ctx context.Context, todo domain.Todo) error
	UpdateTodo(ctx context.Context, todo domain.Todo) error
	DeleteTodo(ctx context.Context, userID, id string) error
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	InsertUser(ctx context.Context, user domain.User) error
}

// Cache wraps a store with Redis-backed caching of per-user todo lists.
// Every write for a user evicts that user's cached list. Redis failures
// degrade to the backing store instead of failing the request.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) ListTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	if todos, ok := c.loadTodosFromCache(ctx, userID); ok {
		return todos, nil
	}

	todos, err := c.base.ListTodos(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeTodos(ctx, userID, todos)
	return todos, nil
}

func (c *Cache) GetTodo(ctx context.Context, userID, id string) (domain.Todo, error) {
	return c.base.GetTodo(ctx, userID, id)
}

func (c *Cache) InsertTodo(ctx context.Context, todo domain.Todo) error {
	if err := c.base.InsertTodo(ctx, todo); err != nil {
		return err
	}
	c.evict(ctx, todo.UserID)
	return nil
}

func (c *Cache) UpdateTodo(ctx context.Context, todo domain.Todo) error {
	if err := c.base.UpdateTodo(ctx, todo); err != nil {
		return err
	}
	c.evict(ctx, todo.UserID)
	return nil
}

func (c *Cache) DeleteTodo(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteTodo(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return c.base.FindUserByEmail(ctx, email)
}

func (c *Cache) InsertUser(ctx context.Context, user domain.User) error {
	return c.base.InsertUser(ctx, user)
}

type cachedTodo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Cache) loadTodosFromCache(ctx context.Context, userID string) ([]domain.Todo, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, todosCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, todosCacheKey(userID)).Err()
		}
		return nil, false
	}
	var cached []cachedTodo
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, todosCacheKey(userID)).Err()
		return nil, false
	}
	todos := make([]domain.Todo, len(cached))
	for i, ct := range cached {
		todos[i] = domain.Todo{
			ID:          ct.ID,
			UserID:      ct.UserID,
			Title:       ct.Title,
			IsCompleted: ct.IsCompleted,
			CreatedAt:   ct.CreatedAt,
		}
	}
	return todos, true
}

func (c *Cache) storeTodos(ctx context.Context, userID string, todos []domain.Todo) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	cached := make([]cachedTodo, len(todos))
	for i, todo := range todos {
		cached[i] = cachedTodo{
			ID:          todo.ID,
			UserID:      todo.UserID,
			Title:       todo.Title,
			IsCompleted: todo.IsCompleted,
			CreatedAt:   todo.CreatedAt,
		}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, todosCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, todosCacheKey(userID)).Result()
}

func todosCacheKey(userID string) string {
	return "todos:" + userID
}
