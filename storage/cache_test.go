package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

type stubBackend struct {
	listTodosFn  func(ctx context.Context, userID string) ([]domain.Todo, error)
	getTodoFn    func(ctx context.Context, userID, id string) (domain.Todo, error)
	insertTodoFn func(ctx context.Context, todo domain.Todo) error
	updateTodoFn func(ctx context.Context, todo domain.Todo) error
	deleteTodoFn func(ctx context.Context, userID, id string) error
	findUserFn   func(ctx context.Context, email string) (domain.User, error)
	insertUserFn func(ctx context.Context, user domain.User) error
}

func (s *stubBackend) ListTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	if s.listTodosFn == nil {
		return nil, errors.New("unexpected ListTodos call")
	}
	return s.listTodosFn(ctx, userID)
}

func (s *stubBackend) GetTodo(ctx context.Context, userID, id string) (domain.Todo, error) {
	if s.getTodoFn == nil {
		return domain.Todo{}, errors.New("unexpected GetTodo call")
	}
	return s.getTodoFn(ctx, userID, id)
}

func (s *stubBackend) InsertTodo(ctx context.Context, todo domain.Todo) error {
	if s.insertTodoFn == nil {
		return errors.New("unexpected InsertTodo call")
	}
	return s.insertTodoFn(ctx, todo)
}

func (s *stubBackend) UpdateTodo(ctx context.Context, todo domain.Todo) error {
	if s.updateTodoFn == nil {
		return errors.New("unexpected UpdateTodo call")
	}
	return s.updateTodoFn(ctx, todo)
}

func (s *stubBackend) DeleteTodo(ctx context.Context, userID, id string) error {
	if s.deleteTodoFn == nil {
		return errors.New("unexpected DeleteTodo call")
	}
	return s.deleteTodoFn(ctx, userID, id)
}

func (s *stubBackend) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.findUserFn == nil {
		return domain.User{}, errors.New("unexpected FindUserByEmail call")
	}
	return s.findUserFn(ctx, email)
}

func (s *stubBackend) InsertUser(ctx context.Context, user domain.User) error {
	if s.insertUserFn == nil {
		return errors.New("unexpected InsertUser call")
	}
	return s.insertUserFn(ctx, user)
}

func newCacheRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListTodosMissThenHit(t *testing.T) {
	mr, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Todo{{ID: "t1", UserID: userID, Title: "Write code", CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}}

	var calls int
	cache := NewCache(&stubBackend{
		listTodosFn: func(ctx context.Context, uid string) ([]domain.Todo, error) {
			calls++
			if uid != userID {
				t.Fatalf("unexpected user id: %s", uid)
			}
			return append([]domain.Todo(nil), expected...), nil
		},
	}, client, time.Minute)

	todos, err := cache.ListTodos(ctx, userID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if !reflect.DeepEqual(todos, expected) {
		t.Fatalf("unexpected todos: %#v", todos)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(todosCacheKey(userID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTodos(ctx, userID)
	if err != nil {
		t.Fatalf("list cached todos: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached todos: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCachePreservesOwnerAcrossRoundTrip(t *testing.T) {
	_, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "owner-1"
	stored := []domain.Todo{{ID: "t1", UserID: userID, Title: "mine"}}

	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			return append([]domain.Todo(nil), stored...), nil
		},
	}, client, time.Minute)

	if _, err := cache.ListTodos(ctx, userID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	cached, err := cache.ListTodos(ctx, userID)
	if err != nil {
		t.Fatalf("cached list: %v", err)
	}
	// The domain Todo hides UserID from JSON; the cache codec must keep it.
	if cached[0].UserID != userID {
		t.Fatalf("owner id lost in cache round trip: %#v", cached[0])
	}
}

func TestCacheEvictsOnWrites(t *testing.T) {
	mr, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "user-2"
	todo := domain.Todo{ID: "t1", UserID: userID, Title: "initial"}

	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			return []domain.Todo{todo}, nil
		},
		insertTodoFn: func(context.Context, domain.Todo) error { return nil },
		updateTodoFn: func(context.Context, domain.Todo) error { return nil },
		deleteTodoFn: func(context.Context, string, string) error { return nil },
	}, client, time.Minute)

	prime := func() {
		t.Helper()
		if _, err := cache.ListTodos(ctx, userID); err != nil {
			t.Fatalf("prime cache: %v", err)
		}
		if !mr.Exists(todosCacheKey(userID)) {
			t.Fatalf("expected todos to be cached")
		}
	}

	prime()
	if err := cache.InsertTodo(ctx, todo); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if mr.Exists(todosCacheKey(userID)) {
		t.Fatalf("cache key should be evicted after insert")
	}

	prime()
	if err := cache.UpdateTodo(ctx, todo); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists(todosCacheKey(userID)) {
		t.Fatalf("cache key should be evicted after update")
	}

	prime()
	if err := cache.DeleteTodo(ctx, userID, todo.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(todosCacheKey(userID)) {
		t.Fatalf("cache key should be evicted after delete")
	}
}

func TestCacheFailedWriteKeepsCache(t *testing.T) {
	mr, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "user-3"
	boom := errors.New("storage down")

	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			return []domain.Todo{{ID: "t1", UserID: userID}}, nil
		},
		insertTodoFn: func(context.Context, domain.Todo) error { return boom },
	}, client, time.Minute)

	if _, err := cache.ListTodos(ctx, userID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := cache.InsertTodo(ctx, domain.Todo{UserID: userID}); !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if !mr.Exists(todosCacheKey(userID)) {
		t.Fatalf("failed write must not evict the cache")
	}
}

func TestCacheCorruptPayloadFallsBack(t *testing.T) {
	mr, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "user-4"
	expected := []domain.Todo{{ID: "t1", UserID: userID, Title: "fresh"}}

	var calls int
	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			calls++
			return append([]domain.Todo(nil), expected...), nil
		},
	}, client, time.Minute)

	if err := mr.Set(todosCacheKey(userID), "{not json"); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}

	todos, err := cache.ListTodos(ctx, userID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if !reflect.DeepEqual(todos, expected) {
		t.Fatalf("unexpected todos: %#v", todos)
	}
	if calls != 1 {
		t.Fatalf("expected fallback to backend, calls=%d", calls)
	}
}

func TestCacheRedisDownFallsBack(t *testing.T) {
	mr, client := newCacheRedis(t)

	ctx := context.Background()
	userID := "user-5"
	expected := []domain.Todo{{ID: "t1", UserID: userID}}

	var calls int
	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			calls++
			return append([]domain.Todo(nil), expected...), nil
		},
	}, client, time.Minute)

	mr.Close()

	for i := 0; i < 2; i++ {
		todos, err := cache.ListTodos(ctx, userID)
		if err != nil {
			t.Fatalf("list todos with redis down: %v", err)
		}
		if !reflect.DeepEqual(todos, expected) {
			t.Fatalf("unexpected todos: %#v", todos)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every fetch to hit backend, calls=%d", calls)
	}
}

func TestCacheNilClientPassesThrough(t *testing.T) {
	ctx := context.Background()
	expected := []domain.Todo{{ID: "t1", UserID: "u"}}

	var calls int
	cache := NewCache(&stubBackend{
		listTodosFn: func(context.Context, string) ([]domain.Todo, error) {
			calls++
			return append([]domain.Todo(nil), expected...), nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.ListTodos(ctx, "u"); err != nil {
			t.Fatalf("list todos: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected no caching without a client, calls=%d", calls)
	}
}

func TestCacheUserOpsPassThrough(t *testing.T) {
	_, client := newCacheRedis(t)

	ctx := context.Background()
	user := domain.User{ID: "u1", Email: "a@x.com"}

	var inserted, found bool
	cache := NewCache(&stubBackend{
		insertUserFn: func(_ context.Context, u domain.User) error {
			inserted = true
			if u.ID != user.ID {
				t.Fatalf("unexpected user: %+v", u)
			}
			return nil
		},
		findUserFn: func(_ context.Context, email string) (domain.User, error) {
			found = true
			return user, nil
		},
	}, client, time.Minute)

	if err := cache.InsertUser(ctx, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := cache.FindUserByEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !inserted || !found {
		t.Fatalf("user operations must delegate to the backing store")
	}
}
