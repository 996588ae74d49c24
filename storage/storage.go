package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"todo-api/domain"
)

// Storage persists todos and user identities in Azure Table Storage.
//
// Todos are keyed (PartitionKey = owner id, RowKey = todo id), so every
// operation is scoped to the caller's partition and a record owned by
// another user is indistinguishable from a missing one. Users are keyed by
// normalized email, which makes email uniqueness an atomic insert conflict.
type Storage struct {
	todoTable *aztables.Client
	userTable *aztables.Client
}

const userPartition = "users"

// New creates a Storage instance from the given connection string.
func New(connStr, todosTable, usersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		todoTable: svc.NewClient(todosTable),
		userTable: svc.NewClient(usersTable),
	}, nil
}

type todoEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	IsCompleted bool   `json:"IsCompleted"`
	CreatedAt   string `json:"CreatedAt"`
}

type userEntity struct {
	aztables.Entity
	UserID       string `json:"UserId"`
	Email        string `json:"Email"`
	PasswordHash string `json:"PasswordHash"`
}

// ListTodos retrieves all todos owned by the given user, unordered.
func (s *Storage) ListTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.todoTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	todos := []domain.Todo{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			todo, err := decodeTodoEntity(e)
			if err != nil {
				return nil, err
			}
			todos = append(todos, todo)
		}
	}
	return todos, nil
}

// GetTodo fetches a single todo from the caller's partition. A todo owned
// by another user reports ErrNotFound.
func (s *Storage) GetTodo(ctx context.Context, userID, id string) (domain.Todo, error) {
	resp, err := s.todoTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Todo{}, ErrNotFound
		}
		return domain.Todo{}, err
	}
	return decodeTodoEntity(resp.Value)
}

// InsertTodo persists a freshly created todo.
func (s *Storage) InsertTodo(ctx context.Context, todo domain.Todo) error {
	data, err := json.Marshal(encodeTodoEntity(todo))
	if err != nil {
		return err
	}
	_, err = s.todoTable.AddEntity(ctx, data, nil)
	return err
}

// UpdateTodo replaces the stored todo in place. Missing records report
// ErrNotFound, including records that were deleted concurrently.
func (s *Storage) UpdateTodo(ctx context.Context, todo domain.Todo) error {
	data, err := json.Marshal(encodeTodoEntity(todo))
	if err != nil {
		return err
	}
	_, err = s.todoTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	if hasStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

// DeleteTodo removes a todo from the caller's partition.
func (s *Storage) DeleteTodo(ctx context.Context, userID, id string) error {
	_, err := s.todoTable.DeleteEntity(ctx, userID, id, nil)
	if hasStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

// FindUserByEmail looks up an identity by normalized email.
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, domain.NormalizeEmail(email), nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// InsertUser creates an identity. The insert conflicts when the email is
// already registered, which enforces uniqueness atomically.
func (s *Storage) InsertUser(ctx context.Context, user domain.User) error {
	ent := userEntity{
		Entity: aztables.Entity{
			PartitionKey: userPartition,
			RowKey:       domain.NormalizeEmail(user.Email),
		},
		UserID:       user.ID,
		Email:        user.Email,
		PasswordHash: string(user.PasswordHash),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, data, nil); err != nil {
		if hasStatus(err, http.StatusConflict) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func encodeTodoEntity(todo domain.Todo) todoEntity {
	return todoEntity{
		Entity: aztables.Entity{
			PartitionKey: todo.UserID,
			RowKey:       todo.ID,
		},
		Title:       todo.Title,
		IsCompleted: todo.IsCompleted,
		CreatedAt:   todo.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeTodoEntity(data []byte) (domain.Todo, error) {
	var ent todoEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Todo{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		return domain.Todo{}, err
	}
	return domain.Todo{
		ID:          ent.RowKey,
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		IsCompleted: ent.IsCompleted,
		CreatedAt:   createdAt,
	}, nil
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.UserID,
		Email:        ent.Email,
		PasswordHash: []byte(ent.PasswordHash),
	}, nil
}

func hasStatus(err error, status int) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
