package api

import (
	"context"

	"todo-api/domain"
)

// Storage abstracts persistence for handlers. Every todo operation is
// scoped to the calling user; implementations must report a foreign record
// with the same error as a missing one.
type Storage interface {
	ListTodos(ctx context.Context, userID string) ([]domain.Todo, error)
	GetTodo(ctx context.Context, userID, id string) (domain.Todo, error)
	InsertTodo(ctx context.Context, todo domain.Todo) error
	UpdateTodo(ctx context.Context, todo domain.Todo) error
	DeleteTodo(ctx context.Context, userID, id string) error
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	InsertUser(ctx context.Context, user domain.User) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// TokenIssuer mints signed tokens for authenticated users.
type TokenIssuer interface {
	Issue(user domain.User) (string, error)
}
