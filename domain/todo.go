package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

const maxTitleLen = 500

// ErrInvalidTitle is returned when a todo title is empty or whitespace only
// after trimming, or exceeds the maximum length.
var ErrInvalidTitle = errors.New("title must be between 1 and 500 characters")

// Todo represents a single task item owned by one user. The owner id is
// never serialized to clients.
type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewTodo builds a fresh todo for the given owner. The title is stored
// trimmed; callers must have validated it first.
func NewTodo(id, userID, title string, now time.Time) Todo {
	return Todo{
		ID:        id,
		UserID:    userID,
		Title:     strings.TrimSpace(title),
		CreatedAt: now.UTC(),
	}
}

// ValidateTitle rejects titles that are empty or whitespace only after
// trimming, or longer than 500 characters.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" || len(trimmed) > maxTitleLen {
		return ErrInvalidTitle
	}
	return nil
}

// SortNewestFirst orders todos by creation time descending. The sort is
// stable so equal timestamps keep their relative order.
func SortNewestFirst(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}
