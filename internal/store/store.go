package store

import (
	"context"
	"errors"

	"bizbook/core/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRecord     = errors.New("invalid record")
)

// ListQuery narrows a listing. Limit 0 returns every match; Page starts at 1.
type ListQuery struct {
	Search string
	Page   int
	Limit  int
}

// Repository is the dev entity service's storage. Inputs are the wire bodies
// from domain (NewClient, NewProduct, NewTransaction, NewAccount) matching the
// kind; records come back as the concrete domain types.
type Repository interface {
	List(ctx context.Context, kind domain.Kind, q ListQuery) ([]domain.Entity, error)
	Get(ctx context.Context, kind domain.Kind, id string) (domain.Entity, error)
	// Create replays the first result for a repeated non-empty idempotency key.
	Create(ctx context.Context, kind domain.Kind, input any, idempotencyKey string) (domain.Entity, error)
	Update(ctx context.Context, kind domain.Kind, id string, input any) (domain.Entity, error)
	Delete(ctx context.Context, kind domain.Kind, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
