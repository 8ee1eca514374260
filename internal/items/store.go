package items

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("item not found")

// Item is the single resource the registry manages. IDs are supplied by the
// caller and are not required to be unique.
type Item struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Store is the ordered item registry. Update and Delete act on the first item
// in insertion order whose ID matches and return ErrNotFound when none does.
type Store interface {
	List(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, it Item) error
	Update(ctx context.Context, id uint64, name string) (Item, error)
	Delete(ctx context.Context, id uint64) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
