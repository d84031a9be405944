package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"compass/internal/model"
	"compass/internal/softdelete"
)

// Subject is a business type served by the CRUD endpoints.
type Subject interface {
	softdelete.Record
	Validate() error
}

// SubjectRepository is the typed persistence of one subject table.
type SubjectRepository[T Subject] interface {
	Descriptor() softdelete.Descriptor
	Create(ctx context.Context, item T) error
	Get(ctx context.Context, ref softdelete.EntityRef) (T, error)
	List(ctx context.Context, page model.PageQuery) ([]T, int, error)
}

type authored interface {
	AssignAuthor(userID uuid.UUID)
}

// CatalogService creates and reads live records of one subject type. Deleted
// records are invisible here; the recycle bin owns them.
type CatalogService[T Subject] struct {
	repo SubjectRepository[T]
}

func NewCatalogService[T Subject](repo SubjectRepository[T]) *CatalogService[T] {
	return &CatalogService[T]{repo: repo}
}

func (s *CatalogService[T]) Descriptor() softdelete.Descriptor {
	return s.repo.Descriptor()
}

func (s *CatalogService[T]) Create(ctx context.Context, actor model.AuditActor, item T) (T, error) {
	if err := item.Validate(); err != nil {
		var zero T
		return zero, err
	}

	if withAuthor, ok := any(item).(authored); ok {
		if userID, err := uuid.Parse(actor.UserID); err == nil {
			withAuthor.AssignAuthor(userID)
		}
	}

	if err := s.repo.Create(ctx, item); err != nil {
		var zero T
		return zero, fmt.Errorf("create %s: %w", s.repo.Descriptor().Type, err)
	}
	return item, nil
}

func (s *CatalogService[T]) Get(ctx context.Context, rawID string) (T, error) {
	d := s.repo.Descriptor()
	ref, err := softdelete.ParseRef(d.Type, d.KeyKind, rawID)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.repo.Get(ctx, ref)
}

func (s *CatalogService[T]) List(ctx context.Context, page model.PageQuery) ([]T, model.Meta, error) {
	page.Normalize()
	items, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list %s: %w", s.repo.Descriptor().Type, err)
	}
	return items, page.Meta(total), nil
}
