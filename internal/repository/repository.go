// Package repository declares the storage interfaces of the gallery. The
// sqlite subpackage implements them.
package repository

import (
	"context"

	"github.com/sakif/fragments/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Technology filters the list when set.
	Technology string
}

type FragmentRepository interface {
	Create(ctx context.Context, f *model.Fragment) error
	GetByID(ctx context.Context, id string) (*model.Fragment, error)
	List(ctx context.Context, opts ListOptions) ([]model.Fragment, error)
	SetThumbnail(ctx context.Context, id, url string) error
	Delete(ctx context.Context, id string) error
}

// ResonanceRepository keeps the per-visitor likes and the fragment's count
// in step.
type ResonanceRepository interface {
	// Resonate records the like and returns the new count. A repeated like
	// returns apperror.ErrConflict.
	Resonate(ctx context.Context, fragmentID, visitorID string) (int, error)
	// Unresonate removes the like and returns the new count.
	Unresonate(ctx context.Context, fragmentID, visitorID string) (int, error)
}

type WhisperRepository interface {
	CreateWhisper(ctx context.Context, w *model.Whisper) error
	ListWhispers(ctx context.Context, fragmentID string, opts ListOptions) ([]model.Whisper, error)
}
