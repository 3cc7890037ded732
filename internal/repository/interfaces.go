package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/personas-api/internal/model"
)

// ErrDuplicateDocument is returned by Create when another record already
// holds the document number.
var ErrDuplicateDocument = errors.New("document number already registered")

// All repository interfaces in one file
type (
	// PersonaRepository is the record store for patient records. Lookups
	// return (nil, nil) when no record matches.
	PersonaRepository interface {
		Create(ctx context.Context, persona *model.Persona) error
		Get(ctx context.Context, id int64) (*model.Persona, error)
		GetByDocument(ctx context.Context, documentNumber string) (*model.Persona, error)
		List(ctx context.Context, filters *model.PersonaFilters) ([]*model.Persona, error)
		Update(ctx context.Context, id int64, patch *model.PersonaPatch) (*model.Persona, error)
		SetStatus(ctx context.Context, id int64, status model.PersonaStatus) (bool, error)
		Ping(ctx context.Context) error
	}
)
