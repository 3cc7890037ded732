package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/personas-api/internal/model"
	"github.com/jwalitptl/personas-api/internal/repository"
	apperrors "github.com/jwalitptl/personas-api/pkg/errors"
	"github.com/jwalitptl/personas-api/pkg/logger"
	"github.com/jwalitptl/personas-api/pkg/validator"
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

type PersonaService interface {
	CreatePersona(ctx context.Context, req *model.CreatePersonaRequest) (*model.Persona, error)
	GetPersona(ctx context.Context, id int64) (*model.Persona, error)
	GetPersonaByDocument(ctx context.Context, documentNumber string) (*model.Persona, error)
	ListPersonas(ctx context.Context, filters *model.PersonaFilters) ([]*model.Persona, error)
	UpdatePersona(ctx context.Context, id int64, req *model.UpdatePersonaRequest) (*model.Persona, error)
	DeactivatePersona(ctx context.Context, id int64) (*model.DeactivationResult, error)
}

type Service struct {
	repo      repository.PersonaRepository
	validator validator.Validator
	log       *logger.Logger
	now       func() time.Time
}

func NewService(repo repository.PersonaRepository, v validator.Validator, log *logger.Logger) *Service {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		validator: v,
		log:       log,
		now:       time.Now,
	}
}

var _ PersonaService = (*Service)(nil)

func (s *Service) CreatePersona(ctx context.Context, req *model.CreatePersonaRequest) (*model.Persona, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	normalizeCreate(req)
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByDocument(ctx, req.DocumentNumber)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to check document: %w", err))
	}
	if existing != nil {
		s.log.Warn("duplicate document", "document_number", req.DocumentNumber, "persona_id", existing.ID)
		return nil, duplicateDocument(req.DocumentNumber, existing.ID)
	}

	persona := req.ToPersona()
	if err := s.repo.Create(ctx, persona); err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			return nil, s.lostCreateRace(ctx, req.DocumentNumber)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to create persona: %w", err))
	}

	s.log.Info("persona created", "persona_id", persona.ID, "document_number", persona.DocumentNumber)
	return persona, nil
}

// lostCreateRace builds the conflict for an insert that passed the
// document check but lost to a concurrent insert at the unique constraint.
func (s *Service) lostCreateRace(ctx context.Context, documentNumber string) error {
	winner, err := s.repo.GetByDocument(ctx, documentNumber)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("failed to read conflicting persona: %w", err))
	}
	var id int64
	if winner != nil {
		id = winner.ID
	}
	s.log.Warn("duplicate document on insert", "document_number", documentNumber, "persona_id", id)
	return duplicateDocument(documentNumber, id)
}

func duplicateDocument(documentNumber string, existingID int64) error {
	return apperrors.NewConflict(
		fmt.Sprintf("a persona with document %s already exists", documentNumber),
		existingID,
	)
}

func (s *Service) validateCreate(req *model.CreatePersonaRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if req.BirthDate.Time().After(s.now()) {
		return apperrors.Validation("invalid request payload", apperrors.FieldError{
			Field:   "birth_date",
			Message: "must not be in the future",
		})
	}
	return nil
}

func (s *Service) GetPersona(ctx context.Context, id int64) (*model.Persona, error) {
	persona, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get persona: %w", err))
	}
	if persona == nil {
		return nil, notFoundByID(id)
	}
	return persona, nil
}

func (s *Service) GetPersonaByDocument(ctx context.Context, documentNumber string) (*model.Persona, error) {
	documentNumber = strings.TrimSpace(documentNumber)
	persona, err := s.repo.GetByDocument(ctx, documentNumber)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get persona by document: %w", err))
	}
	if persona == nil {
		e := apperrors.NotFound("persona", nil)
		e.Message = fmt.Sprintf("persona with document %s not found", documentNumber)
		return nil, e
	}
	return persona, nil
}

func (s *Service) ListPersonas(ctx context.Context, filters *model.PersonaFilters) ([]*model.Persona, error) {
	if filters == nil {
		filters = &model.PersonaFilters{Pagination: model.Pagination{Limit: DefaultLimit}}
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	personas, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list personas: %w", err))
	}
	if personas == nil {
		personas = []*model.Persona{}
	}
	return personas, nil
}

// validateFilters rejects out-of-range paging instead of clamping it.
func validateFilters(filters *model.PersonaFilters) error {
	var fields []apperrors.FieldError
	if filters.Skip < 0 {
		fields = append(fields, apperrors.FieldError{Field: "skip", Message: "must be greater than or equal to 0"})
	}
	if filters.Limit < 1 || filters.Limit > MaxLimit {
		fields = append(fields, apperrors.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)})
	}
	if filters.Status != "" && !filters.Status.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "estado", Message: "must be one of: active inactive"})
	}
	if len(fields) > 0 {
		return apperrors.Validation("invalid query parameters", fields...)
	}
	filters.SearchTerm = strings.TrimSpace(filters.SearchTerm)
	return nil
}

func (s *Service) UpdatePersona(ctx context.Context, id int64, req *model.UpdatePersonaRequest) (*model.Persona, error) {
	if req == nil {
		req = &model.UpdatePersonaRequest{}
	}
	normalizeUpdate(req)
	if err := s.validateUpdate(req); err != nil {
		return nil, err
	}

	if req.Empty() {
		return s.GetPersona(ctx, id)
	}

	persona, err := s.repo.Update(ctx, id, req.Patch())
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to update persona: %w", err))
	}
	if persona == nil {
		return nil, notFoundByID(id)
	}

	s.log.Info("persona updated", "persona_id", id)
	return persona, nil
}

func (s *Service) validateUpdate(req *model.UpdatePersonaRequest) error {
	checks := []struct {
		field string
		value model.NullString
		rules []string
	}{
		{"email", req.Email, []string{"email", "max=255"}},
		{"phone", req.Phone, []string{"phone"}},
		{"emergency_contact", req.EmergencyContact, []string{"max=100"}},
	}
	for _, c := range checks {
		if !c.value.Valid {
			continue
		}
		if err := s.validator.ValidateField(c.field, c.value.String, c.rules...); err != nil {
			return err
		}
	}

	if req.Status.Set {
		if !req.Status.Valid || !model.PersonaStatus(req.Status.String).Valid() {
			return apperrors.Validation("invalid request payload", apperrors.FieldError{
				Field:   "status",
				Message: "must be one of: active inactive",
			})
		}
	}
	return nil
}

// DeactivatePersona soft-deletes a persona. Repeating it on an inactive
// record succeeds.
func (s *Service) DeactivatePersona(ctx context.Context, id int64) (*model.DeactivationResult, error) {
	ok, err := s.repo.SetStatus(ctx, id, model.PersonaStatusInactive)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to deactivate persona: %w", err))
	}
	if !ok {
		return nil, notFoundByID(id)
	}

	s.log.Info("persona deactivated", "persona_id", id)
	return &model.DeactivationResult{
		PersonaID: id,
		Action:    "soft_delete",
		Status:    model.PersonaStatusInactive,
	}, nil
}

func notFoundByID(id int64) error {
	e := apperrors.NotFound("persona", nil)
	e.Message = fmt.Sprintf("persona with id %d not found", id)
	return e
}

func normalizeCreate(req *model.CreatePersonaRequest) {
	req.DocumentType = model.DocumentType(strings.ToUpper(strings.TrimSpace(string(req.DocumentType))))
	req.DocumentNumber = strings.TrimSpace(req.DocumentNumber)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Sex = model.Sex(strings.ToUpper(strings.TrimSpace(string(req.Sex))))

	for _, f := range []**string{
		&req.Email, &req.Phone, &req.Address, &req.EmergencyContact,
		&req.Allergies, &req.MedicalHistorySummary,
	} {
		*f = trimOptional(*f)
	}
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// normalizeUpdate trims supplied values. An empty string clears the field
// the same way null does.
func normalizeUpdate(req *model.UpdatePersonaRequest) {
	for _, f := range []*model.NullString{
		&req.Email, &req.Phone, &req.Address, &req.EmergencyContact,
		&req.Allergies, &req.MedicalHistorySummary,
	} {
		if !f.Valid {
			continue
		}
		f.String = strings.TrimSpace(f.String)
		if f.String == "" {
			*f = model.Null()
		}
	}
	if req.Status.Valid {
		req.Status.String = strings.ToLower(strings.TrimSpace(req.Status.String))
	}
}
