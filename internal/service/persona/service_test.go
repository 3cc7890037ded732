package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/personas-api/internal/model"
	"github.com/jwalitptl/personas-api/internal/repository"
	"github.com/jwalitptl/personas-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/personas-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func validRequest(doc string) *model.CreatePersonaRequest {
	bd := model.NewDate(1990, time.January, 1)
	return &model.CreatePersonaRequest{
		DocumentType:   model.DocumentTypeVenezuelan,
		DocumentNumber: doc,
		FirstName:      "Jose",
		LastName:       "Perez",
		BirthDate:      &bd,
		Sex:            model.SexMale,
	}
}

func newTestService() *Service {
	return NewService(memory.NewPersonaRepository(), nil, nil)
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, apperrors.ErrValidation, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	var names []string
	for _, f := range details["fields"].([]apperrors.FieldError) {
		names = append(names, f.Field)
	}
	return names
}

func TestCreateThenGetByDocument(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	req := validRequest("12345678")
	req.Email = strPtr("jose@example.com")
	req.Phone = strPtr("0414-1234567")

	created, err := svc.CreatePersona(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, model.PersonaStatusActive, created.Status)

	got, err := svc.GetPersonaByDocument(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "jose@example.com", *got.Email)
	assert.Equal(t, "1990-01-01", got.BirthDate.String())
}

func TestCreateNormalizesInput(t *testing.T) {
	svc := newTestService()

	req := validRequest("  12345678 ")
	req.DocumentType = "v"
	req.FirstName = " Jose "
	req.Address = strPtr("   ")

	created, err := svc.CreatePersona(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "12345678", created.DocumentNumber)
	assert.Equal(t, model.DocumentTypeVenezuelan, created.DocumentType)
	assert.Equal(t, "Jose", created.FirstName)
	assert.Nil(t, created.Address)
}

func TestCreateDuplicateReturnsConflictWithExistingID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.CreatePersona(ctx, validRequest("12345678"))
	require.NoError(t, err)

	_, err = svc.CreatePersona(ctx, validRequest("12345678"))
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
	assert.Equal(t, first.ID, appErr.Details.(map[string]interface{})["persona_id"])
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	t.Run("missing mandatory fields", func(t *testing.T) {
		_, err := svc.CreatePersona(ctx, &model.CreatePersonaRequest{})
		names := fieldNames(t, err)
		assert.ElementsMatch(t, []string{"document_type", "document_number", "first_name", "last_name", "birth_date", "sex"}, names)
	})

	t.Run("bad phone", func(t *testing.T) {
		req := validRequest("1")
		req.Phone = strPtr("call me")
		_, err := svc.CreatePersona(ctx, req)
		assert.Equal(t, []string{"phone"}, fieldNames(t, err))
	})

	t.Run("bad enums and email", func(t *testing.T) {
		req := validRequest("2")
		req.DocumentType = "X"
		req.Sex = "Otro"
		req.Email = strPtr("nope")
		_, err := svc.CreatePersona(ctx, req)
		assert.ElementsMatch(t, []string{"document_type", "sex", "email"}, fieldNames(t, err))
	})

	t.Run("phone and email wider than their columns", func(t *testing.T) {
		req := validRequest("4")
		req.Phone = strPtr("+" + strings.Repeat("1", 20))
		req.Email = strPtr(strings.Repeat("a", 250) + "@example.com")
		_, err := svc.CreatePersona(ctx, req)
		assert.ElementsMatch(t, []string{"phone", "email"}, fieldNames(t, err))
	})

	t.Run("document too long", func(t *testing.T) {
		_, err := svc.CreatePersona(ctx, validRequest("123456789012345678901"))
		assert.Equal(t, []string{"document_number"}, fieldNames(t, err))
	})

	t.Run("future birth date", func(t *testing.T) {
		req := validRequest("3")
		future := model.Date(time.Now().AddDate(1, 0, 0))
		req.BirthDate = &future
		_, err := svc.CreatePersona(ctx, req)
		assert.Equal(t, []string{"birth_date"}, fieldNames(t, err))
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := svc.CreatePersona(ctx, nil)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})
}

func TestConcurrentCreatesSameDocument(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreatePersona(ctx, validRequest("RACE-1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperrors.Is(err, apperrors.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.GetPersona(context.Background(), 9999)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "not found")

	_, err = svc.GetPersonaByDocument(context.Background(), "none")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListFiltersAndBounds(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	a, err := svc.CreatePersona(ctx, validRequest("1"))
	require.NoError(t, err)
	b := validRequest("2")
	b.LastName = "Gomez"
	bb, err := svc.CreatePersona(ctx, b)
	require.NoError(t, err)
	_, err = svc.DeactivatePersona(ctx, bb.ID)
	require.NoError(t, err)

	active, err := svc.ListPersonas(ctx, &model.PersonaFilters{Pagination: model.Pagination{Limit: 100}, Status: model.PersonaStatusActive})
	require.NoError(t, err)
	for _, p := range active {
		assert.Equal(t, model.PersonaStatusActive, p.Status)
	}
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	inactive, err := svc.ListPersonas(ctx, &model.PersonaFilters{Pagination: model.Pagination{Limit: 100}, Status: model.PersonaStatusInactive})
	require.NoError(t, err)
	for _, p := range inactive {
		assert.Equal(t, model.PersonaStatusInactive, p.Status)
	}
	require.Len(t, inactive, 1)

	search, err := svc.ListPersonas(ctx, &model.PersonaFilters{Pagination: model.Pagination{Limit: 100}, SearchTerm: "perez"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "Perez", search[0].LastName)

	empty, err := svc.ListPersonas(ctx, &model.PersonaFilters{Pagination: model.Pagination{Limit: 100}, SearchTerm: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	defaults, err := svc.ListPersonas(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, defaults, 2)

	bad := []*model.PersonaFilters{
		{Pagination: model.Pagination{Skip: -1, Limit: 10}},
		{Pagination: model.Pagination{Limit: 0}},
		{Pagination: model.Pagination{Limit: 101}},
		{Pagination: model.Pagination{Limit: 10}, Status: "activo"},
	}
	for _, f := range bad {
		_, err := svc.ListPersonas(ctx, f)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "%+v", f)
	}
}

func TestUpdateOnlyTouchesSuppliedFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	req := validRequest("12345678")
	req.Email = strPtr("jose@example.com")
	created, err := svc.CreatePersona(ctx, req)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	updated, err := svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{
		Phone: model.NewNullString("0414-1234567"),
	})
	require.NoError(t, err)

	assert.Equal(t, "0414-1234567", *updated.Phone)
	assert.Equal(t, created.Email, updated.Email)
	assert.Equal(t, created.FirstName, updated.FirstName)
	assert.Equal(t, created.LastName, updated.LastName)
	assert.Equal(t, created.DocumentNumber, updated.DocumentNumber)
	assert.Equal(t, created.BirthDate, updated.BirthDate)
	assert.Equal(t, created.Status, updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateClearsAndReactivates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	req := validRequest("12345678")
	req.Allergies = strPtr("penicillin")
	created, err := svc.CreatePersona(ctx, req)
	require.NoError(t, err)

	_, err = svc.DeactivatePersona(ctx, created.ID)
	require.NoError(t, err)

	updated, err := svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{
		Allergies: model.NewNullString("  "),
		Status:    model.NewNullString("Active"),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Allergies)
	assert.Equal(t, model.PersonaStatusActive, updated.Status)
}

func TestUpdateValidationAndNotFound(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreatePersona(ctx, validRequest("12345678"))
	require.NoError(t, err)

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Phone: model.NewNullString("abc")})
	assert.Equal(t, []string{"phone"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Email: model.NewNullString("bad")})
	assert.Equal(t, []string{"email"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Phone: model.NewNullString("+" + strings.Repeat("1", 20))})
	assert.Equal(t, []string{"phone"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Email: model.NewNullString(strings.Repeat("a", 250) + "@example.com")})
	assert.Equal(t, []string{"email"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Status: model.Null()})
	assert.Equal(t, []string{"status"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, created.ID, &model.UpdatePersonaRequest{Status: model.NewNullString("deleted")})
	assert.Equal(t, []string{"status"}, fieldNames(t, err))

	_, err = svc.UpdatePersona(ctx, 9999, &model.UpdatePersonaRequest{Phone: model.NewNullString("0414-1234567")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.UpdatePersona(ctx, 9999, &model.UpdatePersonaRequest{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	same, err := svc.UpdatePersona(ctx, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, created.UpdatedAt, same.UpdatedAt)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreatePersona(ctx, validRequest("12345678"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := svc.DeactivatePersona(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, res.PersonaID)
		assert.Equal(t, model.PersonaStatusInactive, res.Status)
	}

	got, err := svc.GetPersona(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PersonaStatusInactive, got.Status)

	_, err = svc.DeactivatePersona(ctx, 9999)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

// mockRepository lets tests inject store failures.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, p *model.Persona) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*model.Persona, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Persona)
	return p, args.Error(1)
}

func (m *mockRepository) GetByDocument(ctx context.Context, doc string) (*model.Persona, error) {
	args := m.Called(ctx, doc)
	p, _ := args.Get(0).(*model.Persona)
	return p, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, f *model.PersonaFilters) ([]*model.Persona, error) {
	args := m.Called(ctx, f)
	ps, _ := args.Get(0).([]*model.Persona)
	return ps, args.Error(1)
}

func (m *mockRepository) Update(ctx context.Context, id int64, patch *model.PersonaPatch) (*model.Persona, error) {
	args := m.Called(ctx, id, patch)
	p, _ := args.Get(0).(*model.Persona)
	return p, args.Error(1)
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, status model.PersonaStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestStoreFailuresBecomeInternal(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	boom := fmt.Errorf("pq: connection reset")

	repo.On("Get", mock.Anything, int64(1)).Return(nil, boom)
	repo.On("GetByDocument", mock.Anything, "12345678").Return(nil, boom)
	repo.On("SetStatus", mock.Anything, int64(1), model.PersonaStatusInactive).Return(false, boom)
	repo.On("List", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := svc.GetPersona(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
	assert.ErrorIs(t, err, boom)

	_, err = svc.CreatePersona(ctx, validRequest("12345678"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	_, err = svc.DeactivatePersona(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	_, err = svc.ListPersonas(ctx, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	repo.AssertExpectations(t)
}

func TestCreateLosingRaceAtConstraint(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	winner := &model.Persona{ID: 5, DocumentNumber: "12345678"}
	repo.On("GetByDocument", mock.Anything, "12345678").Return(nil, nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateDocument).Once()
	repo.On("GetByDocument", mock.Anything, "12345678").Return(winner, nil).Once()

	_, err := svc.CreatePersona(ctx, validRequest("12345678"))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
	assert.Equal(t, int64(5), appErr.Details.(map[string]interface{})["persona_id"])

	repo.AssertExpectations(t)
}
