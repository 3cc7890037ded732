package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/personas-api/internal/model"
	"github.com/jwalitptl/personas-api/internal/repository"
	"github.com/jwalitptl/personas-api/pkg/metrics"
)

const uniqueViolation = "23505"

const personaColumns = `id, document_type, document_number, first_name, last_name, birth_date, sex,
	email, phone, address, emergency_contact, allergies, medical_history_summary,
	status, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type personaRepository struct {
	BaseRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

// storeNow matches TIMESTAMPTZ precision so returned records equal what a
// later read scans back.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func NewPersonaRepository(db *sqlx.DB, m *metrics.Metrics) repository.PersonaRepository {
	return &personaRepository{
		BaseRepository: NewBaseRepository(db),
		metrics:        m,
		now:            storeNow,
	}
}

func (r *personaRepository) Create(ctx context.Context, persona *model.Persona) (err error) {
	defer func(start time.Time) { r.metrics.ObserveDB("insert", start, err) }(time.Now())

	query := `
		INSERT INTO personas (
			document_type, document_number, first_name, last_name, birth_date, sex,
			email, phone, address, emergency_contact, allergies, medical_history_summary,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	now := r.now()
	if persona.Status == "" {
		persona.Status = model.PersonaStatusActive
	}
	persona.CreatedAt = now
	persona.UpdatedAt = now

	err = r.db.QueryRowxContext(ctx, query,
		persona.DocumentType,
		persona.DocumentNumber,
		persona.FirstName,
		persona.LastName,
		persona.BirthDate,
		persona.Sex,
		persona.Email,
		persona.Phone,
		persona.Address,
		persona.EmergencyContact,
		persona.Allergies,
		persona.MedicalHistorySummary,
		persona.Status,
		persona.CreatedAt,
		persona.UpdatedAt,
	).Scan(&persona.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateDocument
		}
		return fmt.Errorf("failed to create persona: %w", err)
	}
	return nil
}

func (r *personaRepository) Get(ctx context.Context, id int64) (*model.Persona, error) {
	return r.getOne(ctx, "get", `SELECT `+personaColumns+` FROM personas WHERE id = $1`, id)
}

func (r *personaRepository) GetByDocument(ctx context.Context, documentNumber string) (*model.Persona, error) {
	return r.getOne(ctx, "get_by_document", `SELECT `+personaColumns+` FROM personas WHERE document_number = $1`, documentNumber)
}

func (r *personaRepository) getOne(ctx context.Context, op, query string, arg interface{}) (p *model.Persona, err error) {
	defer func(start time.Time) { r.metrics.ObserveDB(op, start, err) }(time.Now())

	var persona model.Persona
	err = r.db.GetContext(ctx, &persona, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	return &persona, nil
}

func (r *personaRepository) List(ctx context.Context, filters *model.PersonaFilters) (personas []*model.Persona, err error) {
	defer func(start time.Time) { r.metrics.ObserveDB("query", start, err) }(time.Now())

	query, args := buildListQuery(filters)
	personas = make([]*model.Persona, 0)
	if err = r.db.SelectContext(ctx, &personas, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	return personas, nil
}

func buildListQuery(filters *model.PersonaFilters) (string, []interface{}) {
	if filters == nil {
		filters = &model.PersonaFilters{}
	}

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != "" {
		where = append(where, "status = "+arg(filters.Status))
	}
	if term := strings.TrimSpace(filters.SearchTerm); term != "" {
		p := arg("%" + likeEscaper.Replace(term) + "%")
		where = append(where, fmt.Sprintf("(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR document_number ILIKE %[1]s)", p))
	}

	var b strings.Builder
	b.WriteString("SELECT " + personaColumns + " FROM personas")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	b.WriteString(" OFFSET " + arg(filters.Skip))
	if filters.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filters.Limit))
	}
	return b.String(), args
}

func (r *personaRepository) Update(ctx context.Context, id int64, patch *model.PersonaPatch) (p *model.Persona, err error) {
	defer func(start time.Time) { r.metrics.ObserveDB("update", start, err) }(time.Now())

	query, args := buildUpdateQuery(id, patch, r.now())

	var persona model.Persona
	err = r.db.GetContext(ctx, &persona, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update persona: %w", err)
	}
	return &persona, nil
}

func buildUpdateQuery(id int64, patch *model.PersonaPatch, now time.Time) (string, []interface{}) {
	if patch == nil {
		patch = &model.PersonaPatch{}
	}

	var (
		sets []string
		args []interface{}
	)
	set := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setNullable := func(column string, v *model.NullString) {
		if v != nil {
			set(column, v.Ptr())
		}
	}

	setNullable("email", patch.Email)
	setNullable("phone", patch.Phone)
	setNullable("address", patch.Address)
	setNullable("emergency_contact", patch.EmergencyContact)
	setNullable("allergies", patch.Allergies)
	setNullable("medical_history_summary", patch.MedicalHistorySummary)
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	set("updated_at", now)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE personas SET %s WHERE id = $%d RETURNING `+personaColumns,
		strings.Join(sets, ", "), len(args))
	return query, args
}

func (r *personaRepository) SetStatus(ctx context.Context, id int64, status model.PersonaStatus) (ok bool, err error) {
	defer func(start time.Time) { r.metrics.ObserveDB("set_status", start, err) }(time.Now())

	query := `UPDATE personas SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, r.now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set persona status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set persona status: %w", err)
	}
	return n > 0, nil
}

func (r *personaRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
