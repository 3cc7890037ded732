package model

import (
	"time"
)

type PersonaStatus string

const (
	PersonaStatusActive   PersonaStatus = "active"
	PersonaStatusInactive PersonaStatus = "inactive"
)

func (s PersonaStatus) Valid() bool {
	return s == PersonaStatusActive || s == PersonaStatusInactive
}

type DocumentType string

const (
	DocumentTypeVenezuelan DocumentType = "V"
	DocumentTypeForeign    DocumentType = "E"
	DocumentTypePassport   DocumentType = "P"
	DocumentTypeLegal      DocumentType = "J"
)

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "O"
)

// Persona is a patient record ("persona atendida").
type Persona struct {
	ID                    int64         `db:"id" json:"id"`
	DocumentType          DocumentType  `db:"document_type" json:"document_type"`
	DocumentNumber        string        `db:"document_number" json:"document_number"`
	FirstName             string        `db:"first_name" json:"first_name"`
	LastName              string        `db:"last_name" json:"last_name"`
	BirthDate             Date          `db:"birth_date" json:"birth_date"`
	Sex                   Sex           `db:"sex" json:"sex"`
	Email                 *string       `db:"email" json:"email"`
	Phone                 *string       `db:"phone" json:"phone"`
	Address               *string       `db:"address" json:"address"`
	EmergencyContact      *string       `db:"emergency_contact" json:"emergency_contact"`
	Allergies             *string       `db:"allergies" json:"allergies"`
	MedicalHistorySummary *string       `db:"medical_history_summary" json:"medical_history_summary"`
	Status                PersonaStatus `db:"status" json:"status"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
}

type CreatePersonaRequest struct {
	DocumentType          DocumentType `json:"document_type" validate:"required,oneof=V E P J"`
	DocumentNumber        string       `json:"document_number" validate:"required,min=1,max=20"`
	FirstName             string       `json:"first_name" validate:"required,min=1,max=100"`
	LastName              string       `json:"last_name" validate:"required,min=1,max=100"`
	BirthDate             *Date        `json:"birth_date" validate:"required"`
	Sex                   Sex          `json:"sex" validate:"required,oneof=M F O"`
	Email                 *string      `json:"email" validate:"omitempty,email,max=255"`
	Phone                 *string      `json:"phone" validate:"omitempty,phone"`
	Address               *string      `json:"address"`
	EmergencyContact      *string      `json:"emergency_contact" validate:"omitempty,max=100"`
	Allergies             *string      `json:"allergies"`
	MedicalHistorySummary *string      `json:"medical_history_summary"`
}

// ToPersona builds the record to insert. Status, ID and timestamps are
// assigned by the store.
func (r *CreatePersonaRequest) ToPersona() *Persona {
	p := &Persona{
		DocumentType:          r.DocumentType,
		DocumentNumber:        r.DocumentNumber,
		FirstName:             r.FirstName,
		LastName:              r.LastName,
		Sex:                   r.Sex,
		Email:                 r.Email,
		Phone:                 r.Phone,
		Address:               r.Address,
		EmergencyContact:      r.EmergencyContact,
		Allergies:             r.Allergies,
		MedicalHistorySummary: r.MedicalHistorySummary,
	}
	if r.BirthDate != nil {
		p.BirthDate = *r.BirthDate
	}
	return p
}

// UpdatePersonaRequest lists the only fields mutable after creation. Keys
// for any other field in a PATCH body are ignored.
type UpdatePersonaRequest struct {
	Email                 NullString `json:"email"`
	Phone                 NullString `json:"phone"`
	Address               NullString `json:"address"`
	EmergencyContact      NullString `json:"emergency_contact"`
	Allergies             NullString `json:"allergies"`
	MedicalHistorySummary NullString `json:"medical_history_summary"`
	Status                NullString `json:"status"`
}

// Empty reports whether no field was supplied.
func (r *UpdatePersonaRequest) Empty() bool {
	return !r.Email.Set && !r.Phone.Set && !r.Address.Set && !r.EmergencyContact.Set &&
		!r.Allergies.Set && !r.MedicalHistorySummary.Set && !r.Status.Set
}

// PersonaPatch is the column-level change set handed to the store. A nil
// *NullString leaves the column untouched.
type PersonaPatch struct {
	Email                 *NullString
	Phone                 *NullString
	Address               *NullString
	EmergencyContact      *NullString
	Allergies             *NullString
	MedicalHistorySummary *NullString
	Status                *PersonaStatus
}

// Patch converts the request into a store patch.
func (r *UpdatePersonaRequest) Patch() *PersonaPatch {
	pick := func(n NullString) *NullString {
		if !n.Set {
			return nil
		}
		v := n
		return &v
	}
	patch := &PersonaPatch{
		Email:                 pick(r.Email),
		Phone:                 pick(r.Phone),
		Address:               pick(r.Address),
		EmergencyContact:      pick(r.EmergencyContact),
		Allergies:             pick(r.Allergies),
		MedicalHistorySummary: pick(r.MedicalHistorySummary),
	}
	if r.Status.Set && r.Status.Valid {
		s := PersonaStatus(r.Status.String)
		patch.Status = &s
	}
	return patch
}

// Apply writes the patch onto p. Used by stores that mutate in place.
func (p *PersonaPatch) Apply(persona *Persona) {
	set := func(dst **string, v *NullString) {
		if v != nil {
			*dst = v.Ptr()
		}
	}
	set(&persona.Email, p.Email)
	set(&persona.Phone, p.Phone)
	set(&persona.Address, p.Address)
	set(&persona.EmergencyContact, p.EmergencyContact)
	set(&persona.Allergies, p.Allergies)
	set(&persona.MedicalHistorySummary, p.MedicalHistorySummary)
	if p.Status != nil {
		persona.Status = *p.Status
	}
}

type PersonaFilters struct {
	Pagination
	Status     PersonaStatus `json:"status" form:"estado"`
	SearchTerm string        `json:"search_term" form:"search"`
}

// DeactivationResult is the confirmation payload of a soft delete.
type DeactivationResult struct {
	PersonaID int64         `json:"persona_id"`
	Action    string        `json:"action"`
	Status    PersonaStatus `json:"status"`
}
