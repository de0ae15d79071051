package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Priority is the triage priority of a patient
type Priority string

const (
	PriorityEmergency Priority = "Emergency"
	PriorityUrgent    Priority = "Urgent"
	PriorityRoutine   Priority = "Routine"
)

// NoteType discriminates the clinical note variants
type NoteType string

const (
	NoteTypePhysician  NoteType = "physician"
	NoteTypeProcedure  NoteType = "procedure"
	NoteTypeSubjective NoteType = "subjective"
	NoteTypeTriage     NoteType = "triage"
)

// Patient is the document stored in the patients collection
type Patient struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`

	FirstName   string   `bson:"firstName" json:"firstName"`
	LastName    string   `bson:"lastName" json:"lastName"`
	DateOfBirth string   `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"` // YYYY-MM-DD
	Gender      string   `bson:"gender,omitempty" json:"gender,omitempty"`
	Phone       string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Email       string   `bson:"email,omitempty" json:"email,omitempty"`
	Address     string   `bson:"address,omitempty" json:"address,omitempty"`
	Language    string   `bson:"language,omitempty" json:"language,omitempty"`
	Country     string   `bson:"country,omitempty" json:"country,omitempty"`
	City        string   `bson:"city,omitempty" json:"city,omitempty"`
	Priority    Priority `bson:"priority,omitempty" json:"priority,omitempty"`

	PastMedicalHistory  string `bson:"pastMedicalHistory,omitempty" json:"pastMedicalHistory,omitempty"`
	PastSurgicalHistory string `bson:"pastSurgicalHistory,omitempty" json:"pastSurgicalHistory,omitempty"`
	FamilyHistory       string `bson:"familyHistory,omitempty" json:"familyHistory,omitempty"`
	Allergies           string `bson:"allergies,omitempty" json:"allergies,omitempty"`
	SubstanceUse        string `bson:"substanceUse,omitempty" json:"substanceUse,omitempty"`

	Notes       []Note    `bson:"notes" json:"notes"`
	MedOrderIDs []string  `bson:"medOrderIds" json:"medOrderIds"`
	Files       []FileRef `bson:"files" json:"files"`

	// Populated on request from the med_orders collection, never stored.
	MedOrders []MedOrder `bson:"-" json:"medOrders,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// FullName joins first and last name, skipping empty parts
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// FindNote returns the embedded note with the given id
func (p *Patient) FindNote(id string) (Note, bool) {
	for _, n := range p.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// Note is a clinical note embedded in a patient document
type Note struct {
	ID         string    `bson:"id" json:"id"`
	NoteType   NoteType  `bson:"noteType" json:"noteType"`
	Title      string    `bson:"title,omitempty" json:"title,omitempty"`
	Content    string    `bson:"content" json:"content"`
	AuthorName string    `bson:"authorName" json:"authorName"`
	AuthorID   string    `bson:"authorId" json:"authorId"`
	Email      string    `bson:"email" json:"email"`
	Date       time.Time `bson:"date" json:"date"`
	Draft      bool      `bson:"draft" json:"draft"`
}

// FileRef points at a PatientFile row holding the image bytes
type FileRef struct {
	FileID      string    `bson:"fileId" json:"fileId"`
	FileName    string    `bson:"fileName" json:"fileName"`
	ContentType string    `bson:"contentType" json:"contentType"`
	Size        int64     `bson:"size" json:"size"`
	UploadedAt  time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// PatientFields is the validated set of editable patient fields. Nil fields
// are left untouched by an update.
type PatientFields struct {
	FirstName   *string   `bson:"firstName,omitempty" json:"firstName,omitempty" binding:"omitempty,min=1,max=100"`
	LastName    *string   `bson:"lastName,omitempty" json:"lastName,omitempty" binding:"omitempty,min=1,max=100"`
	DateOfBirth *string   `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Gender      *string   `bson:"gender,omitempty" json:"gender,omitempty" binding:"omitempty,max=50"`
	Phone       *string   `bson:"phone,omitempty" json:"phone,omitempty" binding:"omitempty,max=50"`
	Email       *string   `bson:"email,omitempty" json:"email,omitempty" binding:"omitempty,email"`
	Address     *string   `bson:"address,omitempty" json:"address,omitempty" binding:"omitempty,max=500"`
	Language    *string   `bson:"language,omitempty" json:"language,omitempty" binding:"omitempty,max=50"`
	Country     *string   `bson:"country,omitempty" json:"country,omitempty" binding:"omitempty,max=100"`
	City        *string   `bson:"city,omitempty" json:"city,omitempty" binding:"omitempty,max=100"`
	Priority    *Priority `bson:"priority,omitempty" json:"priority,omitempty" binding:"omitempty,oneof=Emergency Urgent Routine"`

	PastMedicalHistory  *string `bson:"pastMedicalHistory,omitempty" json:"pastMedicalHistory,omitempty"`
	PastSurgicalHistory *string `bson:"pastSurgicalHistory,omitempty" json:"pastSurgicalHistory,omitempty"`
	FamilyHistory       *string `bson:"familyHistory,omitempty" json:"familyHistory,omitempty"`
	Allergies           *string `bson:"allergies,omitempty" json:"allergies,omitempty"`
	SubstanceUse        *string `bson:"substanceUse,omitempty" json:"substanceUse,omitempty"`
}

// Empty reports whether no field is set
func (f *PatientFields) Empty() bool {
	return *f == PatientFields{}
}

// Apply copies the set fields onto p
func (f *PatientFields) Apply(p *Patient) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FirstName, f.FirstName)
	set(&p.LastName, f.LastName)
	set(&p.DateOfBirth, f.DateOfBirth)
	set(&p.Gender, f.Gender)
	set(&p.Phone, f.Phone)
	set(&p.Email, f.Email)
	set(&p.Address, f.Address)
	set(&p.Language, f.Language)
	set(&p.Country, f.Country)
	set(&p.City, f.City)
	if f.Priority != nil {
		p.Priority = *f.Priority
	}
	set(&p.PastMedicalHistory, f.PastMedicalHistory)
	set(&p.PastSurgicalHistory, f.PastSurgicalHistory)
	set(&p.FamilyHistory, f.FamilyHistory)
	set(&p.Allergies, f.Allergies)
	set(&p.SubstanceUse, f.SubstanceUse)
}
