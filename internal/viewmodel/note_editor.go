package viewmodel

import (
	"context"
	"errors"
	"sync"

	"patient-records-server/internal/client"
	"patient-records-server/internal/models"
)

// EditorState is the lifecycle position of a note being edited.
type EditorState int

const (
	StateNew EditorState = iota
	StateEditingDraft
	StatePublished
	StateDeleted
)

func (s EditorState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEditingDraft:
		return "editing-draft"
	case StatePublished:
		return "published"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

var (
	ErrAlreadyPublished = errors.New("note is published and cannot return to draft")
	ErrNoteDeleted      = errors.New("note has been deleted")
	ErrNotSaved         = errors.New("note has not been saved yet")
)

// NotesAPI is the part of the API client the editor writes through.
type NotesAPI interface {
	CreateNote(ctx context.Context, patientID string, in client.NoteInput) (*models.Note, error)
	UpdateNote(ctx context.Context, patientID string, in client.NoteInput) (*client.NoteUpdate, error)
	DeleteNote(ctx context.Context, patientID, noteID string) (*models.Patient, error)
}

// NoteEditor drives one note through new, editing-draft, published and
// deleted. A failed call leaves state and the held note unchanged.
type NoteEditor struct {
	api       NotesAPI
	patientID string

	mu       sync.Mutex
	state    EditorState
	noteType models.NoteType
	title    string
	content  string
	note     *models.Note
	// recreated is set when the server did not know the held id and stored
	// the last save as a new note.
	recreated bool
}

// NewNoteEditor starts an editor for a note that does not exist yet.
func NewNoteEditor(api NotesAPI, patientID string, noteType models.NoteType) *NoteEditor {
	return &NoteEditor{api: api, patientID: patientID, noteType: noteType, state: StateNew}
}

// EditNote resumes an editor on a stored note.
func EditNote(api NotesAPI, patientID string, note models.Note) *NoteEditor {
	state := StatePublished
	if note.Draft {
		state = StateEditingDraft
	}
	return &NoteEditor{
		api:       api,
		patientID: patientID,
		state:     state,
		noteType:  note.NoteType,
		title:     note.Title,
		content:   note.Content,
		note:      &note,
	}
}

func (e *NoteEditor) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Note returns the last saved note, false while the editor is new.
func (e *NoteEditor) Note() (models.Note, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.note == nil {
		return models.Note{}, false
	}
	return *e.note, true
}

// Recreated reports whether the last save fell back to a create on the server.
func (e *NoteEditor) Recreated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recreated
}

// SetText replaces the unsaved title and content.
func (e *NoteEditor) SetText(title, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.title, e.content = title, content
}

// SaveDraft stores the text as a draft. The first save creates the note;
// later saves update the same id.
func (e *NoteEditor) SaveDraft(ctx context.Context) error {
	return e.save(ctx, true)
}

// Publish stores the text as a published note. There is no way back to
// draft afterwards; further Publish calls update the published text.
func (e *NoteEditor) Publish(ctx context.Context) error {
	return e.save(ctx, false)
}

func (e *NoteEditor) save(ctx context.Context, draft bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateDeleted:
		return ErrNoteDeleted
	case StatePublished:
		if draft {
			return ErrAlreadyPublished
		}
	}

	in := client.NoteInput{
		NoteType: e.noteType,
		Title:    e.title,
		Content:  e.content,
		Draft:    &draft,
	}

	var saved models.Note
	recreated := false
	if e.state == StateNew {
		n, err := e.api.CreateNote(ctx, e.patientID, in)
		if err != nil {
			return err
		}
		saved = *n
	} else {
		in.ID = e.note.ID
		res, err := e.api.UpdateNote(ctx, e.patientID, in)
		if err != nil {
			return err
		}
		saved = res.Note
		recreated = res.Created
	}

	e.note = &saved
	e.recreated = recreated
	if draft {
		e.state = StateEditingDraft
	} else {
		e.state = StatePublished
	}
	return nil
}

// Delete removes the saved note from the patient.
func (e *NoteEditor) Delete(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateNew:
		return ErrNotSaved
	case StateDeleted:
		return ErrNoteDeleted
	}

	if _, err := e.api.DeleteNote(ctx, e.patientID, e.note.ID); err != nil {
		return err
	}
	e.state = StateDeleted
	return nil
}
