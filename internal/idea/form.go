package idea

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyTitle is returned by Submit when the title is blank.
var ErrEmptyTitle = errors.New("title is required")

type FormState int

const (
	Idle FormState = iota
	Editing
)

func (s FormState) String() string {
	if s == Editing {
		return "editing"
	}
	return "idle"
}

// Draft is the in-progress content of the composition form.
type Draft struct {
	Title string
	Note  string
}

// Form is one composition session over a Store. In Idle a submit creates a
// new idea; in Editing it saves over the idea being edited. At most one edit
// is in progress; editing another idea switches the target.
type Form struct {
	store     *Store
	state     FormState
	editingID string
	draft     Draft
}

func NewForm(s *Store) *Form {
	return &Form{store: s}
}

func (f *Form) Store() *Store     { return f.store }
func (f *Form) State() FormState  { return f.state }
func (f *Form) EditingID() string { return f.editingID }
func (f *Form) Draft() Draft      { return f.draft }

// SubmitLabel is the label for the submit action in the current state.
func (f *Form) SubmitLabel() string {
	if f.state == Editing {
		return "Save"
	}
	return "Post idea"
}

// Edit starts editing the idea with id, populating the draft from it.
// If id is not visible the form is left unchanged.
func (f *Form) Edit(ctx context.Context, id string) (Idea, error) {
	it, err := f.store.Get(ctx, id)
	if err != nil {
		return Idea{}, err
	}
	f.state = Editing
	f.editingID = id
	f.draft = Draft{Title: it.Title, Note: it.Note}
	return it, nil
}

// Submit creates or saves an idea from title and note, then clears the form.
// The note goes through PrepareNote. A blank title is rejected and leaves the
// form as it was.
func (f *Form) Submit(ctx context.Context, title, note string) (Idea, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Idea{}, ErrEmptyTitle
	}
	note = PrepareNote(note)

	var it Idea
	if f.state == Editing {
		it = f.store.Update(ctx, f.editingID, title, note)
	} else {
		it = f.store.Create(ctx, title, note)
	}
	f.Cancel()
	return it, nil
}

// Cancel discards the draft and returns to Idle without touching storage.
func (f *Form) Cancel() {
	f.state = Idle
	f.editingID = ""
	f.draft = Draft{}
}
