package render

import (
	"context"
	"fmt"

	"github.com/kokistudios/ideas/internal/idea"
)

// Action is a user interaction on a rendered idea card.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Event carries the idea id from a card and the action taken on it.
type Event struct {
	ID     string
	Action Action
}

// Dispatch applies ev to the form and its store. Edit loads the idea into the
// form; delete removes it from the board.
func Dispatch(ctx context.Context, form *idea.Form, ev Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event has no idea id")
	}
	switch ev.Action {
	case ActionEdit:
		_, err := form.Edit(ctx, ev.ID)
		return err
	case ActionDelete:
		form.Store().Delete(ctx, ev.ID)
		return nil
	default:
		return fmt.Errorf("unknown action: %s", ev.Action)
	}
}
