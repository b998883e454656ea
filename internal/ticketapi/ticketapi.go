// Package ticketapi defines the external collaborators of the pipeline:
// the ticket store comments land in and the identity directory senders are
// resolved against. The pipeline only sees the interfaces; Client is the
// REST implementation wired by the binary.
package ticketapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/avreyn/mailtriage/pkg/models"
)

// ErrTicketNotFound is returned when a referenced ticket does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ValidationError means the directory rejected an identity create.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identity validation failed: %s", e.Message)
}

// TicketStore attaches message content to work items.
type TicketStore interface {
	AttachComment(ctx context.Context, ticketID int, author *models.Identity, text string, attachments []models.Attachment) error
}

// IdentityDirectory resolves and creates identities by email address.
// FindByAddress returns (nil, nil) for unknown addresses.
type IdentityDirectory interface {
	FindByAddress(ctx context.Context, address string) (*models.Identity, error)
	CreateLocked(ctx context.Context, address, firstName, lastName string) (*models.Identity, error)
}
