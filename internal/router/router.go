// Package router decides what happens to a decoded message: attach to a
// referenced ticket, attach to the default ticket, create an identity first,
// or defer. The decision is a single pass per message with no state carried
// across messages.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/avreyn/mailtriage/internal/matchers"
	"github.com/avreyn/mailtriage/internal/ticketapi"
	"github.com/avreyn/mailtriage/pkg/models"
)

// OutcomeKind enumerates the terminal routing decisions.
type OutcomeKind int

const (
	// OutcomeSkip leaves the message untouched.
	OutcomeSkip OutcomeKind = iota
	// OutcomeRouteTicket attaches to the referenced ticket.
	OutcomeRouteTicket
	// OutcomeRouteDefault attaches to the configured default ticket.
	OutcomeRouteDefault
	// OutcomeCreateIdentity creates a locked identity, then attaches.
	OutcomeCreateIdentity
	// OutcomeDefer moves the message to the deferred folder.
	OutcomeDefer
)

// Outcome is the routing decision for one message.
type Outcome struct {
	Kind     OutcomeKind
	TicketID int                // set for RouteTicket and CreateIdentity
	Identity *models.Identity   // set when the sender resolved
	Reason   models.DeferReason // set for Defer
}

// Router classifies messages against the ignore list, the ticket-reference
// grammar and the identity directory.
type Router struct {
	ignore    []string
	directory ticketapi.IdentityDirectory
	logger    *slog.Logger
}

// New creates a Router.
func New(ignorePatterns []string, directory ticketapi.IdentityDirectory, logger *slog.Logger) *Router {
	return &Router{
		ignore:    ignorePatterns,
		directory: directory,
		logger:    logger.With("component", "router"),
	}
}

// Classify runs the per-message decision. Directory lookup failures are
// returned as errors so the orchestrator can skip the message; every other
// path yields a terminal outcome.
func (r *Router) Classify(ctx context.Context, fromAddr, subject string) (Outcome, error) {
	addr := NormalizeAddress(fromAddr)

	if matchers.AnyGlob(r.ignore, addr) {
		r.logger.Debug("sender matches ignore list", "from", addr)
		return Outcome{Kind: OutcomeDefer, Reason: models.ReasonIgnored}, nil
	}

	ticketID, hasRef := ExtractTicketRef(subject)

	var identity *models.Identity
	if ValidAddress(addr) {
		var err error
		identity, err = r.directory.FindByAddress(ctx, addr)
		if err != nil {
			return Outcome{}, fmt.Errorf("identity lookup for %q: %w", addr, err)
		}
	}

	switch {
	case identity != nil && hasRef:
		return Outcome{Kind: OutcomeRouteTicket, TicketID: ticketID, Identity: identity}, nil
	case identity != nil:
		return Outcome{Kind: OutcomeRouteDefault, Identity: identity}, nil
	case hasRef:
		return Outcome{Kind: OutcomeCreateIdentity, TicketID: ticketID}, nil
	default:
		return Outcome{Kind: OutcomeDefer, Reason: models.ReasonUnknownSender}, nil
	}
}

var ticketRefRe = regexp.MustCompile(`\[[^\[\]]*#(\d+)\]`)

// ExtractTicketRef scans a subject for a bracketed numeric reference of the
// form "[... #123]". The leftmost match wins.
func ExtractTicketRef(subject string) (int, bool) {
	m := ticketRefRe.FindStringSubmatch(subject)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// NormalizeAddress trims and lowercases an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

var addressRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidAddress is the basic syntax check applied before directory lookup.
func ValidAddress(addr string) bool {
	return addressRe.MatchString(addr)
}
