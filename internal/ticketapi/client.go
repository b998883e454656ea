package ticketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avreyn/mailtriage/pkg/models"
)

// Client talks to the ticket system's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config for the REST client.
type Config struct {
	BaseURL string // e.g. https://tickets.example.com
	Token   string
}

// NewClient creates a REST client for the ticket store and identity
// directory.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ TicketStore = (*Client)(nil)
var _ IdentityDirectory = (*Client)(nil)

type commentRequest struct {
	AuthorID    int64               `json:"author_id"`
	Body        string              `json:"body"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// AttachComment posts the message text and attachments to a ticket.
func (c *Client) AttachComment(ctx context.Context, ticketID int, author *models.Identity, text string, attachments []models.Attachment) error {
	req := commentRequest{Body: text, Attachments: attachments}
	if author != nil {
		req.AuthorID = author.ID
	}
	path := fmt.Sprintf("/api/tickets/%d/comments", ticketID)
	status, body, err := c.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
	case status >= 300:
		return fmt.Errorf("attach comment to ticket %d: status %d: %s", ticketID, status, body)
	}
	return nil
}

// FindByAddress looks an address up in the identity directory. Unknown
// addresses return (nil, nil).
func (c *Client) FindByAddress(ctx context.Context, address string) (*models.Identity, error) {
	path := "/api/identities?address=" + url.QueryEscape(address)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status >= 300:
		return nil, fmt.Errorf("lookup identity %q: status %d: %s", address, status, body)
	}

	var identities []models.Identity
	if err := json.Unmarshal(body, &identities); err != nil {
		// Single-object responses are accepted too.
		var one models.Identity
		if jerr := json.Unmarshal(body, &one); jerr != nil {
			return nil, fmt.Errorf("parse identity response: %w", err)
		}
		identities = []models.Identity{one}
	}
	if len(identities) == 0 {
		return nil, nil
	}
	return &identities[0], nil
}

type createIdentityRequest struct {
	Address   string `json:"address"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Locked    bool   `json:"locked"`
}

// CreateLocked registers a minimal locked identity for an address.
func (c *Client) CreateLocked(ctx context.Context, address, firstName, lastName string) (*models.Identity, error) {
	req := createIdentityRequest{
		Address:   address,
		FirstName: firstName,
		LastName:  lastName,
		Locked:    true,
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/identities", req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return nil, &ValidationError{Message: strings.TrimSpace(string(body))}
	case status >= 300:
		return nil, fmt.Errorf("create identity %q: status %d: %s", address, status, body)
	}

	var identity models.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("parse created identity: %w", err)
	}
	return &identity, nil
}

// do executes one request and returns the status code and raw body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("X-API-Token", c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
