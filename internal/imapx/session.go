// Package imapx is the protocol session against the remote mailbox. It owns
// connection establishment with bounded retry, folder selection, search,
// full-message fetch and the move-or-copy-delete primitive.
//
// Sequence numbers handed out by Search are only stable while no message at
// or below them is moved or deleted. Callers process batches in descending
// order for that reason.
package imapx

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const (
	defaultRetries = 3
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Config carries everything needed to open a session.
type Config struct {
	Addr        string // host:port
	Username    string
	Password    string
	UseTLS      bool
	DialTimeout time.Duration
	Retries     int
}

// Session is the mailbox surface the pipeline consumes.
type Session interface {
	// SelectFolder selects a folder and returns its message count.
	// Missing folders yield ErrFolderNotFound.
	SelectFolder(name string) (uint32, error)
	// SearchUnseen returns the sequence numbers of unseen messages in the
	// selected folder, sorted descending.
	SearchUnseen() ([]uint32, error)
	// SearchAll returns every sequence number in the selected folder,
	// sorted descending.
	SearchAll() ([]uint32, error)
	// FetchFull returns the raw message bytes, or nil when the message is
	// already gone.
	FetchFull(seq uint32) ([]byte, error)
	// MoveOrCopyDelete moves a message to dest, creating dest if the server
	// asks for it, and falling back to copy+delete+expunge when MOVE is not
	// supported. A vanished message yields ErrMessageVanished.
	MoveOrCopyDelete(seq uint32, dest string) error
	// EnsureFolder creates the folder if it does not exist yet.
	EnsureFolder(name string) error
	// ListFolders returns the names of all folders.
	ListFolders() ([]string, error)
	Close() error
}

// Client implements Session over a live go-imap connection.
type Client struct {
	c      *client.Client
	logger *slog.Logger
}

var _ Session = (*Client)(nil)

// Dial connects and authenticates, retrying transient failures with
// exponential backoff. Non-transient failures, bad credentials included,
// abort immediately. The returned error is always a *ConnectionError.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		c, err := dialOnce(cfg)
		if err == nil {
			logger.Debug("imap session established", "addr", cfg.Addr, "attempt", attempt)
			return &Client{c: c, logger: logger}, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, &ConnectionError{Addr: cfg.Addr, Err: err}
		}
		if attempt == retries {
			break
		}
		logger.Warn("imap connect failed, retrying",
			"addr", cfg.Addr, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, &ConnectionError{Addr: cfg.Addr, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, &ConnectionError{Addr: cfg.Addr, Err: lastErr}
}

func dialOnce(cfg Config) (*client.Client, error) {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if cfg.UseTLS {
		host, _, splitErr := net.SplitHostPort(cfg.Addr)
		if splitErr != nil {
			return nil, fmt.Errorf("invalid address %q: %w", cfg.Addr, splitErr)
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", cfg.Addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.Dial("tcp", cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	c.Timeout = timeout

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return c, nil
}

// SelectFolder selects a folder read-write and returns its message count.
func (s *Client) SelectFolder(name string) (uint32, error) {
	mbox, err := s.c.Select(name, false)
	if err != nil {
		if isMissingFolder(err) {
			return 0, fmt.Errorf("select %q: %w", name, ErrFolderNotFound)
		}
		return 0, fmt.Errorf("select %q: %w", name, err)
	}
	return mbox.Messages, nil
}

// SearchUnseen returns unseen sequence numbers, descending.
func (s *Client) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return s.search(criteria)
}

// SearchAll returns all sequence numbers, descending.
func (s *Client) SearchAll() ([]uint32, error) {
	return s.search(imap.NewSearchCriteria())
}

func (s *Client) search(criteria *imap.SearchCriteria) ([]uint32, error) {
	seqs, err := s.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })
	return seqs, nil
}

// FetchFull fetches the complete raw message for one sequence number.
// Returns nil bytes when the message is already gone.
func (s *Client) FetchFull(seq uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	// Peek keeps fetches from flagging deferred messages as seen.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read body of %d: %w", seq, err)
		}
		raw = b
	}

	if err := <-done; err != nil {
		if isVanished(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %d: %w", seq, err)
	}
	return raw, nil
}

// MoveOrCopyDelete moves one message to dest. The server is asked for an
// atomic MOVE first; a TRYCREATE response creates the folder and retries
// once; servers without MOVE get copy, \Deleted, expunge.
func (s *Client) MoveOrCopyDelete(seq uint32, dest string) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	supported, err := s.c.Support("MOVE")
	if err != nil {
		return fmt.Errorf("capability check: %w", err)
	}

	if supported {
		err = s.c.Move(seqSet, dest)
		if isTryCreate(err) {
			if cerr := s.c.Create(dest); cerr != nil {
				return fmt.Errorf("create %q for move: %w", dest, cerr)
			}
			err = s.c.Move(seqSet, dest)
		}
		if err == nil {
			return nil
		}
		if isVanished(err) {
			return fmt.Errorf("move %d: %w", seq, ErrMessageVanished)
		}
		// Some servers advertise MOVE and still reject it; fall through.
		s.logger.Debug("MOVE rejected, falling back to copy+delete", "seq", seq, "error", err)
	}

	if err := s.copyDelete(seqSet, seq, dest); err != nil {
		return err
	}
	return nil
}

func (s *Client) copyDelete(seqSet *imap.SeqSet, seq uint32, dest string) error {
	err := s.c.Copy(seqSet, dest)
	if isTryCreate(err) {
		if cerr := s.c.Create(dest); cerr != nil {
			return fmt.Errorf("create %q for copy: %w", dest, cerr)
		}
		err = s.c.Copy(seqSet, dest)
	}
	if err != nil {
		if isVanished(err) {
			return fmt.Errorf("copy %d: %w", seq, ErrMessageVanished)
		}
		return fmt.Errorf("copy %d to %q: %w", seq, dest, err)
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := s.c.Store(seqSet, item, flags, nil); err != nil {
		if isVanished(err) {
			return fmt.Errorf("flag %d: %w", seq, ErrMessageVanished)
		}
		return fmt.Errorf("flag %d deleted: %w", seq, err)
	}
	if err := s.c.Expunge(nil); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

// EnsureFolder creates name unless it already exists.
func (s *Client) EnsureFolder(name string) error {
	folders, err := s.ListFolders()
	if err != nil {
		return err
	}
	for _, f := range folders {
		if f == name {
			return nil
		}
	}
	if err := s.c.Create(name); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create %q: %w", name, err)
	}
	return nil
}

// ListFolders returns the names of all folders on the server.
func (s *Client) ListFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return names, nil
}

// Close logs out, terminating the connection if logout hangs.
func (s *Client) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- s.c.Logout()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return s.c.Terminate()
	}
}
