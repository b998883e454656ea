package imapx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrAuthFailed means the server rejected the credentials. Never retried.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrMessageVanished means a sequence number no longer resolves to a
	// message, usually because something else moved or expunged it. Callers
	// treat it as a skip.
	ErrMessageVanished = errors.New("message no longer in mailbox")

	// ErrFolderNotFound means a select referenced a folder the server does
	// not have.
	ErrFolderNotFound = errors.New("folder not found")
)

// ConnectionError wraps a failure to establish a usable session. It is fatal
// for the whole run.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// isTransient decides whether a connect failure is worth another attempt:
// timeouts, refused or unreachable hosts, DNS failures, TLS handshake noise
// and servers that close before greeting. Everything else, notably rejected
// credentials, fails immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"handshake", "connection refused", "unreachable", "broken pipe", "unexpected eof", "server unavailable", "try again"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isTryCreate detects the server hint that the move target must be created.
func isTryCreate(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "TRYCREATE")
}

// isVanished detects seq-set errors for messages that are already gone.
func isVanished(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid messageset", "invalid message set", "no matching messages", "message set is invalid"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isAlreadyExists detects create failures for folders that are already there.
func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// isMissingFolder detects select/status failures for unknown folders.
func isMissingFolder(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"exist", "not found", "unknown mailbox", "no such"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
