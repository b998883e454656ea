package imapx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth failure", fmt.Errorf("%w: login rejected", ErrAuthFailed), false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"net timeout", net.Error(timeoutErr{}), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "imap.example.com"}, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"tls handshake", errors.New("tls: handshake failure"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"plain protocol error", errors.New("BAD command unknown"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}

func TestIsTryCreate(t *testing.T) {
	assert.True(t, isTryCreate(errors.New("NO [TRYCREATE] mailbox does not exist")))
	assert.True(t, isTryCreate(errors.New("no [trycreate] missing")))
	assert.False(t, isTryCreate(errors.New("NO permission denied")))
	assert.False(t, isTryCreate(nil))
}

func TestIsVanished(t *testing.T) {
	assert.True(t, isVanished(errors.New("BAD Error in IMAP command: Invalid messageset")))
	assert.True(t, isVanished(errors.New("NO no matching messages")))
	assert.False(t, isVanished(errors.New("NO server busy")))
	assert.False(t, isVanished(nil))
}

func TestIsMissingFolder(t *testing.T) {
	assert.True(t, isMissingFolder(errors.New("NO Mailbox doesn't exist: Deferred")))
	assert.True(t, isMissingFolder(errors.New("NO unknown mailbox")))
	assert.False(t, isMissingFolder(errors.New("NO quota exceeded")))
}

func TestConnectionErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("%w: login rejected", ErrAuthFailed)
	err := &ConnectionError{Addr: "imap.example.com:993", Err: inner}

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "imap.example.com:993")
}
