package mailbox

import (
	"errors"
	"fmt"
)

// ErrEmptyBody is returned by Normalize when a message has no plain-text
// content. Such a message is skipped rather than entering the batch.
var ErrEmptyBody = errors.New("message has no plain-text body")

// AuthError indicates that the server rejected the account credentials.
type AuthError struct {
	Server  string
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s on %s: %v", e.Account, e.Server, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectivityError indicates a network or TLS failure reaching a server.
type ConnectivityError struct {
	Server string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Server, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError indicates the mailbox could not be queried or modified
// after a successful login.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// FetchError records one message that could not be retrieved or parsed.
// It never aborts a batch.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching message %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError wraps a failed outbound submission.
type SendError struct {
	To  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.To, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectivityError reports whether err (or any error in its chain) is a
// ConnectivityError.
func IsConnectivityError(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}
