package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// ErrNotRegistered is wrapped by the PreconditionError returned when a
// session-dependent call is made before RegisterClient has succeeded.
var ErrNotRegistered = errors.New("no session: RegisterClient has not succeeded")

// TransportError reports a failed exchange with a matching engine endpoint:
// the network call itself failed, it timed out, or the endpoint answered
// with a non-success status. It is never retried by the client.
type TransportError struct {
	API        string // operation, e.g. "FindCloudlet"
	URL        string // endpoint that was contacted
	StatusCode int    // HTTP status, 0 when no response was received
	Code       int    // server supplied error code, if any
	Message    string // server supplied message, if any
	Body       []byte // raw error body, truncated
	Timeout    bool   // the call's deadline expired
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: timed out: %v", e.API, e.URL, e.Err)
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s %s: HTTP %d (code %d): %s", e.API, e.URL, e.StatusCode, e.Code, e.Message)
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("%s %s: HTTP %d", e.API, e.URL, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.API, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.API, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenFailure distinguishes the two ways token resolution can fail.
type TokenFailure int

const (
	// TokenUnexpectedResponse means the token server did not answer with
	// 303 See Other.
	TokenUnexpectedResponse TokenFailure = iota + 1
	// TokenNotFound means the redirect carried no usable dt-id parameter.
	TokenNotFound
)

func (f TokenFailure) String() string {
	switch f {
	case TokenUnexpectedResponse:
		return "unexpected response"
	case TokenNotFound:
		return "token not found or parsable"
	}
	return "unknown token failure"
}

// TokenResolutionError is returned when the verification token cannot be
// obtained from the token server. It is fatal to the VerifyLocation call
// that needed the token.
type TokenResolutionError struct {
	Reason TokenFailure
	// URI is the token server URI for unexpected responses and the
	// redirect location for unparsable tokens.
	URI        string
	StatusCode int
}

func (e *TokenResolutionError) Error() string {
	if e.Reason == TokenUnexpectedResponse {
		return fmt.Sprintf("token resolution: %s: %s returned HTTP %d, expected %d %s",
			e.Reason, e.URI, e.StatusCode, http.StatusSeeOther, http.StatusText(http.StatusSeeOther))
	}
	return fmt.Sprintf("token resolution: %s in the URI string: %s", e.Reason, e.URI)
}

// PreconditionError reports a call that could not be built: no session,
// no location, or an invalid argument. No network call was made.
type PreconditionError struct {
	API string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %v", e.API, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that decoded fine but whose content is a
// logical failure or breaks the reply contract.
type ProtocolError struct {
	API    string
	Status string
	Reason string
}

func (e *ProtocolError) Error() string {
	msg := e.API + ": reply status " + e.Status
	if e.API == "" {
		msg = "reply status " + e.Status
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ErrorKind is the coarse classification callers branch on.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransport
	KindTokenResolution
	KindPrecondition
	KindProtocol
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindTransport:
		return "transport"
	case KindTokenResolution:
		return "token"
	case KindPrecondition:
		return "precondition"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// Classify maps err onto the error taxonomy. A nil error is KindNone.
func Classify(err error) ErrorKind {
	var (
		te *TransportError
		tr *TokenResolutionError
		pe *PreconditionError
		pr *ProtocolError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &pe):
		return KindPrecondition
	case errors.As(err, &tr):
		return KindTokenResolution
	case errors.As(err, &pr):
		return KindProtocol
	case errors.As(err, &te):
		return KindTransport
	}
	return KindUnknown
}

// IsTimeout reports whether err is a TransportError caused by an expired
// deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}

// CheckStatus returns a ProtocolError when reply reports anything other
// than success. Replies are returned as data by every call; CheckStatus is
// for callers that prefer to treat a negative outcome as an error.
func CheckStatus(reply dme.StatusReply) error {
	if reply == nil {
		return &ProtocolError{Status: "UNRECOGNIZED", Reason: "no reply"}
	}
	if reply.Succeeded() {
		return nil
	}
	return &ProtocolError{Status: reply.StatusName()}
}

// transportFailure wraps an error from the network layer. Deadline expiry
// is flagged so callers can tell it apart from a refused connection.
func transportFailure(ctx context.Context, api, url string, err error) *TransportError {
	te := &TransportError{API: api, URL: url, Err: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		te.Timeout = true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		te.Timeout = true
	}
	return te
}
