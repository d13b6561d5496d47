package failure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// Kind is the classification of an API failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindTransient       Kind = "transient"
	KindNetwork         Kind = "network"
	KindGenericProvider Kind = "generic_provider"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindNetwork
}

func (k Kind) String() string { return string(k) }

// Error is a classified API failure. Body holds the raw response payload, if any.
type Error struct {
	Kind       Kind
	StatusCode int
	Op         string
	Message    string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind exposes the classification as a plain string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// ClassifyStatus maps an HTTP status code to a kind. Codes below 400 are
// not failures by status and classify as GenericProvider.
func ClassifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthentication
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return KindTransient
	case code >= http.StatusBadRequest:
		return KindValidation
	default:
		return KindGenericProvider
	}
}

// Classify maps an HTTP status and/or Go error to exactly one kind. An error
// status wins over the error value; transport errors are Network; everything
// else (decode failures, missing fields) is GenericProvider.
func Classify(statusCode int, err error) Kind {
	if statusCode >= http.StatusBadRequest {
		return ClassifyStatus(statusCode)
	}
	if err == nil {
		return KindGenericProvider
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if isNetworkError(err) {
		return KindNetwork
	}
	return KindGenericProvider
}

// KindOf extracts the classification carried by err.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Classify(0, err)
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// FromStatus builds a classified error from a non-success HTTP response.
func FromStatus(op string, statusCode int, body []byte) *Error {
	trimmed := strings.TrimSpace(string(body))
	return &Error{
		Kind:       ClassifyStatus(statusCode),
		StatusCode: statusCode,
		Op:         op,
		Message:    fmt.Sprintf("%s: %s", http.StatusText(statusCode), summarize(trimmed)),
		Body:       trimmed,
	}
}

// FromTransport wraps an error raised before a response was received.
func FromTransport(op string, err error) *Error {
	return &Error{Kind: Classify(0, err), Op: op, Err: err}
}

// Malformed wraps a response that could not be interpreted.
func Malformed(op string, body []byte, err error) *Error {
	return &Error{
		Kind: KindGenericProvider,
		Op:   op,
		Body: strings.TrimSpace(string(body)),
		Err:  err,
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(urlErr.Err, context.Canceled)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

const snippetLimit = 200

func summarize(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return "empty response body"
	}
	if len(body) > snippetLimit {
		return body[:snippetLimit] + "..."
	}
	return body
}
