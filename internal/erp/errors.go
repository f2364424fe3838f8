package erp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind discriminates ERP failures so callers never have to match on messages.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPermission   Kind = "permission"
	KindNotFound     Kind = "not_found"
	KindDuplicate    Kind = "duplicate"
	KindRateLimited  Kind = "rate_limited"
	KindTimeout      Kind = "timeout"
	KindConnection   Kind = "connection"
	KindServer       Kind = "server"
	KindInvalidInput Kind = "invalid_input"
	KindCanceled     Kind = "canceled"
	KindUnknown      Kind = "unknown"
)

// Retryable reports whether a request failing with this kind may succeed when repeated.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnection, KindTimeout, KindRateLimited, KindServer:
		return true
	}
	return false
}

// Error is a classified ERP failure.
type Error struct {
	Kind      Kind
	Status    int    // HTTP status, 0 for transport errors
	Message   string
	ExcType   string // Frappe exception class, when reported
	Doctype   string
	Operation string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Status > 0 {
		fmt.Fprintf(&b, "HTTP %d: ", e.Status)
	}
	b.WriteString(e.Message)
	if e.Message == "" && e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err. Unclassified errors are KindUnknown; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	return KindUnknown
}

var excTypeKinds = map[string]Kind{
	"ValidationError":        KindValidation,
	"MandatoryError":         KindValidation,
	"LinkValidationError":    KindValidation,
	"InvalidStatusError":     KindValidation,
	"PermissionError":        KindPermission,
	"AuthenticationError":    KindPermission,
	"DoesNotExistError":      KindNotFound,
	"PageDoesNotExistError":  KindNotFound,
	"DuplicateEntryError":    KindDuplicate,
	"UniqueValidationError":  KindDuplicate,
	"TimestampMismatchError": KindValidation,
	"RateLimitExceededError": KindRateLimited,
}

// Classify derives a kind from the HTTP status, the Frappe exception type and the message.
// Specific statuses win; generic ones (400, 417, 5xx) defer to exc_type, then keywords.
func Classify(status int, excType, message string) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindDuplicate
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}

	if k, ok := excTypeKinds[excType]; ok {
		return k
	}
	if k := classifyMessage(message); k != KindUnknown {
		return k
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusExpectationFailed:
		return KindValidation
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

func classifyMessage(msg string) Kind {
	s := strings.ToLower(msg)
	switch {
	case containsAny(s, "validation", "mandatory"):
		return KindValidation
	case containsAny(s, "permission", "forbidden", "not permitted"):
		return KindPermission
	case containsAny(s, "not found", "does not exist"):
		return KindNotFound
	case containsAny(s, "duplicate", "unique"):
		return KindDuplicate
	case containsAny(s, "timeout", "timed out"):
		return KindTimeout
	case containsAny(s, "connection", "refused", "eof"):
		return KindConnection
	}
	return KindUnknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var suggestions = map[Kind]string{
	KindValidation:  "Check required fields are filled. Use get_doctype_schema to see field requirements.",
	KindPermission:  "User lacks permission. Check user role permissions in ERPNext.",
	KindNotFound:    "Document not found. Verify the document name/ID exists.",
	KindDuplicate:   "Duplicate entry. Check if record with similar data already exists.",
	KindConnection:  "Connection issue. Try again or check ERPNext server status.",
	KindTimeout:     "Connection issue. Try again or check ERPNext server status.",
	KindRateLimited: "ERPNext is rate limiting requests. Wait before retrying.",
}

// Suggestion returns an actionable hint for the kind, or "".
func Suggestion(k Kind) string {
	return suggestions[k]
}

// Enrich turns err into the user-facing error object returned by tools.
func Enrich(err error, doctype, operation string) map[string]any {
	kind := KindOf(err)
	out := map[string]any{
		"error": err.Error(),
		"kind":  string(kind),
	}
	var e *Error
	if errors.As(err, &e) {
		if doctype == "" {
			doctype = e.Doctype
		}
		if operation == "" {
			operation = e.Operation
		}
		if e.Status > 0 {
			out["status"] = e.Status
		}
		if e.ExcType != "" {
			out["type"] = e.ExcType
		}
	}
	if doctype != "" {
		out["doctype"] = doctype
	}
	if operation != "" {
		out["operation"] = operation
	}
	if s := Suggestion(kind); s != "" {
		out["suggestion"] = s
	}
	return out
}

// WithContext annotates an *Error with the doctype and operation it belongs to.
// Other errors are returned unchanged.
func WithContext(err error, doctype, operation string) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Doctype == "" {
			cp.Doctype = doctype
		}
		if cp.Operation == "" {
			cp.Operation = operation
		}
		return &cp
	}
	return err
}
