// Package syncerr defines the error kinds a sync run can fail with.
//
// Callers branch on the kind rather than on message text:
//
//	if errors.Is(err, syncerr.ErrConcurrentModification) {
//	    // the sheet changed under us; rerun later
//	}
package syncerr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Kind classifies a sync failure.
type Kind int

const (
	// KindTransport is any remote failure that is not rate limiting.
	KindTransport Kind = iota
	// KindRateLimited is a transient quota rejection; the retry governor retries it.
	KindRateLimited
	// KindRetryExhausted means every allowed attempt was rate limited.
	KindRetryExhausted
	// KindConcurrentModification means the sheet changed between read and identity write-back.
	KindConcurrentModification
	// KindDateParse means a task's due date/time could not be parsed.
	KindDateParse
	// KindAuthorization means credentials could not be obtained.
	KindAuthorization
	// KindConfig means the configuration is missing or invalid.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate limited"
	case KindRetryExhausted:
		return "retry exhausted"
	case KindConcurrentModification:
		return "concurrent modification"
	case KindDateParse:
		return "date parse"
	case KindAuthorization:
		return "authorization"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a tagged sync error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is. They carry no Op or cause.
var (
	ErrTransport              = &Error{Kind: KindTransport}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrRetryExhausted         = &Error{Kind: KindRetryExhausted}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrDateParse              = &Error{Kind: KindDateParse}
	ErrAuthorization          = &Error{Kind: KindAuthorization}
	ErrConfig                 = &Error{Kind: KindConfig}
)

// New returns a tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns a tagged error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
// Untagged errors are reported as KindTransport.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsRateLimited reports whether err is a rate-limit rejection, either tagged
// or as a raw Google API error.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindRateLimited
	}
	return isGoogleRateLimit(err)
}

// Classify tags a remote call failure. Errors that already carry a kind are
// returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isGoogleRateLimit(err) {
		return New(KindRateLimited, op, err)
	}
	return New(KindTransport, op, err)
}

func isGoogleRateLimit(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// ExitCode maps a run error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConcurrentModification:
		return 2
	case KindRetryExhausted:
		return 3
	case KindDateParse:
		return 4
	case KindAuthorization:
		return 5
	case KindConfig:
		return 6
	default:
		return 1
	}
}
