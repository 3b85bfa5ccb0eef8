package failure

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Error classes assigned by Classify.
const (
	ClassIntegrityMismatch = "integrity_mismatch"
	ClassRateLimited       = "rate_limited"
	ClassServerError       = "server_error"
	ClassTimeout           = "timeout"
	ClassHTTPError         = "http_error"
	ClassIOError           = "io_error"
	ClassUnknown           = "unknown_error"
)

var (
	tooManyRequests = regexp.MustCompile(`\b429\b`)
	serverStatus    = regexp.MustCompile(`\b5\d{2}\b`)
)

// Classify maps a fault to an (error class, retryable) pair.
//
// Faults originate from heterogeneous subsystems with no shared error
// taxonomy, so classification is a priority-ordered set of
// message-pattern rules rather than type switching. The rules are a
// heuristic, not exhaustive; anything ambiguous falls through to the
// conservative non-retryable default.
func Classify(err error) (string, bool) {
	if err == nil {
		return ClassUnknown, false
	}

	lower := strings.ToLower(err.Error())

	// Explicit integrity faults are never retried: the bytes are wrong
	// and will be wrong again.
	if strings.Contains(lower, "content_hash mismatch") ||
		strings.Contains(lower, "integrity mismatch") ||
		strings.Contains(lower, "size mismatch") ||
		strings.Contains(lower, "downloaded file is empty") {
		return ClassIntegrityMismatch, false
	}

	if tooManyRequests.MatchString(lower) || strings.Contains(lower, "too many requests") {
		return ClassRateLimited, true
	}
	if serverStatus.MatchString(lower) || strings.Contains(lower, "server error") {
		return ClassServerError, true
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return ClassTimeout, true
	}
	if strings.Contains(lower, "connection error") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection aborted") {
		return ClassHTTPError, true
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var syscallErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &syscallErr) {
		return ClassIOError, false
	}

	// HTTP-ish with no recognizable status: assume transient.
	if strings.Contains(lower, "http") || strings.Contains(lower, "request") {
		return ClassHTTPError, true
	}

	return ClassUnknown, false
}
