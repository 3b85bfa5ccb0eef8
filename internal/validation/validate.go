// Package validation checks externally supplied names before any
// storage call is made with them.
//
// Bucket names follow the S3 DNS-compliance rules; destination paths
// are rejected when they could escape the destination root or carry
// characters the provider cannot represent.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	syncerrors "github.com/shelfsync/shelfsync/errors"
)

// maxDestPathLength matches the S3 object key limit.
const maxDestPathLength = 1024

// ValidateBucketName reports whether bucket is a DNS-compliant S3
// bucket name.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("%w: bucket name cannot be empty", syncerrors.ErrInvalidInput)
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("%w: bucket name must be between 3 and 63 characters", syncerrors.ErrInvalidInput)
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return fmt.Errorf("%w: bucket name can only contain lowercase letters, numbers, dots, and hyphens",
				syncerrors.ErrInvalidInput)
		}
	}

	if bucket[0] == '-' || bucket[0] == '.' || bucket[len(bucket)-1] == '-' || bucket[len(bucket)-1] == '.' {
		return fmt.Errorf("%w: bucket name cannot start or end with a hyphen or dot", syncerrors.ErrInvalidInput)
	}
	if strings.Contains(bucket, "..") || strings.Contains(bucket, "--") ||
		strings.Contains(bucket, ".-") || strings.Contains(bucket, "-.") {
		return fmt.Errorf("%w: bucket name cannot contain adjacent dots or hyphens", syncerrors.ErrInvalidInput)
	}
	if isIPAddress(bucket) {
		return fmt.Errorf("%w: bucket name cannot be formatted as an IP address", syncerrors.ErrInvalidInput)
	}
	return nil
}

// ValidateDestPath reports whether path is usable as a destination path.
// Paths are rooted at the destination root, so they must be absolute and
// must not traverse upward out of it.
func ValidateDestPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: destination path cannot be empty", syncerrors.ErrInvalidInput)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: destination path must be absolute: %s", syncerrors.ErrInvalidInput, path)
	}
	if len(path) > maxDestPathLength {
		return fmt.Errorf("%w: destination path exceeds %d characters", syncerrors.ErrInvalidInput, maxDestPathLength)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: destination path cannot traverse upward: %s", syncerrors.ErrInvalidInput, path)
		}
	}
	for _, char := range path {
		if unicode.IsControl(char) {
			return fmt.Errorf("%w: destination path cannot contain control characters", syncerrors.ErrInvalidInput)
		}
	}
	return nil
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// isIPAddress reports whether s looks like a dotted-quad IPv4 address.
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}
	return true
}
