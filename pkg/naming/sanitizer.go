// Package naming derives safe SQL Server identifiers for containers, tables,
// custom types and constraints.
package naming

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
)

const (
	// MaxIdentifierLength is the length of a SQL Server sysname.
	MaxIdentifierLength = 128

	// DigitPrefix is prepended to identifiers that would otherwise start with a digit.
	DigitPrefix = "Number"

	// hashSuffixLength is "_" followed by 16 hex digits of an xxhash64.
	hashSuffixLength = 17

	archiveTimeLayout = "20060102150405"
)

// Sanitize maps an arbitrary string to an identifier made only of [A-Za-z0-9_].
//
// Characters outside that alphabet are dropped. A result starting with a digit
// is prefixed with DigitPrefix. Results longer than MaxIdentifierLength are
// truncated and suffixed with a hash of the full original input, so two long
// inputs sharing a prefix still map to different identifiers.
//
// Sanitize is idempotent and fails with apperrors.ErrInvalidName when nothing
// usable remains.
func Sanitize(name string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if isIdentifierRune(r) {
			sb.WriteRune(r)
		}
	}

	sanitized := sb.String()
	if sanitized == "" {
		return "", fmt.Errorf("%w: %q has no identifier characters", apperrors.ErrInvalidName, name)
	}

	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = DigitPrefix + sanitized
	}

	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized, name, MaxIdentifierLength)
	}

	return sanitized, nil
}

// WithSuffix sanitizes name and appends suffix, shortening the sanitized part
// when needed so the result still fits MaxIdentifierLength and always ends with
// suffix. The suffix itself must already be a valid identifier fragment.
func WithSuffix(name, suffix string) (string, error) {
	if !IsSanitized(suffix) {
		return "", fmt.Errorf("%w: suffix %q contains characters outside [A-Za-z0-9_]", apperrors.ErrInvalidName, suffix)
	}
	if len(suffix) > MaxIdentifierLength-hashSuffixLength-1 {
		return "", fmt.Errorf("%w: suffix %q is too long", apperrors.ErrInvalidName, suffix)
	}

	base, err := Sanitize(name)
	if err != nil {
		return "", err
	}

	if len(base)+len(suffix) <= MaxIdentifierLength {
		return base + suffix, nil
	}
	return truncateWithHash(base, name, MaxIdentifierLength-len(suffix)) + suffix, nil
}

// IsSanitized reports whether s is non-empty and consists only of [A-Za-z0-9_].
func IsSanitized(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdentifierRune(r) {
			return false
		}
	}
	return true
}

// ArchiveSuffix returns the suffix appended to superseded tables, types and constraints.
func ArchiveSuffix(at time.Time) string {
	return "_" + at.UTC().Format(archiveTimeLayout)
}

// ParseArchiveSuffix returns the time encoded by a trailing archive suffix.
func ParseArchiveSuffix(name string) (time.Time, bool) {
	n := len(archiveTimeLayout) + 1
	if len(name) <= n || name[len(name)-n] != '_' {
		return time.Time{}, false
	}
	at, err := time.Parse(archiveTimeLayout, name[len(name)-n+1:])
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func truncateWithHash(sanitized, original string, limit int) string {
	suffix := HashSuffix(original)
	return sanitized[:limit-len(suffix)] + suffix
}

// HashSuffix returns "_" followed by the 16 hex digits of the xxhash64 of name.
func HashSuffix(name string) string {
	return fmt.Sprintf("_%016x", xxhash.Sum64String(name))
}

func isIdentifierRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
