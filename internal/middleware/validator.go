package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// DefaultMaxTextLength bounds request text so a single article or transcript
// fits but arbitrary dumps do not.
const DefaultMaxTextLength = 100000

var taskIDPattern = regexp.MustCompile(`^([a-f0-9]{32}|[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})$`)

// ValidateText checks the text of an analysis request. maxLen <= 0 applies the default.
func ValidateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}
	if len(text) > maxLen {
		return fmt.Errorf("text exceeds maximum length of %d bytes", maxLen)
	}
	return nil
}

// ValidateTaskID accepts either a fingerprint (32 hex chars) or a job UUID.
func ValidateTaskID(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if !taskIDPattern.MatchString(strings.ToLower(taskID)) {
		return fmt.Errorf("invalid task ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidatePageSize validates pagination page size
func ValidatePageSize(size int) int {
	if size <= 0 {
		return 20 // default
	}
	if size > 100 {
		return 100 // max
	}
	return size
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
