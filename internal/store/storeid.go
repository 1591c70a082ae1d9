// Package store holds profile and identifier helpers for the local sprout database.
package store

import (
	"errors"
	"regexp"
	"strings"
)

// Identifier validation errors.
var (
	// ErrInvalidID indicates a profile or learner id has the wrong shape.
	ErrInvalidID = errors.New("invalid id: must be lowercase alphanumeric with hyphens or underscores, 1-64 characters")

	// ErrReservedID indicates the id is reserved.
	ErrReservedID = errors.New("reserved id")
)

// idRegex accepts one segment of lowercase letters, digits, hyphens and
// underscores that starts and ends with a letter or digit.
var idRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]{0,62}[a-z0-9])?$`)

var reservedIDs = map[string]bool{
	"default": true,
	"_system": true,
}

// ValidateID validates a profile id. Reserved ids pass so they can be targeted.
func ValidateID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidID
	}
	if reservedIDs[id] {
		return nil
	}
	if strings.Contains(id, "--") || strings.Contains(id, "__") {
		return ErrInvalidID
	}
	if !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// IsReservedID returns true if the id is reserved.
func IsReservedID(id string) bool {
	return reservedIDs[id]
}

// ValidateIDForCreation rejects reserved ids in addition to malformed ones.
func ValidateIDForCreation(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if IsReservedID(id) {
		return ErrReservedID
	}
	return nil
}

// ValidateEntityID checks learner and item identifiers. These are
// opaque to the kernel but must be non-empty, trimmed, and at most 128 bytes.
func ValidateEntityID(id string) error {
	if id == "" || len(id) > 128 || strings.TrimSpace(id) != id {
		return ErrInvalidID
	}
	return nil
}
