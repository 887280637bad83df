package domain

import (
	"fmt"
	"time"
)

// MaxProjectIDLength bounds the human-assigned project identifier.
const MaxProjectIDLength = 50

// Project is a logical collection of ingested documents.
// Its vector collection is named after ProjectID.
type Project struct {
	// ID is the internal surrogate identifier. Never changes once assigned.
	ID string

	// ProjectID is the unique human-assigned identifier.
	ProjectID string

	// Description is optional free text.
	Description string

	// CreatedAt is when the project was first referenced.
	CreatedAt time.Time

	// UpdatedAt is when the project record last changed.
	UpdatedAt time.Time
}

// ValidateProjectID checks that id is alphanumeric and 1 to 50 characters long.
func ValidateProjectID(id string) error {
	if id == "" || len(id) > MaxProjectIDLength {
		return fmt.Errorf("%w: project id must be 1-%d characters", ErrInvalidInput, MaxProjectIDLength)
	}
	for _, r := range id {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return fmt.Errorf("%w: project id %q must be alphanumeric", ErrInvalidInput, id)
		}
	}
	return nil
}

// DefaultPageSize is used when a listing asks for a non-positive page size.
const DefaultPageSize = 20

// NormalisePage clamps a 1-based page number and page size to usable values.
func NormalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// TotalPages returns how many pages of pageSize are needed for total items.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
