package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProjectID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "project1", false},
		{"single char", "a", false},
		{"max length", strings.Repeat("x", MaxProjectIDLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("x", MaxProjectIDLength+1), true},
		{"hyphen", "my-project", true},
		{"space", "my project", true},
		{"path traversal", "../etc", true},
		{"unicode letter", "projé", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalisePage(t *testing.T) {
	page, size := NormalisePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)

	page, size = NormalisePage(3, 5)
	assert.Equal(t, 3, page)
	assert.Equal(t, 5, size)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}
