package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

func TestProjectListCmd(t *testing.T) {
	ts := setupTestServices(t)
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ts.projects.projects = []domain.Project{
		{ID: "p1", ProjectID: "zoo", CreatedAt: created},
		{ID: "p2", ProjectID: "farm", CreatedAt: created},
	}
	ts.projects.pages = 3

	out, err := execute(t, "", "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "zoo")
	assert.Contains(t, out, "farm")
	assert.Contains(t, out, "2026-03-01 09:30")
	assert.Contains(t, out, "Page 1 of 3")
}

func TestProjectListCmd_Empty(t *testing.T) {
	setupTestServices(t)

	out, err := execute(t, "", "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects found.")
}

func TestProjectListCmd_JSON(t *testing.T) {
	ts := setupTestServices(t)
	ts.projects.projects = []domain.Project{{ID: "p1", ProjectID: "zoo"}}
	ts.projects.pages = 1

	out, err := execute(t, "", "project", "list", "--json", "--page", "1")
	require.NoError(t, err)

	var payload struct {
		Projects []domain.Project `json:"projects"`
		Pages    int              `json:"pages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, 1, payload.Pages)
	require.Len(t, payload.Projects, 1)
	assert.Equal(t, "zoo", payload.Projects[0].ProjectID)
}

func TestProjectResetCmd(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		stdin     string
		wantReset []string
		wantOut   string
	}{
		{
			name:      "confirmed",
			args:      []string{"project", "reset", "zoo"},
			stdin:     "y\n",
			wantReset: []string{"zoo"},
			wantOut:   "Removed 4 chunks from zoo",
		},
		{
			name:    "declined",
			args:    []string{"project", "reset", "zoo"},
			stdin:   "n\n",
			wantOut: "Aborted.",
		},
		{
			name:      "yes flag",
			args:      []string{"project", "reset", "--yes", "zoo"},
			wantReset: []string{"zoo"},
			wantOut:   "Removed 4 chunks from zoo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServices(t)

			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReset, ts.projects.reset)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestProjectResetCmd_UnknownProject(t *testing.T) {
	ts := setupTestServices(t)
	ts.projects.err = domain.ErrNotFound

	_, err := execute(t, "", "project", "reset", "-y", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
