package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrix(t *testing.T) {
	m := DefaultMatrix()

	assert.True(t, m.Has(RoleOwner, ResourceProject, "transition"))
	assert.True(t, m.Has(RoleOwner, ResourceOrg, "manage_authorizations"))
	assert.True(t, m.Has(RoleDelegate, ResourceProject, "write"))
	assert.False(t, m.Has(RoleDelegate, ResourceProject, "transition"))
	assert.False(t, m.Has(RoleDelegate, ResourceOrg, "write"))
	assert.True(t, m.Has(RoleConsultant, ResourceDocument, "upload"))
	assert.False(t, m.Has(RoleConsultant, ResourceDocument, "write"))
	assert.True(t, m.Has(RoleViewer, ResourceProject, "read"))
	assert.False(t, m.Has(RoleViewer, ResourceProject, "write"))
	assert.False(t, m.Has(Role("ghost"), ResourceProject, "read"))

	assert.Equal(t, []string{"read", "upload"}, m.actions(RoleConsultant, ResourceDocument))
}

func TestParseMatrixRejectsUnknownEntries(t *testing.T) {
	_, err := ParseMatrix([]byte("admin:\n  org: [read]\n"))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseMatrix([]byte("owner:\n  tenant: [read]\n"))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseMatrix([]byte("owner:\n  org: [read]\n"))
	require.ErrorIs(t, err, ErrInvalidInput, "missing roles must be rejected")

	_, err = ParseMatrix([]byte("owner: [oops"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadMatrixFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	doc := `
owner: {org: [read], project: [read, transition], document: [read]}
delegate: {org: [], project: [read], document: []}
consultant: {org: [], project: [], document: []}
viewer: {org: [], project: [], document: []}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := LoadMatrixFile(path)
	require.NoError(t, err)
	assert.True(t, m.Has(RoleOwner, ResourceProject, "transition"))
	assert.False(t, m.Has(RoleOwner, ResourceProject, "write"))

	_, err = LoadMatrixFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Owner ")
	assert.True(t, ok)
	assert.Equal(t, RoleOwner, r)

	r, ok = ParseRole("imputernicit")
	assert.False(t, ok)
	assert.Equal(t, LeastPrivilegeRole, r)
}
