package roles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	reg := Default()
	for _, id := range []string{"strategist", "scraper", "qualifier", "writer", "publisher", "analyst"} {
		role, err := reg.Get(id)
		require.NoError(t, err, id)
		assert.NotEmpty(t, role.BaseInstructions)
		assert.NotEmpty(t, role.DisplayName)
	}
	assert.Equal(t, 6, reg.Len())
}

func TestRegistryGetMissing(t *testing.T) {
	_, err := Default().Get("astrologer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoleNotFound))
	assert.Contains(t, err.Error(), "astrologer")
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(AgentRole{ID: "", BaseInstructions: "x"})
	assert.Error(t, err)

	_, err = NewRegistry(
		AgentRole{ID: "a", BaseInstructions: "x"},
		AgentRole{ID: "a", BaseInstructions: "y"},
	)
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(AgentRole{ID: "a", BaseInstructions: "  "})
	assert.ErrorContains(t, err, "base_instructions")

	reg, err := NewRegistry(AgentRole{ID: " a ", BaseInstructions: "x"})
	require.NoError(t, err)
	role, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", role.DisplayName, "display name defaults to id")
}

func TestListReturnsCopy(t *testing.T) {
	reg := Default()
	list := reg.List()
	list[0].BaseInstructions = "mutated"

	role, err := reg.Get(list[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", role.BaseInstructions)
}

func TestResolve(t *testing.T) {
	reg := Default()

	got, err := Resolve(reg, []string{"scraper", "writer", "publisher"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "scraper", got[0].ID)
	assert.Equal(t, "publisher", got[2].ID)

	_, err = Resolve(reg, []string{"scraper", "ghost", "writer", "phantom"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoleNotFound))
	assert.Contains(t, err.Error(), "ghost, phantom")

	_, err = Resolve(reg, nil)
	assert.Error(t, err)
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
include_builtins: true
roles:
  - id: seo
    display_name: SEO Auditor
    base_instructions: Audit the website for search visibility.
`)
	reg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 7, reg.Len())

	role, err := reg.Get("seo")
	require.NoError(t, err)
	assert.Equal(t, "SEO Auditor", role.DisplayName)

	_, err = Parse([]byte("roles: []"))
	assert.ErrorContains(t, err, "empty")

	_, err = Parse([]byte("include_builtins: true\nroles:\n  - id: writer\n    base_instructions: dup\n"))
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoad(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), reg.Len())

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - id: solo\n    base_instructions: work alone\n"), 0644))
	reg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
