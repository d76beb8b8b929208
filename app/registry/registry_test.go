package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hiverun/hived/app/config"
)

func validRoster() []config.Role {
	return []config.Role{
		{Name: "queen", DisplayName: "Queen", Capability: "coordination", Queen: true},
		{Name: "forager", DisplayName: "Forager", Capability: "research"},
		{Name: "builder", DisplayName: "Builder", Capability: "construction"},
	}
}

func TestLoad(t *testing.T) {
	reg, err := Load(validRoster())
	require.NoError(t, err)

	assert.Equal(t, "queen", reg.Queen().Name)
	assert.Equal(t, 2, reg.WorkerCount())
	assert.Equal(t, []string{"queen", "forager", "builder"}, reg.Names())
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name  string
		roles []config.Role
	}{
		{"empty roster", []config.Role{}},
		{"no queen", []config.Role{{Name: "a"}, {Name: "b"}}},
		{"two queens", []config.Role{{Name: "a", Queen: true}, {Name: "b", Queen: true}}},
		{"unnamed role", []config.Role{{Name: "a", Queen: true}, {Name: ""}}},
		{"duplicate names", []config.Role{{Name: "a", Queen: true}, {Name: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Load(tt.roles)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRoster)
			assert.Nil(t, reg)
		})
	}
}

func TestRegistry_WorkersImmutable(t *testing.T) {
	reg, err := Load(validRoster())
	require.NoError(t, err)

	workers := reg.Workers()
	workers[0].Name = "mutated"
	assert.Equal(t, "forager", reg.Workers()[0].Name, "mutating the copy must not affect the roster")
}

func TestRegistry_Export(t *testing.T) {
	reg, err := Load(validRoster())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "swarm", "roster.yml")
	require.NoError(t, reg.Export(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	roles := []config.Role{}
	require.NoError(t, yaml.Unmarshal(data, &roles))
	require.Len(t, roles, 3)
	assert.Equal(t, "queen", roles[0].Name, "queen exported first")
	assert.True(t, roles[0].Queen)
	assert.Equal(t, "research", roles[1].Capability)
}
