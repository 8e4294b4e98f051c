package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero iterations", func(c *Config) { c.Iterations = 0 }},
		{"thin not dividing", func(c *Config) { c.Iterations = 10; c.Thin = 3 }},
		{"no trees", func(c *Config) { c.Trees = 0 }},
		{"negative step prob", func(c *Config) { c.StepProb[1] = -1 }},
		{"zero step mass", func(c *Config) { c.StepProb = [4]float64{} }},
		{"alpha out of range", func(c *Config) { c.TreePrior.Alpha = 1.5 }},
		{"unknown family", func(c *Config) { c.Family = "poisson" }},
		{"bad interaction", func(c *Config) { c.Interaction = 5 }},
		{"bad shrinkage", func(c *Config) { c.Shrinkage = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
iterations: 100
burn: 50
thin: 2
trees: 4
family: gaussian
interaction: 1
shrinkage: 3
seed: 77
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Iterations)
	assert.Equal(t, 4, c.Trees)
	assert.Equal(t, 1, c.Interaction)
	assert.Equal(t, uint64(77), c.Seed)
	// defaults survive for unset keys
	assert.Equal(t, 0.95, c.TreePrior.Alpha)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/model.yaml")
	assert.Error(t, err)
}
