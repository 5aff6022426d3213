package pigo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachwatch/go-crowd/errdefs"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing cascade", func(c *Config) { c.CascadePath = "" }, false},
		{"zero min size", func(c *Config) { c.MinSize = 0 }, false},
		{"negative max size", func(c *Config) { c.MaxSize = -1 }, false},
		{"shift factor too large", func(c *Config) { c.ShiftFactor = 1.5 }, false},
		{"scale factor not growing", func(c *Config) { c.ScaleFactor = 1.0 }, false},
		{"cluster iou out of range", func(c *Config) { c.ClusterIoU = 1.0 }, false},
		{"zero quality norm", func(c *Config) { c.QualityNorm = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("facefinder")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errdefs.IsConfiguration(err))
			}
		})
	}
}

func TestNewRejectsMissingCascade(t *testing.T) {
	_, err := New(DefaultConfig("/nonexistent/facefinder"), nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
}
