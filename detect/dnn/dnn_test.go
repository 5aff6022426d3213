package dnn

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
		{"missing model", func(c *Config) { c.ModelPath = "" }, false},
		{"input size not multiple of 32", func(c *Config) { c.InputSize = 600 }, false},
		{"zero classes", func(c *Config) { c.NumClasses = 0 }, false},
		{"person index out of range", func(c *Config) { c.PersonClassIndex = -1 }, false},
		{"nms iou zero", func(c *Config) { c.NMSIoU = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("model.onnx")
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

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(DefaultConfig("/nonexistent/model.onnx"), nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
}
