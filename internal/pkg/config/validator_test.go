package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		min       time.Duration
		max       time.Duration
		expectErr bool
	}{
		{name: "within range", duration: 30 * time.Second, min: time.Second, max: time.Minute},
		{name: "at minimum", duration: time.Second, min: time.Second, max: time.Minute},
		{name: "at maximum", duration: time.Minute, min: time.Second, max: time.Minute},
		{name: "below minimum", duration: 500 * time.Millisecond, min: time.Second, max: time.Minute, expectErr: true},
		{name: "above maximum", duration: 2 * time.Minute, min: time.Second, max: time.Minute, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDuration(tt.duration, tt.min, tt.max)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Millisecond))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(5, 1, 10))
	assert.NoError(t, ValidateIntRange(1, 1, 10))
	assert.NoError(t, ValidateIntRange(10, 1, 10))
	assert.Error(t, ValidateIntRange(0, 1, 10))
	assert.Error(t, ValidateIntRange(11, 1, 10))
}

func TestValidateRatio(t *testing.T) {
	assert.NoError(t, ValidateRatio(0))
	assert.NoError(t, ValidateRatio(0.5))
	assert.NoError(t, ValidateRatio(1))
	assert.Error(t, ValidateRatio(-0.1))
	assert.Error(t, ValidateRatio(1.1))
}

func TestValidatePositiveFloat(t *testing.T) {
	assert.NoError(t, ValidatePositiveFloat(0.001))
	assert.Error(t, ValidatePositiveFloat(0))
	assert.Error(t, ValidatePositiveFloat(-1))
}
