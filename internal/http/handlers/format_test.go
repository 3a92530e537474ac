package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45))
	assert.Equal(t, "45m 10s", FormatDuration(45*60+10))
	assert.Equal(t, "2h 05m", FormatDuration(2*3600+5*60))
}

func TestFormatKilometers(t *testing.T) {
	assert.Equal(t, "12.3 km", FormatKilometers(12345))
	assert.Equal(t, "0.0 km", FormatKilometers(0))
}
