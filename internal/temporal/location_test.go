package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, "Asia/Kolkata", LoadLocation("Asia/Kolkata").String())
	// Cached path.
	assert.Equal(t, "Asia/Kolkata", LoadLocation("Asia/Kolkata").String())
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Mars/Olympus_Mons"))
}

func TestValidTimezone(t *testing.T) {
	assert.True(t, ValidTimezone("Europe/Berlin"))
	assert.False(t, ValidTimezone("Europe/Atlantis"))
	assert.False(t, ValidTimezone(""))
}
