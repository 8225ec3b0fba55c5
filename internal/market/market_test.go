package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsOpen(t *testing.T) {
	// 2024-03-06 is a Wednesday
	at := func(h, m int) time.Time { return time.Date(2024, 3, 6, h, m, 0, 0, IST) }

	assert.False(t, IsOpen(at(9, 14)))
	assert.True(t, IsOpen(at(9, 15)))
	assert.True(t, IsOpen(at(12, 0)))
	assert.True(t, IsOpen(at(15, 30)))
	assert.False(t, IsOpen(at(15, 31)))

	saturday := time.Date(2024, 3, 9, 11, 0, 0, 0, IST)
	assert.False(t, IsOpen(saturday))

	// 05:00 UTC is 10:30 IST
	assert.True(t, IsOpen(time.Date(2024, 3, 6, 5, 0, 0, 0, time.UTC)))
}

func TestDayAndMidnight(t *testing.T) {
	// 20:00 UTC on the 5th is already the 6th in IST
	utc := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-06", Day(utc))
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, IST), MidnightIST(utc))
}
