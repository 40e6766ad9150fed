// ABOUTME: Tests for loss driven bandwidth adaptation
// ABOUTME: Checks ceilings shrink on loss and grow back when clean
package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptationAdjust(t *testing.T) {
	a := DefaultAdaptation()

	tests := []struct {
		name  string
		limit int
		usage int
		full  int
		loss  float64
		want  int
	}{
		{"heavy loss from unlimited", 0, 40000, 200000, 0.5, 30000},
		{"heavy loss under tighter limit", 20000, 40000, 200000, 0.5, 15000},
		{"heavy loss on idle layer", 0, 0, 200000, 0.5, 0},
		{"heavy loss floor", 1, 1, 200000, 0.9, 1},
		{"moderate loss holds", 20000, 40000, 200000, 0.05, 20000},
		{"clean relaxes", 16000, 40000, 200000, 0, 18001},
		{"clean stays unlimited", 0, 40000, 200000, 0, 0},
		{"clean lifts near full", 190000, 40000, 200000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.adjust(tt.limit, tt.usage, tt.full, tt.loss))
		})
	}
}

func TestAdaptationDisabled(t *testing.T) {
	a := Adaptation{}
	assert.Equal(t, 5000, a.adjust(5000, 40000, 200000, 0.9))
	assert.Equal(t, 5000, a.adjust(5000, 40000, 200000, 0))
}
