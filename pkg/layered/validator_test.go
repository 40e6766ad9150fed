// ABOUTME: Tests for the RTP sequence validator
// ABOUTME: Probation, duplicates, wrap, jumps, loss fraction and jitter
package layered

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() (*SequenceValidator, *MockClock) {
	clock := NewMockClock(time.Unix(1000, 0))
	return NewSequenceValidator(clock, TimestampClockRate), clock
}

func TestValidatorProbation(t *testing.T) {
	v, _ := newTestValidator()
	assert.Equal(t, Probation, v.Validate(100))
	assert.Equal(t, Valid, v.Validate(101))
	assert.True(t, v.Ready())
	assert.Equal(t, uint32(1), v.Received())
	assert.Equal(t, Valid, v.Validate(102))
}

func TestValidatorProbationRestartsOnGap(t *testing.T) {
	v, _ := newTestValidator()
	assert.Equal(t, Probation, v.Validate(100))
	assert.Equal(t, Probation, v.Validate(200))
	assert.Equal(t, Valid, v.Validate(201))
	assert.Equal(t, uint32(201), v.State().BaseSeq)
}

func TestValidatorDuplicate(t *testing.T) {
	v, _ := newTestValidator()
	v.Validate(1)
	v.Validate(2)
	assert.Equal(t, DuplicatePacket, v.Validate(2))
	assert.Equal(t, uint32(1), v.Received())
}

func TestValidatorWrap(t *testing.T) {
	v, _ := newTestValidator()
	v.Validate(65533)
	require.Equal(t, Valid, v.Validate(65534))
	assert.Equal(t, Valid, v.Validate(65535))
	assert.Equal(t, Valid, v.Validate(0))
	assert.Equal(t, uint32(SeqMod), v.State().Cycles)
	assert.Equal(t, uint32(SeqMod), v.ExtendedHighest())
}

func TestValidatorJump(t *testing.T) {
	tests := []struct {
		name string
		next uint16
	}{
		{"sender continues", 20001},
		{"sender repeats", 20000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTestValidator()
			v.Validate(10)
			v.Validate(11)

			assert.Equal(t, InvalidSeqNum, v.Validate(20000))
			assert.Equal(t, Jumped, v.Validate(tt.next))
			assert.Equal(t, tt.next, v.State().MaxSeq)
			assert.Equal(t, Valid, v.Validate(tt.next+1))
		})
	}
}

func TestValidatorMisorderedAccepted(t *testing.T) {
	v, _ := newTestValidator()
	for seq := uint16(100); seq <= 110; seq++ {
		v.Validate(seq)
	}
	assert.Equal(t, Valid, v.Validate(105))
	assert.Equal(t, uint16(110), v.State().MaxSeq)
}

func TestValidatorFractionLost(t *testing.T) {
	v, _ := newTestValidator()
	assert.Zero(t, v.CalculateFractionLost())

	v.Validate(0)
	v.Validate(1)
	for seq := uint16(2); seq <= 10; seq++ {
		if seq == 5 {
			continue
		}
		v.Validate(seq)
	}

	assert.Equal(t, int32(1), v.CumulativeLost())
	assert.Equal(t, uint8(256/10), v.CalculateFractionLost())
	// nothing new since the last report
	assert.Zero(t, v.CalculateFractionLost())
}

func TestValidatorJitter(t *testing.T) {
	v, clock := newTestValidator()
	step := 20 * time.Millisecond
	ticks := uint32(TimestampClockRate / 50)

	ts := uint32(5000)
	for seq := uint16(1); seq <= 5; seq++ {
		v.ValidateTimestamped(seq, ts)
		clock.Advance(step)
		ts += ticks
	}
	assert.Zero(t, v.Jitter())

	clock.Advance(10 * time.Millisecond)
	v.ValidateTimestamped(6, ts)
	assert.Equal(t, uint32(480/16), v.Jitter())
}

func TestValidatorReset(t *testing.T) {
	v, _ := newTestValidator()
	v.Validate(1)
	v.Validate(2)
	v.Reset()
	assert.False(t, v.Ready())
	assert.Equal(t, Probation, v.Validate(50))
}

func TestValidatorPrime(t *testing.T) {
	v, _ := newTestValidator()
	v.Prime(300, 0)
	assert.True(t, v.Ready())
	assert.Equal(t, Valid, v.Validate(301))
	assert.Equal(t, uint32(2), v.Received())
}
