// ABOUTME: Tests for the layered encoder
// ABOUTME: Plane ordering, fragmentation, metadata cadence and error draining
package layered

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/source"
)

func TestNewEncoderValidation(t *testing.T) {
	_, err := NewEncoder(EncoderConfig{})
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = NewEncoder(EncoderConfig{
		Source: &rampSource{rate: 48000, channels: 2},
		Packet: PacketParams{HeaderSize: 40, MaxPacketSize: HeaderSize},
	})
	assert.ErrorIs(t, err, ErrPacketTooSmall)

	_, err = NewEncoder(EncoderConfig{Source: &rampSource{rate: 48000, channels: 6}})
	assert.ErrorIs(t, err, ErrUnsupportedTier)
}

func TestEncoderPacketOrder(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Source: &rampSource{rate: 48000, channels: 2}})
	require.NoError(t, err)

	frames, err := encodeFrames(enc, 1)
	require.NoError(t, err)
	pkts := frames[0]

	// 1920 bytes per plane split in two fragments, then metadata
	require.Len(t, pkts, 9)
	wantPlanes := []Plane{PlaneLU, PlaneLU, PlaneRU, PlaneRU, PlaneLL, PlaneLL, PlaneRL, PlaneRL}
	wantLayers := []int{0, 0, 1, 1, 2, 2, 2, 2}
	for i, want := range wantPlanes {
		p, ok := pkts[i].Plane()
		require.True(t, ok)
		assert.Equal(t, want, p, "packet %d", i)
		assert.Equal(t, wantLayers[i], pkts[i].Layer, "packet %d", i)
		assert.Equal(t, uint16(i%2), pkts[i].Fragment)
		assert.LessOrEqual(t, pkts[i].Size(), DefaultMaxPacketSize)
	}
	assert.Len(t, pkts[0].Data, DefaultMaxPacketSize-HeaderSize)
	assert.Len(t, pkts[1].Data, 1920-(DefaultMaxPacketSize-HeaderSize))

	meta := pkts[8]
	assert.True(t, meta.IsMetadata())
	md, err := UnmarshalMetadata(meta.Data)
	require.NoError(t, err)
	assert.Equal(t, "Ramp", md.Title)

	assert.Equal(t, 4, CalculateLayers(enc.Quality()))
	assert.Equal(t, 3, enc.Layers())
}

func TestEncoderPositionsAndMetadataCadence(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Source: &rampSource{rate: 8000, channels: 1}})
	require.NoError(t, err)

	frames, err := encodeFrames(enc, MetadataInterval+1)
	require.NoError(t, err)

	metaFrames := 0
	for i, pkts := range frames {
		assert.Equal(t, uint64(i)*uint64(FrameDuration), pkts[0].Position)
		for _, p := range pkts {
			if p.IsMetadata() {
				metaFrames++
			}
		}
	}
	assert.Equal(t, 2, metaFrames)
}

func TestEncoderFollowsLimits(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Source: &rampSource{rate: 48000, channels: 2}})
	require.NoError(t, err)
	require.NoError(t, enc.PrepareNextFrame())
	assert.Equal(t, audio.HighestQuality(), enc.Quality())

	enc.SetBandwidthLimits(Limits{Total: 20000})
	require.NoError(t, enc.PrepareNextFrame())
	assert.Less(t, enc.Quality().Compare(audio.HighestQuality()), 0)
	assert.True(t, Limits{Total: 20000}.Allows(EstimateBandwidth(enc.Quality(), DefaultPacketParams())))

	enc.SetBandwidthLimits(Limits{})
	enc.SetDecrementSteps(2)
	require.NoError(t, enc.PrepareNextFrame())
	assert.Equal(t, audio.HighestQuality().Decrement(2), enc.Quality())

	// converted frames keep the packed size of the selected level
	pkt, ok := enc.GetNextPacket(DefaultMaxPacketSize)
	require.True(t, ok)
	assert.Equal(t, enc.Quality().SampleRate(), pkt.SampleRate)
}

func TestEncoderLogsInitialQualityOnce(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	enc, err := NewEncoder(EncoderConfig{Source: &rampSource{rate: 48000, channels: 2}})
	require.NoError(t, err)
	require.NoError(t, enc.PrepareNextFrame())
	require.NoError(t, enc.PrepareNextFrame())

	var selected, changed []*logrus.Entry
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "Quality selected":
			selected = append(selected, e)
		case "Quality changed":
			changed = append(changed, e)
		}
	}
	require.Len(t, selected, 1)
	assert.Equal(t, audio.HighestQuality(), selected[0].Data["quality"])
	assert.Empty(t, changed)

	enc.SetDecrementSteps(1)
	require.NoError(t, enc.PrepareNextFrame())
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "Quality changed", last.Message)
	assert.Equal(t, audio.HighestQuality(), last.Data["from"])
}

func TestEncoderResamplesAndRemixes(t *testing.T) {
	tone := source.NewToneSource(source.ToneConfig{SampleRate: 44100, Channels: 2})
	q, ok := audio.LookupQuality(22050, 12, 1)
	require.True(t, ok)

	enc, err := NewEncoder(EncoderConfig{Source: tone, Quality: q})
	require.NoError(t, err)

	frames, err := encodeFrames(enc, 2)
	require.NoError(t, err)

	total := 0
	for _, p := range frames[1] {
		if !p.IsMetadata() {
			total += len(p.Data)
			assert.Equal(t, 1, p.Channels)
		}
	}
	assert.Equal(t, q.FrameBytes(FrameRate), total)
}

func TestEncoderDrainsErrorThenSuspends(t *testing.T) {
	frameSamples := 8000 / FrameRate
	src := &rampSource{rate: 8000, channels: 1, limit: frameSamples*2 + 10}
	enc, err := NewEncoder(EncoderConfig{Source: src})
	require.NoError(t, err)

	frames, err := encodeFrames(enc, 3)
	require.NoError(t, err)
	assert.Equal(t, audio.NoError, frames[1][0].ErrorCode)
	// third frame is the short one; it still carries audio
	assert.Equal(t, audio.NoError, frames[2][0].ErrorCode)

	var errorFrames int
	for {
		err := enc.PrepareNextFrame()
		if err != nil {
			assert.True(t, IsSuspended(err))
			break
		}
		pkt, ok := enc.GetNextPacket(DefaultMaxPacketSize)
		require.True(t, ok)
		assert.Equal(t, audio.EndOfStream, pkt.ErrorCode)
		assert.Empty(t, pkt.Data)
		assert.Equal(t, PlaneLU.Flags(), pkt.Flags)
		_, more := enc.GetNextPacket(DefaultMaxPacketSize)
		assert.False(t, more)
		errorFrames++
	}
	assert.Equal(t, ErrorDrainFrames, errorFrames)
	assert.Equal(t, audio.EndOfStream, enc.ErrorCode())
}

func TestEncoderReadErrorCode(t *testing.T) {
	src := &rampSource{rate: 8000, channels: 1, err: errors.New("disk gone")}
	enc, err := NewEncoder(EncoderConfig{Source: src})
	require.NoError(t, err)

	require.NoError(t, enc.PrepareNextFrame())
	pkt, ok := enc.GetNextPacket(DefaultMaxPacketSize)
	require.True(t, ok)
	assert.Equal(t, audio.ReadError, pkt.ErrorCode)
	assert.True(t, pkt.ErrorCode.IsUnrecoverable())
}
