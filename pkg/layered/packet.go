// ABOUTME: Wire format of layered transport packets
// ABOUTME: 28-byte big-endian header followed by one plane fragment or a metadata record
package layered

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// Flags select the plane (or metadata) a packet carries
type Flags uint8

const (
	FlagLeft     Flags = 0x01
	FlagRight    Flags = 0x02
	FlagUpper    Flags = 0x04
	FlagLower    Flags = 0x08
	FlagMetadata Flags = 0x10
)

// Packet is one layered transport packet
type Packet struct {
	// Layer is the RTP stream the packet travels on; not part of the header
	Layer int

	SampleRate  int
	Channels    int
	Bits        int
	Position    uint64 // nanoseconds
	MaxPosition uint64 // nanoseconds, zero when unknown
	ErrorCode   audio.ErrorCode
	Flags       Flags
	Fragment    uint16
	Data        []byte
}

// Validate rejects flag combinations other than one plane or metadata
func (p *Packet) Validate() error {
	if p.Flags == FlagMetadata {
		return nil
	}
	if _, ok := planeForFlags(p.Flags); !ok {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidFlags, uint8(p.Flags))
	}
	return nil
}

// IsMetadata reports a metadata packet
func (p *Packet) IsMetadata() bool { return p.Flags == FlagMetadata }

// Plane returns the plane carried; ok is false for metadata
func (p *Packet) Plane() (Plane, bool) { return planeForFlags(p.Flags) }

// Size on the wire
func (p *Packet) Size() int { return HeaderSize + len(p.Data) }

// MarshalTo writes the packet into buf and returns the bytes used
func (p *Packet) MarshalTo(buf []byte) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if len(buf) < p.Size() {
		return 0, fmt.Errorf("%w: buffer %d, packet %d", ErrShortPacket, len(buf), p.Size())
	}
	binary.BigEndian.PutUint32(buf[0:], FormatTag)
	binary.BigEndian.PutUint16(buf[4:], uint16(p.SampleRate))
	buf[6] = uint8(p.Channels)
	buf[7] = uint8(p.Bits)
	binary.BigEndian.PutUint64(buf[8:], p.Position)
	binary.BigEndian.PutUint64(buf[16:], p.MaxPosition)
	buf[24] = uint8(p.ErrorCode)
	buf[25] = uint8(p.Flags)
	binary.BigEndian.PutUint16(buf[26:], p.Fragment)
	copy(buf[HeaderSize:], p.Data)
	return p.Size(), nil
}

// Marshal encodes the packet into a new buffer
func (p *Packet) Marshal() ([]byte, error) {
	buf := make([]byte, p.Size())
	if _, err := p.MarshalTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal parses a packet. Data aliases buf.
func (p *Packet) Unmarshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	if tag := binary.BigEndian.Uint32(buf[0:]); tag != FormatTag {
		return fmt.Errorf("%w: 0x%08x", ErrBadFormatTag, tag)
	}
	p.SampleRate = int(binary.BigEndian.Uint16(buf[4:]))
	p.Channels = int(buf[6])
	p.Bits = int(buf[7])
	p.Position = binary.BigEndian.Uint64(buf[8:])
	p.MaxPosition = binary.BigEndian.Uint64(buf[16:])
	p.ErrorCode = audio.ErrorCode(buf[24])
	p.Flags = Flags(buf[25])
	p.Fragment = binary.BigEndian.Uint16(buf[26:])
	p.Data = buf[HeaderSize:]
	return p.Validate()
}
