// ABOUTME: Fixed-size stream metadata record
// ABOUTME: Start/end positions plus NUL-terminated title, artist and comment
package layered

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const metadataFieldSize = 48

// Metadata describes the current stream; a received record replaces the old one wholesale
type Metadata struct {
	Start   uint64
	End     uint64
	Title   string
	Artist  string
	Comment string
}

// Marshal encodes the record. Strings are truncated to leave room for the terminator.
func (m Metadata) Marshal() []byte {
	buf := make([]byte, MetadataSize)
	binary.BigEndian.PutUint64(buf[0:], m.Start)
	binary.BigEndian.PutUint64(buf[8:], m.End)
	putField(buf[16:16+metadataFieldSize], m.Title)
	putField(buf[16+metadataFieldSize:16+2*metadataFieldSize], m.Artist)
	putField(buf[16+2*metadataFieldSize:], m.Comment)
	return buf
}

func putField(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

// UnmarshalMetadata decodes a record; fields without a terminator are cut at the field size
func UnmarshalMetadata(buf []byte) (Metadata, error) {
	if len(buf) < MetadataSize {
		return Metadata{}, fmt.Errorf("%w: %d bytes", ErrBadMetadata, len(buf))
	}
	return Metadata{
		Start:   binary.BigEndian.Uint64(buf[0:]),
		End:     binary.BigEndian.Uint64(buf[8:]),
		Title:   getField(buf[16 : 16+metadataFieldSize]),
		Artist:  getField(buf[16+metadataFieldSize : 16+2*metadataFieldSize]),
		Comment: getField(buf[16+2*metadataFieldSize : MetadataSize]),
	}, nil
}

func getField(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
