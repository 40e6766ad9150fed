// ABOUTME: Sentinel errors for the layered codec
// ABOUTME: Wrapped with fmt.Errorf at call sites
package layered

import "errors"

var (
	ErrShortPacket     = errors.New("packet shorter than header")
	ErrBadFormatTag    = errors.New("unknown format tag")
	ErrInvalidFlags    = errors.New("invalid plane flags")
	ErrBadMetadata     = errors.New("malformed metadata record")
	ErrNoSource        = errors.New("encoder requires an audio source")
	ErrPacketTooSmall  = errors.New("max packet size leaves no room for payload")
	ErrSuspended       = errors.New("encoder suspended after stream error")
	ErrUnknownLayer    = errors.New("unknown transport layer")
	ErrUnsupportedTier = errors.New("unsupported bit depth or channel count")
)
