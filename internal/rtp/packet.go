package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"

	"github.com/arzzra/imsphone/internal/imserrors"
)

// Packet is one RTP datagram's logical content: the fixed header fields
// plus the un-decoded payload bytes. PayloadType is carried raw (not a
// resolved MediaFormat) so that a packet using an unregistered format can
// still be parsed and then dropped by the stream layer, matching
// original_source/pyims/rtp/packet.py's shape but without its marker-bit
// bug (see below).
type Packet struct {
	Marker        bool
	PayloadType   uint8
	SequenceNumber uint16
	Timestamp     uint32
	SSRC          uint32
	CSRC          []uint32
	Payload       []byte
}

// Compose serializes p into wire bytes: header byte 0 = (2<<6) |
// (pad<<5) | (ext<<4) | cc; byte 1 = (marker<<7) | (pt & 0x7f); this
// implementation never emits padding or an extension, correcting the
// original Python implementation's bug of leaking the extension bit into
// the marker's position.
func (p Packet) Compose() ([]byte, error) {
	h := pionrtp.Header{
		Version:        2,
		Padding:        false,
		Extension:      false,
		Marker:         p.Marker,
		PayloadType:    p.PayloadType & 0x7f,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
		CSRC:           p.CSRC,
	}
	headerBytes, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("rtp: compose header: %w", err)
	}
	return append(headerBytes, p.Payload...), nil
}

// Parse decodes buf into a Packet. It rejects any version other than 2 and
// rejects packets with the extension bit set (this implementation does not
// read extensions). A set padding bit is honored by trimming the trailing
// pad-length byte's worth of bytes from the payload; pad_len==0 or
// pad_len > remaining payload is a parse error.
func Parse(buf []byte) (Packet, error) {
	var h pionrtp.Header
	n, err := h.Unmarshal(buf)
	if err != nil {
		return Packet{}, fmt.Errorf("rtp: parse header: %w: %w", imserrors.ErrParseError, err)
	}
	if h.Version != 2 {
		return Packet{}, fmt.Errorf("rtp: unsupported version %d: %w", h.Version, imserrors.ErrParseError)
	}
	if h.Extension {
		return Packet{}, fmt.Errorf("rtp: extension bit set: %w", imserrors.ErrParseError)
	}

	payload := buf[n:]
	if h.Padding {
		if len(payload) == 0 {
			return Packet{}, fmt.Errorf("rtp: padding bit set with empty payload: %w", imserrors.ErrParseError)
		}
		padLen := int(payload[len(payload)-1])
		if padLen == 0 || padLen > len(payload) {
			return Packet{}, fmt.Errorf("rtp: invalid padding length %d: %w", padLen, imserrors.ErrParseError)
		}
		payload = payload[:len(payload)-padLen]
	}

	return Packet{
		Marker:         h.Marker,
		PayloadType:    h.PayloadType,
		SequenceNumber: h.SequenceNumber,
		Timestamp:      h.Timestamp,
		SSRC:           h.SSRC,
		CSRC:           h.CSRC,
		Payload:        payload,
	}, nil
}
