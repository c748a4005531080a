package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{
		Marker:         true,
		PayloadType:    0,
		SequenceNumber: 1234,
		Timestamp:      160,
		SSRC:           0xdeadbeef,
		Payload:        []byte{1, 2, 3, 4, 5},
	}
	buf, err := p.Compose()
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, p.Marker, got.Marker)
	require.Equal(t, p.PayloadType, got.PayloadType)
	require.Equal(t, p.SequenceNumber, got.SequenceNumber)
	require.Equal(t, p.Timestamp, got.Timestamp)
	require.Equal(t, p.SSRC, got.SSRC)
	require.Equal(t, p.Payload, got.Payload)
}

func TestPacketRejectsExtension(t *testing.T) {
	p := Packet{PayloadType: 0, Payload: []byte{1}}
	buf, err := p.Compose()
	require.NoError(t, err)
	// force the extension bit on
	buf[0] |= 0x10

	_, err = Parse(buf)
	require.Error(t, err)
}

func TestExtensionBitDoesNotLeakIntoMarker(t *testing.T) {
	// Regression test for the original Python implementation's bug where
	// compose() never used self.marker and instead leaked the extension
	// flag into byte 1's top bit.
	marked := Packet{Marker: true, PayloadType: 8, Payload: []byte{9}}
	unmarked := Packet{Marker: false, PayloadType: 8, Payload: []byte{9}}

	mbuf, err := marked.Compose()
	require.NoError(t, err)
	ubuf, err := unmarked.Compose()
	require.NoError(t, err)

	require.Equal(t, byte(0x88), mbuf[1])
	require.Equal(t, byte(0x08), ubuf[1])

	mp, err := Parse(mbuf)
	require.NoError(t, err)
	up, err := Parse(ubuf)
	require.NoError(t, err)
	require.True(t, mp.Marker)
	require.False(t, up.Marker)
}

func TestULawRoundTrip(t *testing.T) {
	linear := make([]byte, 320) // 160 samples, 16-bit
	for i := range linear {
		linear[i] = byte(i)
	}
	encoded := EncodeULaw(linear)
	require.Len(t, encoded, 160)
	decoded := DecodeULaw(encoded)
	require.Len(t, decoded, 320)
}

func TestALawRoundTrip(t *testing.T) {
	linear := make([]byte, 320)
	for i := range linear {
		linear[i] = byte(255 - i)
	}
	encoded := EncodeALaw(linear)
	require.Len(t, encoded, 160)
	decoded := DecodeALaw(encoded)
	require.Len(t, decoded, 320)
}

func TestRegistryFirstCommon(t *testing.T) {
	reg := NewDefaultRegistry()
	local := reg.Ordered()
	remote := []MediaFormat{PCMA}

	selected, ok := FirstCommon(local, remote)
	require.True(t, ok)
	require.Equal(t, "PCMA", selected.Name)
}
