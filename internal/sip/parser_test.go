package sip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSampleResponse(body string) *Message {
	msg := NewResponse(200)
	msg.Add(NewFrom("Alice", "sip:alice@example.com", "1"))
	msg.Add(NewTo("Bob", "sip:bob@example.com", "2"))
	msg.Add(&CallIDHeader{Value: "abc123"})
	msg.Add(&CSeqHeader{Sequence: 1, Method: MethodRegister})
	msg.Add(&ViaHeader{Transport: "UDP", Host: "10.0.0.1", Port: 5060, Branch: "z9hG4bK-1"})
	if body != "" {
		msg.Add(&ContentTypeHeader{Value: "application/sdp"})
		msg.Body = []byte(body)
	}
	return msg
}

func TestComposeParseRoundTrip(t *testing.T) {
	msg := buildSampleResponse("v=0\r\n")
	wire := msg.Compose()

	parsed, n, err := Parse(wire, 0)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)
	require.Equal(t, 200, parsed.StatusCode)
	require.Equal(t, "v=0\r\n", string(parsed.Body))

	from, ok := parsed.First("From")
	require.True(t, ok)
	fromHdr := from.(*SenderSendeeHeader)
	require.Equal(t, "Alice", fromHdr.Display)
	require.Equal(t, "1", fromHdr.Tag)
}

func TestParserResumption(t *testing.T) {
	first := buildSampleResponse("v=0\r\n")
	second := buildSampleResponse("")
	wire := append(first.Compose(), second.Compose()...)

	// split mid-way through the first message's body
	splitPoint := len(first.Compose()) - 2
	buf := wire[:splitPoint]

	_, _, err := Parse(buf, 0)
	require.ErrorIs(t, err, ErrNeedMoreBytes)

	parsed, n, err := Parse(wire, 0)
	require.NoError(t, err)
	require.Equal(t, len(first.Compose()), n)
	require.Equal(t, "v=0\r\n", string(parsed.Body))

	parsed2, n2, err := Parse(wire, n)
	require.NoError(t, err)
	require.Equal(t, len(second.Compose()), n2)
	require.Equal(t, "", string(parsed2.Body))
}

func TestUnknownHeaderPreservedAsCustom(t *testing.T) {
	msg := NewRequest(MethodOptions, "sip:bob@example.com")
	msg.Add(&CustomHeader{Name: "P-Access-Network-Info", Value: "3GPP-E-UTRAN-FDD"})
	wire := msg.Compose()

	parsed, _, err := Parse(wire, 0)
	require.NoError(t, err)
	h, ok := parsed.First("P-Access-Network-Info")
	require.True(t, ok)
	require.Equal(t, "3GPP-E-UTRAN-FDD", h.ComposeValue())
}

func TestMultipleViaPreservedInOrder(t *testing.T) {
	msg := NewRequest(MethodInvite, "sip:bob@example.com")
	msg.Add(&ViaHeader{Transport: "UDP", Host: "h1", Branch: "b1"})
	msg.Add(&ViaHeader{Transport: "UDP", Host: "h2", Branch: "b2"})
	wire := msg.Compose()

	parsed, _, err := Parse(wire, 0)
	require.NoError(t, err)
	vias := parsed.HeadersByName("Via")
	require.Len(t, vias, 2)
	require.Equal(t, "h1", vias[0].(*ViaHeader).Host)
	require.Equal(t, "h2", vias[1].(*ViaHeader).Host)
}
