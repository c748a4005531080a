package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/socket"
)

func newTestHandler(t *testing.T) (*CallHandler, *rtp.Registry) {
	t.Helper()
	rx, err := reactor.New(logging.Nop())
	require.NoError(t, err)
	go rx.RunForever(10 * time.Millisecond)
	t.Cleanup(func() { rx.Stop(); rx.Close() })

	registry := rtp.NewDefaultRegistry()
	h := NewCallHandler(rx, logging.Nop(), metrics.New(nil), registry, "127.0.0.1", registry.Ordered())
	return h, registry
}

func TestComposeAndParseSDPRoundTrip(t *testing.T) {
	_, registry := newTestHandler(t)
	offer := &InviteRequest{
		SessionID:        1,
		Address:          fakeAddress(),
		Media:            "audio",
		SupportedFormats: registry.Ordered(),
	}

	msg, err := offer.ComposeToSDP(registry)
	require.NoError(t, err)

	parsed, err := ParseFromSDP(msg, registry)
	require.NoError(t, err)
	require.Equal(t, offer.Address, parsed.Address)
	require.Equal(t, offer.Media, parsed.Media)
	require.ElementsMatch(t, offer.SupportedFormats, parsed.SupportedFormats)
}

func fakeAddress() socket.Address {
	return socket.Address{IP: "127.0.0.1", Port: 41000}
}

func TestCreateInviteAllocatesPortInRange(t *testing.T) {
	h, registry := newTestHandler(t)
	req := h.CreateInvite()
	require.Equal(t, "127.0.0.1", req.Address.IP)
	require.GreaterOrEqual(t, req.Address.Port, portRangeLow)
	require.Less(t, req.Address.Port, portRangeHigh)
	require.Equal(t, registry.Ordered(), req.SupportedFormats)
}

func TestOnAnswerNegotiatesCommonFormatAndEstablishesCall(t *testing.T) {
	h, _ := newTestHandler(t)
	var established CallInfo
	h.OnCallEstablished = func(s CallSession, info CallInfo) { established = info }

	local := h.CreateInvite()
	remote := &InviteRequest{Address: fakeAddress(), Media: "audio", SupportedFormats: []rtp.MediaFormat{rtp.PCMA}}

	session, err := h.OnAnswer(local, remote)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, rtp.PCMA, established.Format)
	session.Terminate()
}

func TestOnInviteRejectsWithNoCommonFormat(t *testing.T) {
	h, _ := newTestHandler(t)
	offer := &InviteRequest{Address: fakeAddress(), Media: "audio", SupportedFormats: nil}
	_, _, err := h.OnInvite(offer)
	require.Error(t, err)
}

func TestOnInviteBuildsLocalAnswerAndSession(t *testing.T) {
	h, _ := newTestHandler(t)
	offer := &InviteRequest{Address: fakeAddress(), Media: "audio", SupportedFormats: []rtp.MediaFormat{rtp.PCMU, rtp.PCMA}}
	answer, session, err := h.OnInvite(offer)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, []rtp.MediaFormat{rtp.PCMU}, answer.SupportedFormats)
	require.NotEqual(t, offer.Address.Port, answer.Address.Port)
	session.Terminate()
}
