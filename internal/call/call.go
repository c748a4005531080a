package call

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/sdp"
	"github.com/arzzra/imsphone/internal/socket"
)

// portRangeLow/portRangeHigh bound the ephemeral RTP port allocation,
// grounded on original_source/pyims/sip/call.py's CallHandler port pool.
const (
	portRangeLow  = 40000
	portRangeHigh = 50000
)

// InviteRequest is the negotiable content of an INVITE's SDP body: the
// address/port the offerer listens on and the formats it is willing to
// receive, grounded on original_source/pyims/sip/call.py's InviteRequest.
type InviteRequest struct {
	SessionID        int
	Address          socket.Address
	Media            string // "audio"
	SupportedFormats []rtp.MediaFormat
}

// ComposeToSDP renders an InviteRequest as an SDP offer/answer body.
func (r *InviteRequest) ComposeToSDP(registry *rtp.Registry) (*sdp.Message, error) {
	ids := make([]int, 0, len(r.SupportedFormats))
	for _, f := range r.SupportedFormats {
		id, ok := registry.IDByFormat(f)
		if !ok {
			return nil, fmt.Errorf("call: format %s is not registered", f.Name)
		}
		ids = append(ids, int(id))
	}

	msg := &sdp.Message{}
	msg.Add(&sdp.Version{Value: 0})
	msg.Add(&sdp.Originator{
		Username: "-", SessionID: fmt.Sprintf("%d", r.SessionID), SessionVersion: "1",
		NetType: sdp.NetworkTypeIN, AddrType: sdp.AddressTypeIPv4, Address: r.Address.IP,
	})
	msg.Add(&sdp.SessionName{Value: "imsphone"})
	msg.Add(&sdp.ConnectionInformation{NetType: sdp.NetworkTypeIN, AddrType: sdp.AddressTypeIPv4, Address: r.Address.IP})
	msg.Add(&sdp.TimeDescription{Start: 0, Stop: 0})
	msg.Add(&sdp.MediaDescription{Media: r.Media, Port: r.Address.Port, Protocol: sdp.ProtocolRTPAVP, Formats: ids})
	for _, f := range r.SupportedFormats {
		id, _ := registry.IDByFormat(f)
		msg.Add(&sdp.RtpMap{FormatID: int(id), MimeType: f.Name, SampleRate: f.SampleRate, Channels: f.Channels})
	}
	msg.Add(sdp.SendRecv())
	return msg, nil
}

// ParseFromSDP extracts an InviteRequest from a received SDP body, resolving
// advertised payload-type ids back to MediaFormats via registry. Unregistered
// format ids are silently skipped, per spec.md §4.E.
func ParseFromSDP(msg *sdp.Message, registry *rtp.Registry) (*InviteRequest, error) {
	mediaField, ok := msg.First("m")
	media, ok2 := mediaField.(*sdp.MediaDescription)
	if !ok || !ok2 {
		return nil, fmt.Errorf("call: sdp offer has no media description")
	}
	connField, ok := msg.First("c")
	conn, ok2 := connField.(*sdp.ConnectionInformation)
	if !ok || !ok2 {
		return nil, fmt.Errorf("call: sdp offer has no connection information")
	}

	var formats []rtp.MediaFormat
	for _, id := range media.Formats {
		if f, ok := registry.FormatByID(uint8(id)); ok {
			formats = append(formats, f)
		}
	}

	return &InviteRequest{
		Address:          socket.Address{IP: conn.Address, Port: media.Port},
		Media:            media.Media,
		SupportedFormats: formats,
	}, nil
}

// CallInfo summarizes a negotiated call: the chosen format and both
// endpoints' RTP addresses, passed to the application's session factory.
type CallInfo struct {
	LocalAddress  socket.Address
	RemoteAddress socket.Address
	Format        rtp.MediaFormat
}

// CallSession is implemented by application-level call handling (e.g. an
// RTP relay, a recorder, an IVR); CallHandler drives it through its
// lifecycle, grounded on original_source/pyims/sip/rtp_call.py's
// CallSession ABC.
type CallSession interface {
	Start()
	Terminate()
	AttachOut(src ReadableStream, onFinish func())
	AttachIn(sink WritableStream)
}

// rtpCallSession is the default CallSession backed directly by an
// RtpStream, wiring the playlist source (CallOutStream) and buffered sink
// (CallInStream) between the application and the network.
type rtpCallSession struct {
	stream *RtpStream
	out    *CallOutStream
	in     *CallInStream
}

func newRtpCallSession(stream *RtpStream) *rtpCallSession {
	s := &rtpCallSession{stream: stream, out: &CallOutStream{}, in: &CallInStream{}}
	stream.AttachSink(s.in)
	stream.AttachSource(s.out)
	return s
}

func (s *rtpCallSession) Start()    { s.stream.Start() }
func (s *rtpCallSession) Terminate() { s.stream.Close() }
func (s *rtpCallSession) AttachOut(src ReadableStream, onFinish func()) {
	s.out.AttachStream(src, onFinish)
}
func (s *rtpCallSession) AttachIn(sink WritableStream) { s.in.Attach(sink) }

// CallHandler allocates ephemeral RTP ports, builds/parses offer SDP, and
// instantiates CallSessions for both outbound (OnAnswer, after CreateInvite
// built the offer) and inbound (OnInvite) calls, grounded on
// original_source/pyims/sip/call.py's CallHandler.
type CallHandler struct {
	mu        sync.Mutex
	rx        *reactor.Reactor
	log       logging.Logger
	metrics   *metrics.Metrics
	registry  *rtp.Registry
	localIP   string
	formats   []rtp.MediaFormat
	nextID    int

	// OnCallEstablished is invoked once a session is created, letting the
	// application attach its own source/sink before RTP flows.
	OnCallEstablished func(CallSession, CallInfo)
}

// NewCallHandler builds a CallHandler bound to localIP, offering formats
// in the given preference order.
func NewCallHandler(rx *reactor.Reactor, log logging.Logger, m *metrics.Metrics, registry *rtp.Registry, localIP string, formats []rtp.MediaFormat) *CallHandler {
	return &CallHandler{rx: rx, log: log, metrics: m, registry: registry, localIP: localIP, formats: formats}
}

func (h *CallHandler) allocatePort() int {
	return portRangeLow + rand.Intn(portRangeHigh-portRangeLow)
}

func (h *CallHandler) nextSessionID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

// CreateInvite builds the local InviteRequest (SDP offer) for an outbound
// call, allocating a fresh local RTP port.
func (h *CallHandler) CreateInvite() *InviteRequest {
	return &InviteRequest{
		SessionID:        h.nextSessionID(),
		Address:          socket.Address{IP: h.localIP, Port: h.allocatePort()},
		Media:            "audio",
		SupportedFormats: h.formats,
	}
}

// OnAnswer completes an outbound call once the remote's SDP answer has
// arrived: it negotiates the format, builds the RtpStream, instantiates the
// CallSession, and invokes OnCallEstablished.
func (h *CallHandler) OnAnswer(local *InviteRequest, remote *InviteRequest) (CallSession, error) {
	format, ok := rtp.FirstCommon(h.formats, remote.SupportedFormats)
	if !ok {
		return nil, fmt.Errorf("call: no mutually supported format in answer")
	}
	return h.startSession(local.Address, remote.Address, format)
}

// OnInvite handles an inbound INVITE's SDP offer: it allocates a local RTP
// port, negotiates the first mutually supported format, builds an
// InviteRequest to use as the 200 OK's SDP answer, and returns the
// CallSession.
func (h *CallHandler) OnInvite(offer *InviteRequest) (*InviteRequest, CallSession, error) {
	format, ok := rtp.FirstCommon(h.formats, offer.SupportedFormats)
	if !ok {
		return nil, nil, fmt.Errorf("call: no mutually supported format in offer")
	}
	local := &InviteRequest{
		SessionID:        h.nextSessionID(),
		Address:          socket.Address{IP: h.localIP, Port: h.allocatePort()},
		Media:            "audio",
		SupportedFormats: []rtp.MediaFormat{format},
	}
	session, err := h.startSession(local.Address, offer.Address, format)
	if err != nil {
		return nil, nil, err
	}
	return local, session, nil
}

func (h *CallHandler) startSession(local, remote socket.Address, format rtp.MediaFormat) (CallSession, error) {
	ssrc := rand.Uint32()
	stream, err := NewRtpStream(h.rx, h.log, h.metrics, local, remote, format, h.registry, ssrc)
	if err != nil {
		return nil, err
	}
	session := newRtpCallSession(stream)
	if h.metrics != nil {
		h.metrics.ActiveCalls.Inc()
	}
	if h.OnCallEstablished != nil {
		h.OnCallEstablished(session, CallInfo{LocalAddress: local, RemoteAddress: remote, Format: format})
	}
	return session, nil
}
