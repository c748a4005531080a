package call

import (
	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/socket"
)

// RtpStream binds one negotiated MediaFormat to a UDP socket: it encodes
// linear PCM pulled from an attached ReadableStream into RTP packets sent to
// remote, and decodes inbound RTP into linear PCM pushed to an attached
// WritableStream, advancing sequence number mod 2^16 and timestamp mod
// 2^32, grounded on original_source/pyims/sip/rtp_call.py's RtpCallSession
// and spec.md §4.F/§4.I.
type RtpStream struct {
	sock     *socket.UDPSocket
	registry *rtp.Registry
	format   rtp.MediaFormat
	payload  uint8
	ssrc     uint32
	remote   socket.Address

	seq       uint16
	timestamp uint32

	log     logging.Logger
	metrics *metrics.Metrics

	sink WritableStream
}

// NewRtpStream binds a UDP socket at local and prepares to exchange RTP with
// remote using format, looking up its payload-type id in registry.
func NewRtpStream(rx *reactor.Reactor, log logging.Logger, m *metrics.Metrics, local, remote socket.Address, format rtp.MediaFormat, registry *rtp.Registry, ssrc uint32) (*RtpStream, error) {
	payload, ok := registry.IDByFormat(format)
	if !ok {
		return nil, imserrors.ErrUnsupportedFormat
	}
	sock, err := socket.NewUDPSocket(rx, log, local.String())
	if err != nil {
		return nil, err
	}
	s := &RtpStream{
		sock:     sock,
		registry: registry,
		format:   format,
		payload:  payload,
		ssrc:     ssrc,
		remote:   remote,
		log:      log,
		metrics:  m,
	}
	sock.OnData = s.onDatagram
	return s, nil
}

// Start enables inbound RTP delivery.
func (s *RtpStream) Start() { s.sock.StartRead() }

// AttachSink installs the WritableStream that decoded linear PCM is pushed
// to; every received packet of the negotiated format is decoded and
// written to it.
func (s *RtpStream) AttachSink(sink WritableStream) { s.sink = sink }

// AttachSource begins pulling linear PCM from src, encoding each chunk and
// sending it as one RTP packet. A nil chunk (end-of-stream) is ignored;
// RTP streams do not terminate on source exhaustion.
func (s *RtpStream) AttachSource(src ReadableStream) {
	src.StartRead(s.onSourceData)
}

func (s *RtpStream) onSourceData(linearPCM []byte) {
	if linearPCM == nil {
		return
	}
	encode, _, ok := s.registry.Codecs(s.format)
	if !ok {
		return
	}
	payload := encode(linearPCM)
	pkt := rtp.Packet{
		Marker:         false,
		PayloadType:    s.payload,
		SequenceNumber: s.seq,
		Timestamp:      s.timestamp,
		SSRC:           s.ssrc,
		Payload:        payload,
	}
	s.seq++ // wraps mod 2^16 via uint16 overflow
	s.timestamp += uint32(len(payload)) // wraps mod 2^32 via uint32 overflow

	data, err := pkt.Compose()
	if err != nil {
		s.log.Warn("rtp: failed to compose outbound packet", logging.Err(err))
		return
	}
	s.sock.Write(s.remote, data)
	if s.metrics != nil {
		s.metrics.RTPPacketsSent.Inc()
	}
}

func (s *RtpStream) onDatagram(dg socket.UDPDatagram) {
	pkt, err := rtp.Parse(dg.Payload)
	if err != nil {
		s.log.Warn("rtp: dropping unparseable packet", logging.Err(err))
		if s.metrics != nil {
			s.metrics.RTPPacketsDropped.Inc()
		}
		return
	}
	gotFormat, ok := s.registry.FormatByID(pkt.PayloadType)
	if !ok || gotFormat.Name != s.format.Name {
		if s.metrics != nil {
			s.metrics.RTPPacketsDropped.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RTPPacketsReceived.Inc()
	}
	if s.sink == nil {
		return
	}
	_, decode, ok := s.registry.Codecs(s.format)
	if !ok {
		return
	}
	s.sink.Write(decode(pkt.Payload))
}

// LocalPort returns the bound UDP port, used to populate the SDP media
// description's port field.
func (s *RtpStream) LocalPort() (int, error) { return s.sock.LocalPort() }

// Close releases the underlying socket.
func (s *RtpStream) Close() { s.sock.Close() }
