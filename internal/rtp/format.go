// Package rtp implements the RTP packet codec, the PCMU/PCMA sample codecs,
// and the process-constructed media format registry (component F).
//
// Grounded on original_source/pyims/common/media_formats.py and
// rtp/codecs.py; packet (un)marshaling wraps github.com/pion/rtp, whose
// Header/Packet structurally match RFC 3550's fixed 12-byte layout, while
// sequence/timestamp advancement and format-registry semantics are ours per
// spec.md's explicit invariants.
package rtp

// MediaType enumerates the high-level kind of media a format encodes; only
// audio is in scope.
type MediaType int

const (
	MediaTypeAudio MediaType = iota
)

// MediaFormat describes one negotiable audio codec.
type MediaFormat struct {
	Name         string
	Type         MediaType
	Bitrate      int
	SampleRate   int
	SampleWidth  int // bytes per linear-PCM sample consumed by the encoder
	Channels     int
}

// Built-in formats. Per original_source/pyims/common/media_formats.py both
// PCMU and PCMA carry SampleWidth=2, an unexplained-but-preserved quirk
// (see SPEC_FULL.md §9): encoders consume 16-bit linear PCM and emit one
// encoded byte per sample, not the RFC 3551-correct 8-bit width.
var (
	PCMU = MediaFormat{Name: "PCMU", Type: MediaTypeAudio, Bitrate: 64000, SampleRate: 8000, SampleWidth: 2, Channels: 1}
	PCMA = MediaFormat{Name: "PCMA", Type: MediaTypeAudio, Bitrate: 64000, SampleRate: 8000, SampleWidth: 2, Channels: 1}
)

// Encoder turns linear PCM samples into an encoded payload.
type Encoder func(linearPCM []byte) []byte

// Decoder turns an encoded payload back into linear PCM samples.
type Decoder func(payload []byte) []byte

type registration struct {
	format  MediaFormat
	id      uint8
	encode  Encoder
	decode  Decoder
}

// Registry is an explicitly constructed, immutable (after construction) format
// table mapping MediaFormat <-> RTP payload-type id <-> encoder/decoder
// constructors. Per SPEC_FULL.md §9 / spec.md §9 design notes, this
// replaces the original's package-level mutable registry with an
// explicitly constructed value passed around by the application.
type Registry struct {
	byID   map[uint8]registration
	byName map[string]registration
	order  []registration
}

// NewDefaultRegistry builds the registry seeded with PCMU (id 0) and PCMA
// (id 8), matching original_source/pyims/rtp/codecs.py's RTP_MEDIA_FORMATS
// seed order. PCMU is registered first, making it the default tie-breaker
// for "first mutually supported format" negotiation (SPEC_FULL.md §9).
func NewDefaultRegistry() *Registry {
	r := &Registry{byID: map[uint8]registration{}, byName: map[string]registration{}}
	r.register(PCMU, 0, EncodeULaw, DecodeULaw)
	r.register(PCMA, 8, EncodeALaw, DecodeALaw)
	return r
}

func (r *Registry) register(format MediaFormat, id uint8, enc Encoder, dec Decoder) {
	reg := registration{format: format, id: id, encode: enc, decode: dec}
	r.byID[id] = reg
	r.byName[format.Name] = reg
	r.order = append(r.order, reg)
}

// FormatByID resolves a payload-type id to a MediaFormat. ok is false for
// an unregistered id (the caller must drop the packet, per spec.md §4.I,
// rather than erroring at parse time).
func (r *Registry) FormatByID(id uint8) (MediaFormat, bool) {
	reg, ok := r.byID[id]
	return reg.format, ok
}

// IDByFormat resolves a MediaFormat to its registered payload-type id.
func (r *Registry) IDByFormat(f MediaFormat) (uint8, bool) {
	reg, ok := r.byName[f.Name]
	return reg.id, ok
}

// Codecs resolves the encoder/decoder pair for a format.
func (r *Registry) Codecs(f MediaFormat) (Encoder, Decoder, bool) {
	reg, ok := r.byName[f.Name]
	if !ok {
		return nil, nil, false
	}
	return reg.encode, reg.decode, true
}

// Ordered returns the registry's formats in registration order, used by
// offer/answer negotiation to pick the first mutually supported format.
func (r *Registry) Ordered() []MediaFormat {
	out := make([]MediaFormat, 0, len(r.order))
	for _, reg := range r.order {
		out = append(out, reg.format)
	}
	return out
}

// FirstCommon returns the first format in local (preference order) that
// also appears in remote, per spec.md §4.E's offer/answer contract: "the
// answerer selects the first format present in both local capability and
// remote offer (priority = answerer's preference)".
func FirstCommon(local, remote []MediaFormat) (MediaFormat, bool) {
	for _, l := range local {
		for _, r := range remote {
			if l.Name == r.Name {
				return l, true
			}
		}
	}
	return MediaFormat{}, false
}
