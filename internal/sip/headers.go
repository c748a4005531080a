package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// Header is implemented by every concrete header kind plus CustomHeader.
// Dispatch on parse/compose is by HeaderName(), a tagged union
// (SPEC_FULL.md / spec.md §9 "polymorphic header/body/attribute
// taxonomies"), not by Go type switch outside the parser table.
type Header interface {
	HeaderName() string
	ComposeValue() string
}

// Param is one ordered ";key=value" or ";key" header parameter.
type Param struct {
	Key   string
	Value string // empty and HasValue=false for a bare flag param
	HasValue bool
}

func formatParams(params []Param) string {
	var b strings.Builder
	for _, p := range params {
		b.WriteByte(';')
		b.WriteString(p.Key)
		if p.HasValue {
			b.WriteByte('=')
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// SenderSendeeHeader models From and To: [display] <uri>[;tag=...] plus
// any other parameters, grounded on
// original_source/pyims/sip/headers.py's SenderSendeeHeader.
type SenderSendeeHeader struct {
	name    string // "From" or "To"
	Display string
	URI     string
	Tag     string
	Params  []Param
}

func NewFrom(display, uri, tag string) *SenderSendeeHeader {
	return &SenderSendeeHeader{name: "From", Display: display, URI: uri, Tag: tag}
}
func NewTo(display, uri, tag string) *SenderSendeeHeader {
	return &SenderSendeeHeader{name: "To", Display: display, URI: uri, Tag: tag}
}

func (h *SenderSendeeHeader) HeaderName() string { return h.name }
func (h *SenderSendeeHeader) ComposeValue() string {
	var b strings.Builder
	if h.Display != "" {
		b.WriteString(h.Display)
		b.WriteByte(' ')
	}
	b.WriteByte('<')
	b.WriteString(h.URI)
	b.WriteByte('>')
	if h.Tag != "" {
		b.WriteString(";tag=")
		b.WriteString(h.Tag)
	}
	b.WriteString(formatParams(h.Params))
	return b.String()
}

// ContactHeader carries the transport parameter and opaque feature tags
// (SPEC_FULL.md §9 "Contact feature tags"), grounded on
// original_source/pyims/sip/client.py's _generate_our_contact().
type ContactHeader struct {
	Display string
	URI     string
	Params  []Param
}

func (h *ContactHeader) HeaderName() string { return "Contact" }
func (h *ContactHeader) ComposeValue() string {
	var b strings.Builder
	if h.Display != "" {
		b.WriteString(h.Display)
		b.WriteByte(' ')
	}
	b.WriteByte('<')
	b.WriteString(h.URI)
	b.WriteByte('>')
	b.WriteString(formatParams(h.Params))
	return b.String()
}

// CSeqHeader appears exactly once per message: {sequence, method}.
type CSeqHeader struct {
	Sequence uint32
	Method   string
}

func (h *CSeqHeader) HeaderName() string   { return "CSeq" }
func (h *CSeqHeader) ComposeValue() string { return fmt.Sprintf("%d %s", h.Sequence, h.Method) }

// CallIDHeader is the dialog's Call-ID.
type CallIDHeader struct{ Value string }

func (h *CallIDHeader) HeaderName() string   { return "Call-ID" }
func (h *CallIDHeader) ComposeValue() string { return h.Value }

// ContentLengthHeader. Always emitted by the composer (0 if no body).
type ContentLengthHeader struct{ Value int }

func (h *ContentLengthHeader) HeaderName() string   { return "Content-Length" }
func (h *ContentLengthHeader) ComposeValue() string { return strconv.Itoa(h.Value) }

// ContentTypeHeader, emitted only when a typed body is present.
type ContentTypeHeader struct{ Value string }

func (h *ContentTypeHeader) HeaderName() string   { return "Content-Type" }
func (h *ContentTypeHeader) ComposeValue() string { return h.Value }

// MaxForwardsHeader.
type MaxForwardsHeader struct{ Value int }

func (h *MaxForwardsHeader) HeaderName() string   { return "Max-Forwards" }
func (h *MaxForwardsHeader) ComposeValue() string { return strconv.Itoa(h.Value) }

// ExpiresHeader.
type ExpiresHeader struct{ Value int }

func (h *ExpiresHeader) HeaderName() string   { return "Expires" }
func (h *ExpiresHeader) ComposeValue() string { return strconv.Itoa(h.Value) }

// ViaHeader: the client prepends its own Via on outbound requests, and
// multiple Via headers stack in insertion order (SPEC_FULL.md §9 "Ordered
// Via/Record-Route stacks").
type ViaHeader struct {
	Protocol  string // "SIP"; ComposeValue always writes "SIP/2.0/<Transport>"
	Transport string // "TCP" | "UDP"
	Host      string
	Port      int
	Rport     *int
	Branch    string
	Params    []Param
}

func (h *ViaHeader) HeaderName() string { return "Via" }
func (h *ViaHeader) ComposeValue() string {
	var b strings.Builder
	b.WriteString(Version)
	b.WriteByte('/')
	b.WriteString(h.Transport)
	b.WriteByte(' ')
	b.WriteString(h.Host)
	if h.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(h.Port))
	}
	if h.Rport != nil {
		b.WriteString(";rport=")
		b.WriteString(strconv.Itoa(*h.Rport))
	}
	if h.Branch != "" {
		b.WriteString(";branch=")
		b.WriteString(h.Branch)
	}
	b.WriteString(formatParams(h.Params))
	return b.String()
}

// RecordRouteHeader, kept as an ordered sequence across multiple header
// instances (SPEC_FULL.md §9).
type RecordRouteHeader struct {
	URI    string
	Params []Param
}

func (h *RecordRouteHeader) HeaderName() string { return "Record-Route" }
func (h *RecordRouteHeader) ComposeValue() string {
	return "<" + h.URI + ">" + formatParams(h.Params)
}

// AuthHeader models both Authorization and WWW-Authenticate: {scheme,
// realm, nonce, algorithm, qop, nc?, cnonce?, response?, username?, uri?,
// extra-params}.
type AuthHeader struct {
	name      string // "Authorization" or "WWW-Authenticate"
	Scheme    string
	Username  string
	Realm     string
	Nonce     string
	URI       string
	Response  string
	Algorithm string
	Qop       string
	NC        string
	CNonce    string
	Extra     []Param
}

func NewAuthorization() *AuthHeader       { return &AuthHeader{name: "Authorization", Scheme: AuthSchemeDigest} }
func NewWWWAuthenticate() *AuthHeader     { return &AuthHeader{name: "WWW-Authenticate", Scheme: AuthSchemeDigest} }

func (h *AuthHeader) HeaderName() string { return h.name }
func (h *AuthHeader) ComposeValue() string {
	var parts []string
	add := func(key, val string) {
		if val != "" {
			parts = append(parts, fmt.Sprintf(`%s="%s"`, key, val))
		}
	}
	if h.Username != "" {
		add("username", h.Username)
	}
	add("realm", h.Realm)
	add("nonce", h.Nonce)
	if h.URI != "" {
		add("uri", h.URI)
	}
	if h.name == "Authorization" {
		parts = append(parts, fmt.Sprintf(`response="%s"`, h.Response))
	}
	if h.Algorithm != "" {
		parts = append(parts, "algorithm="+h.Algorithm)
	}
	if h.Qop != "" {
		parts = append(parts, "qop="+h.Qop)
	}
	if h.NC != "" {
		parts = append(parts, "nc="+h.NC)
	}
	if h.CNonce != "" {
		add("cnonce", h.CNonce)
	}
	for _, p := range h.Extra {
		if p.HasValue {
			parts = append(parts, p.Key+"="+p.Value)
		} else {
			parts = append(parts, p.Key)
		}
	}
	return h.Scheme + " " + strings.Join(parts, ", ")
}

// CustomHeader is the opaque fallback for any header name the parser does
// not recognize; it preserves the exact spelling seen on the wire.
type CustomHeader struct {
	Name  string
	Value string
}

func (h *CustomHeader) HeaderName() string   { return h.Name }
func (h *CustomHeader) ComposeValue() string { return h.Value }
