package sip

import (
	"strconv"
	"strings"

	"github.com/arzzra/imsphone/internal/sdp"
)

// Message is either a Request (Method, RequestURI, Version) or a Response
// (Version, StatusCode, Reason). Both carry an insertion-ordered,
// multi-valued header sequence and an optional body.
type Message struct {
	IsRequest bool

	Method     string
	RequestURI string

	StatusCode int
	Reason     string

	Version string

	Headers []Header
	Body    []byte
}

// NewRequest builds an empty Request message shell.
func NewRequest(method, requestURI string) *Message {
	return &Message{IsRequest: true, Method: method, RequestURI: requestURI, Version: Version}
}

// NewResponse builds an empty Response message shell.
func NewResponse(code int) *Message {
	return &Message{IsRequest: false, StatusCode: code, Reason: StatusText(code), Version: Version}
}

// Add appends a header, preserving insertion order (multi-valued headers
// such as Via simply appear more than once).
func (m *Message) Add(h Header) { m.Headers = append(m.Headers, h) }

// HeadersByName returns every header with the given canonical name, in
// insertion order.
func (m *Message) HeadersByName(name string) []Header {
	var out []Header
	for _, h := range m.Headers {
		if strings.EqualFold(h.HeaderName(), name) {
			out = append(out, h)
		}
	}
	return out
}

// First returns the first header with the given name, if any.
func (m *Message) First(name string) (Header, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.HeaderName(), name) {
			return h, true
		}
	}
	return nil, false
}

// ContentType returns the Content-Type header's value, or "" if absent.
func (m *Message) ContentType() string {
	if h, ok := m.First("Content-Type"); ok {
		return h.ComposeValue()
	}
	return ""
}

// DecodeBody dispatches on Content-Type: "application/sdp" delegates to the
// SDP parser and returns a *sdp.Message, any other (or absent) content type
// yields the body as an opaque string. Callers that only want SDP should
// type-assert the result rather than calling sdp.Parse directly, so an
// answer with no body or a non-SDP body takes the opaque path instead of
// being force-parsed.
func (m *Message) DecodeBody() (any, error) {
	if strings.EqualFold(m.ContentType(), "application/sdp") {
		return sdp.Parse(m.Body)
	}
	return string(m.Body), nil
}

// Compose serializes m to wire bytes: start-line, then headers in
// insertion order joined by CRLF, then CRLF CRLF, then the body. A
// Content-Length header is always emitted (0 if no body); Content-Type is
// emitted only when a ContentTypeHeader is already present in Headers.
func (m *Message) Compose() []byte {
	var b strings.Builder
	if m.IsRequest {
		b.WriteString(m.Method)
		b.WriteByte(' ')
		b.WriteString(m.RequestURI)
		b.WriteByte(' ')
		b.WriteString(m.Version)
		b.WriteString("\r\n")
	} else {
		b.WriteString(m.Version)
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(m.StatusCode))
		b.WriteByte(' ')
		b.WriteString(m.Reason)
		b.WriteString("\r\n")
	}

	wroteContentLength := false
	for _, h := range m.Headers {
		if strings.EqualFold(h.HeaderName(), "Content-Length") {
			wroteContentLength = true
		}
		b.WriteString(h.HeaderName())
		b.WriteString(": ")
		b.WriteString(h.ComposeValue())
		b.WriteString("\r\n")
	}
	if !wroteContentLength {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(m.Body)))
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	out := []byte(b.String())
	out = append(out, m.Body...)
	return out
}
