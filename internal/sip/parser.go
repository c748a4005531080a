package sip

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arzzra/imsphone/internal/imserrors"
)

// ErrNeedMoreBytes is returned by Parse when buf does not yet contain a
// complete message; the caller should wait for more bytes and retry with
// the same start index.
var ErrNeedMoreBytes = errors.New("sip: need more bytes")

// Parse attempts to decode one Message starting at buf[start:]. On
// success it returns the message and the number of bytes consumed from
// buf[start:] (not from the start of buf) so that callers can advance a
// reassembly buffer; parsing is restartable across partial buffers.
func Parse(buf []byte, start int) (*Message, int, error) {
	data := buf[start:]
	headerEnd := indexCRLFCRLF(data)
	if headerEnd < 0 {
		return nil, 0, ErrNeedMoreBytes
	}

	headerBlock := string(data[:headerEnd])
	lines := strings.Split(headerBlock, "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, 0, fmt.Errorf("sip: empty start line: %w", imserrors.ErrParseError)
	}

	msg, err := parseStartLine(lines[0])
	if err != nil {
		return nil, 0, err
	}

	rawHeaders, err := foldHeaderLines(lines[1:])
	if err != nil {
		return nil, 0, err
	}
	for _, rh := range rawHeaders {
		msg.Add(parseHeader(rh.name, rh.value))
	}

	contentLength := 0
	if h, ok := msg.First("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(h.ComposeValue()))
		if err != nil {
			return nil, 0, fmt.Errorf("sip: invalid Content-Length: %w", imserrors.ErrParseError)
		}
		contentLength = n
	}

	bodyStart := headerEnd + 4
	totalNeeded := bodyStart + contentLength
	if len(data) < totalNeeded {
		return nil, 0, ErrNeedMoreBytes
	}
	msg.Body = append([]byte(nil), data[bodyStart:totalNeeded]...)

	return msg, totalNeeded, nil
}

func indexCRLFCRLF(data []byte) int {
	return strings.Index(string(data), "\r\n\r\n")
}

type rawHeader struct{ name, value string }

// foldHeaderLines splits "Name: value" lines; folded (leading-whitespace
// continuation) lines are rejected, per spec.md §4.D.
func foldHeaderLines(lines []string) ([]rawHeader, error) {
	var out []rawHeader
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, fmt.Errorf("sip: folded header lines are not supported: %w", imserrors.ErrParseError)
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("sip: malformed header line %q: %w", line, imserrors.ErrParseError)
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		out = append(out, rawHeader{name: name, value: value})
	}
	return out, nil
}

func parseStartLine(line string) (*Message, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("sip: malformed start line %q: %w", line, imserrors.ErrParseError)
	}
	if IsKnownMethod(parts[0]) {
		return &Message{IsRequest: true, Method: parts[0], RequestURI: parts[1], Version: parts[2]}, nil
	}
	if parts[0] == Version {
		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("sip: malformed status code %q: %w", parts[1], imserrors.ErrParseError)
		}
		return &Message{IsRequest: false, Version: parts[0], StatusCode: code, Reason: parts[2]}, nil
	}
	return nil, fmt.Errorf("sip: unrecognized start line %q: %w", line, imserrors.ErrParseError)
}

var (
	senderSendeeRe = regexp.MustCompile(`^(?:(.+)\s)?<([^>]+)>(.*)$`)
	viaRe          = regexp.MustCompile(`^SIP/2\.0/(\S+)\s+([^;]+)(.*)$`)
	authParamRe    = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^,\s]+))`)
)

// parseHeader dispatches a raw "Name: value" pair into a typed Header, or
// CustomHeader when name is unrecognized. Dispatch is a static table from
// canonical name to a parse function, per SPEC_FULL.md's "tagged union ...
// dispatch by tag" design note.
func parseHeader(name, value string) Header {
	switch canonicalHeaderName(name) {
	case "From":
		return parseSenderSendee("From", value)
	case "To":
		return parseSenderSendee("To", value)
	case "Contact":
		return parseContact(value)
	case "CSeq":
		return parseCSeq(value)
	case "Call-ID":
		return &CallIDHeader{Value: value}
	case "Content-Length":
		n, _ := strconv.Atoi(strings.TrimSpace(value))
		return &ContentLengthHeader{Value: n}
	case "Content-Type":
		return &ContentTypeHeader{Value: value}
	case "Max-Forwards":
		n, _ := strconv.Atoi(strings.TrimSpace(value))
		return &MaxForwardsHeader{Value: n}
	case "Expires":
		n, _ := strconv.Atoi(strings.TrimSpace(value))
		return &ExpiresHeader{Value: n}
	case "Via":
		return parseVia(value)
	case "Record-Route":
		return parseRecordRoute(value)
	case "Authorization":
		return parseAuth("Authorization", value)
	case "WWW-Authenticate":
		return parseAuth("WWW-Authenticate", value)
	default:
		return &CustomHeader{Name: name, Value: value}
	}
}

// canonicalHeaderName maps case-insensitive wire names (and the common
// compact forms) to the canonical spellings used for composition.
func canonicalHeaderName(name string) string {
	switch strings.ToLower(name) {
	case "from", "f":
		return "From"
	case "to", "t":
		return "To"
	case "contact", "m":
		return "Contact"
	case "cseq":
		return "CSeq"
	case "call-id", "i":
		return "Call-ID"
	case "content-length", "l":
		return "Content-Length"
	case "content-type", "c":
		return "Content-Type"
	case "max-forwards":
		return "Max-Forwards"
	case "expires":
		return "Expires"
	case "via", "v":
		return "Via"
	case "record-route":
		return "Record-Route"
	case "authorization":
		return "Authorization"
	case "www-authenticate":
		return "WWW-Authenticate"
	default:
		return name
	}
}

func parseSenderSendee(kind, value string) *SenderSendeeHeader {
	m := senderSendeeRe.FindStringSubmatch(value)
	if m == nil {
		return &SenderSendeeHeader{name: kind, URI: value}
	}
	h := &SenderSendeeHeader{name: kind, Display: strings.TrimSpace(m[1]), URI: m[2]}
	for _, p := range parseParams(m[3]) {
		if strings.EqualFold(p.Key, "tag") {
			h.Tag = p.Value
			continue
		}
		h.Params = append(h.Params, p)
	}
	return h
}

func parseContact(value string) *ContactHeader {
	m := senderSendeeRe.FindStringSubmatch(value)
	if m == nil {
		return &ContactHeader{URI: value}
	}
	h := &ContactHeader{Display: strings.TrimSpace(m[1]), URI: m[2]}
	h.Params = parseParams(m[3])
	return h
}

func parseParams(rest string) []Param {
	var out []Param
	for _, part := range strings.Split(rest, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			out = append(out, Param{Key: part[:idx], Value: part[idx+1:], HasValue: true})
		} else {
			out = append(out, Param{Key: part})
		}
	}
	return out
}

func parseCSeq(value string) *CSeqHeader {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	seq, _ := strconv.ParseUint(parts[0], 10, 32)
	method := ""
	if len(parts) == 2 {
		method = strings.TrimSpace(parts[1])
	}
	return &CSeqHeader{Sequence: uint32(seq), Method: method}
}

func parseVia(value string) *ViaHeader {
	m := viaRe.FindStringSubmatch(value)
	if m == nil {
		return &ViaHeader{Protocol: "SIP", Transport: "UDP", Host: value}
	}
	h := &ViaHeader{Protocol: "SIP", Transport: m[1]}
	hostport := strings.TrimSpace(m[2])
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		h.Host = hostport[:idx]
		if port, err := strconv.Atoi(hostport[idx+1:]); err == nil {
			h.Port = port
		}
	} else {
		h.Host = hostport
	}
	for _, p := range parseParams(m[3]) {
		switch strings.ToLower(p.Key) {
		case "branch":
			h.Branch = p.Value
		case "rport":
			if p.HasValue {
				if v, err := strconv.Atoi(p.Value); err == nil {
					h.Rport = &v
				}
			} else {
				zero := 0
				h.Rport = &zero
			}
		default:
			h.Params = append(h.Params, p)
		}
	}
	return h
}

func parseRecordRoute(value string) *RecordRouteHeader {
	m := senderSendeeRe.FindStringSubmatch(value)
	if m == nil {
		return &RecordRouteHeader{URI: value}
	}
	return &RecordRouteHeader{URI: m[2], Params: parseParams(m[3])}
}

func parseAuth(name, value string) *AuthHeader {
	h := &AuthHeader{name: name}
	fields := strings.SplitN(value, " ", 2)
	h.Scheme = fields[0]
	rest := ""
	if len(fields) == 2 {
		rest = fields[1]
	}
	for _, m := range authParamRe.FindAllStringSubmatch(rest, -1) {
		key := m[1]
		val := m[2]
		if val == "" {
			val = m[3]
		}
		switch strings.ToLower(key) {
		case "username":
			h.Username = val
		case "realm":
			h.Realm = val
		case "nonce":
			h.Nonce = val
		case "uri":
			h.URI = val
		case "response":
			h.Response = val
		case "algorithm":
			h.Algorithm = val
		case "qop":
			h.Qop = val
		case "nc":
			h.NC = val
		case "cnonce":
			h.CNonce = val
		default:
			h.Extra = append(h.Extra, Param{Key: key, Value: val, HasValue: true})
		}
	}
	return h
}
