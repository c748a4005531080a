package sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arzzra/imsphone/internal/imserrors"
)

// Parse decodes an SDP message from data, 'k=value' lines separated by
// CRLF (bare LF is tolerated for robustness), empty lines ignored.
// Unknown keys are preserved verbatim via CustomField.
func Parse(data []byte) (*Message, error) {
	msg := &Message{}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("sdp: malformed line %q: %w", line, imserrors.ErrParseError)
		}
		key := line[:idx]
		value := line[idx+1:]
		field, err := parseField(key, value)
		if err != nil {
			return nil, err
		}
		msg.Add(field)
	}
	return msg, nil
}

func parseField(key, value string) (Field, error) {
	switch key {
	case "v":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("sdp: malformed v= line: %w", imserrors.ErrParseError)
		}
		return &Version{Value: n}, nil
	case "s":
		return &SessionName{Value: value}, nil
	case "o":
		return parseOriginator(value)
	case "c":
		return parseConnectionInformation(value)
	case "m":
		return parseMediaDescription(value)
	case "t":
		return parseTimeDescription(value)
	case "b":
		return parseBandwidth(value)
	case "a":
		return parseAttribute(value), nil
	default:
		return &CustomField{KeyName: key, Value: value}, nil
	}
}

func parseOriginator(value string) (*Originator, error) {
	parts := strings.Fields(value)
	if len(parts) != 6 {
		return nil, fmt.Errorf("sdp: malformed o= line %q: %w", value, imserrors.ErrParseError)
	}
	return &Originator{
		Username: parts[0], SessionID: parts[1], SessionVersion: parts[2],
		NetType: parts[3], AddrType: parts[4], Address: parts[5],
	}, nil
}

func parseConnectionInformation(value string) (*ConnectionInformation, error) {
	parts := strings.Fields(value)
	if len(parts) != 3 {
		return nil, fmt.Errorf("sdp: malformed c= line %q: %w", value, imserrors.ErrParseError)
	}
	return &ConnectionInformation{NetType: parts[0], AddrType: parts[1], Address: parts[2]}, nil
}

func parseMediaDescription(value string) (*MediaDescription, error) {
	parts := strings.Fields(value)
	if len(parts) < 4 {
		return nil, fmt.Errorf("sdp: malformed m= line %q: %w", value, imserrors.ErrParseError)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("sdp: malformed m= port %q: %w", parts[1], imserrors.ErrParseError)
	}
	var formats []int
	for _, f := range parts[3:] {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("sdp: malformed m= format %q: %w", f, imserrors.ErrParseError)
		}
		formats = append(formats, id)
	}
	return &MediaDescription{Media: parts[0], Port: port, Protocol: parts[2], Formats: formats}, nil
}

func parseTimeDescription(value string) (*TimeDescription, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return nil, fmt.Errorf("sdp: malformed t= line %q: %w", value, imserrors.ErrParseError)
	}
	start, _ := strconv.Atoi(parts[0])
	stop, _ := strconv.Atoi(parts[1])
	return &TimeDescription{Start: start, Stop: stop}, nil
}

func parseBandwidth(value string) (*BandwidthInformation, error) {
	idx := strings.Index(value, ":")
	if idx < 0 {
		return nil, fmt.Errorf("sdp: malformed b= line %q: %w", value, imserrors.ErrParseError)
	}
	v, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("sdp: malformed b= value %q: %w", value, imserrors.ErrParseError)
	}
	return &BandwidthInformation{Modifier: value[:idx], Value: v}, nil
}
