package sdp

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute is an 'a=' line value. AttrName distinguishes kinds within the
// 'a=' namespace the way Field.Key distinguishes top-level SDP lines.
type Attribute interface {
	Field
	AttrName() string
}

// RtpMap: "<fmt-id> <mime>/<rate>[/<channels>]".
type RtpMap struct {
	FormatID   int
	MimeType   string
	SampleRate int
	Channels   int // 0 if not present on the wire
}

func (a *RtpMap) Key() string      { return "a" }
func (a *RtpMap) AttrName() string { return "rtpmap" }
func (a *RtpMap) ComposeValue() string {
	if a.Channels > 0 {
		return fmt.Sprintf("rtpmap:%d %s/%d/%d", a.FormatID, a.MimeType, a.SampleRate, a.Channels)
	}
	return fmt.Sprintf("rtpmap:%d %s/%d", a.FormatID, a.MimeType, a.SampleRate)
}

// Fmtp: "<fmt-id> <params-joined-by-';'>".
type Fmtp struct {
	FormatID int
	Params   []string
}

func (a *Fmtp) Key() string      { return "a" }
func (a *Fmtp) AttrName() string { return "fmtp" }
func (a *Fmtp) ComposeValue() string {
	return fmt.Sprintf("fmtp:%d %s", a.FormatID, strings.Join(a.Params, ";"))
}

// Rtcp: "rtcp:<port>".
type Rtcp struct{ Port int }

func (a *Rtcp) Key() string            { return "a" }
func (a *Rtcp) AttrName() string       { return "rtcp" }
func (a *Rtcp) ComposeValue() string   { return fmt.Sprintf("rtcp:%d", a.Port) }

// Ptime: "ptime:<ms>".
type Ptime struct{ MS int }

func (a *Ptime) Key() string          { return "a" }
func (a *Ptime) AttrName() string     { return "ptime" }
func (a *Ptime) ComposeValue() string { return fmt.Sprintf("ptime:%d", a.MS) }

// MaxPtime: "maxptime:<ms>".
type MaxPtime struct{ MS int }

func (a *MaxPtime) Key() string          { return "a" }
func (a *MaxPtime) AttrName() string     { return "maxptime" }
func (a *MaxPtime) ComposeValue() string { return fmt.Sprintf("maxptime:%d", a.MS) }

// Transmit is the name-only sendrecv/recvonly/sendonly/inactive attribute.
type Transmit struct{ Name string }

func (a *Transmit) Key() string          { return "a" }
func (a *Transmit) AttrName() string     { return a.Name }
func (a *Transmit) ComposeValue() string { return a.Name }

func SendRecv() *Transmit { return &Transmit{Name: "sendrecv"} }
func RecvOnly() *Transmit { return &Transmit{Name: "recvonly"} }
func SendOnly() *Transmit { return &Transmit{Name: "sendonly"} }
func Inactive() *Transmit { return &Transmit{Name: "inactive"} }

// CustomAttribute is the opaque fallback for an unrecognized 'a=' name,
// distinguishing name-only attributes (Value=="" && !HasValue) from
// named-value attributes.
type CustomAttribute struct {
	Name     string
	Value    string
	HasValue bool
}

func (a *CustomAttribute) Key() string      { return "a" }
func (a *CustomAttribute) AttrName() string { return a.Name }
func (a *CustomAttribute) ComposeValue() string {
	if !a.HasValue {
		return a.Name
	}
	return a.Name + ":" + a.Value
}

// parseAttribute parses the text after "a=" into a typed Attribute.
func parseAttribute(value string) Attribute {
	name := value
	rest := ""
	if idx := strings.Index(value, ":"); idx >= 0 {
		name = value[:idx]
		rest = value[idx+1:]
	}
	switch name {
	case "rtpmap":
		return parseRtpMap(rest)
	case "fmtp":
		return parseFmtp(rest)
	case "rtcp":
		port, _ := strconv.Atoi(strings.TrimSpace(rest))
		return &Rtcp{Port: port}
	case "ptime":
		ms, _ := strconv.Atoi(strings.TrimSpace(rest))
		return &Ptime{MS: ms}
	case "maxptime":
		ms, _ := strconv.Atoi(strings.TrimSpace(rest))
		return &MaxPtime{MS: ms}
	case "sendrecv", "recvonly", "sendonly", "inactive":
		return &Transmit{Name: name}
	default:
		if rest == "" && !strings.Contains(value, ":") {
			return &CustomAttribute{Name: name, HasValue: false}
		}
		return &CustomAttribute{Name: name, Value: rest, HasValue: true}
	}
}

func parseRtpMap(rest string) *RtpMap {
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	id, _ := strconv.Atoi(fields[0])
	r := &RtpMap{FormatID: id}
	if len(fields) == 2 {
		parts := strings.Split(fields[1], "/")
		if len(parts) > 0 {
			r.MimeType = parts[0]
		}
		if len(parts) > 1 {
			r.SampleRate, _ = strconv.Atoi(parts[1])
		}
		if len(parts) > 2 {
			r.Channels, _ = strconv.Atoi(parts[2])
		}
	}
	return r
}

func parseFmtp(rest string) *Fmtp {
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	id, _ := strconv.Atoi(fields[0])
	f := &Fmtp{FormatID: id}
	if len(fields) == 2 {
		f.Params = strings.Split(fields[1], ";")
	}
	return f
}
