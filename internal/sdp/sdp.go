// Package sdp implements the Session Description Protocol codec: an
// insertion-ordered, multi-valued field/attribute taxonomy with a Custom
// fallback, grounded on original_source/pyims/sdp/{fields,attributes,
// message,parser}.py and spec.md §4.E.
package sdp

import (
	"fmt"
	"strconv"
	"strings"
)

// NetworkType / AddressType tokens, per
// original_source/pyims/sdp/sdp_types.py.
const (
	NetworkTypeIN  = "IN"
	AddressTypeIPv4 = "IP4"
)

// MediaProtocol tokens.
const ProtocolRTPAVP = "RTP/AVP"

// Field is implemented by every concrete SDP field kind plus CustomField.
// Dispatch is by Key() (the single-letter SDP line tag), matching the
// tagged-union design note shared with the SIP header taxonomy.
type Field interface {
	Key() string
	ComposeValue() string
}

// Message is an insertion-ordered, multi-valued sequence of fields. The
// `a=` attribute sub-taxonomy lives in attributes.go but attributes are
// represented as Field values with Key()=="a", so ordering among them is
// preserved the same way as any other repeatable field.
type Message struct {
	Fields []Field
}

// Add appends a field, preserving insertion order.
func (m *Message) Add(f Field) { m.Fields = append(m.Fields, f) }

// FieldsByKey returns every field with the given single-letter key, in
// insertion order.
func (m *Message) FieldsByKey(key string) []Field {
	var out []Field
	for _, f := range m.Fields {
		if f.Key() == key {
			out = append(out, f)
		}
	}
	return out
}

// First returns the first field with the given key.
func (m *Message) First(key string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Key() == key {
			return f, true
		}
	}
	return nil, false
}

// Attributes returns every 'a=' attribute whose AttrName() equals attrName
// exactly (e.g. "rtpmap", "sendrecv").
func (m *Message) Attributes(attrName string) []Attribute {
	var out []Attribute
	for _, f := range m.Fields {
		if f.Key() != "a" {
			continue
		}
		if a, ok := f.(Attribute); ok && a.AttrName() == attrName {
			out = append(out, a)
		}
	}
	return out
}

// Compose joins "key=value" per field (including every instance of a
// repeatable field) by CRLF, matching
// original_source/pyims/sdp/message.py's compose().
func (m *Message) Compose() []byte {
	var b strings.Builder
	for _, f := range m.Fields {
		b.WriteString(f.Key())
		b.WriteByte('=')
		b.WriteString(f.ComposeValue())
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// Version ('v').
type Version struct{ Value int }

func (f *Version) Key() string          { return "v" }
func (f *Version) ComposeValue() string { return strconv.Itoa(f.Value) }

// SessionName ('s').
type SessionName struct{ Value string }

func (f *SessionName) Key() string          { return "s" }
func (f *SessionName) ComposeValue() string { return f.Value }

// Originator ('o').
type Originator struct {
	Username       string
	SessionID      string
	SessionVersion string
	NetType        string
	AddrType       string
	Address        string
}

func (f *Originator) Key() string { return "o" }
func (f *Originator) ComposeValue() string {
	return fmt.Sprintf("%s %s %s %s %s %s", f.Username, f.SessionID, f.SessionVersion, f.NetType, f.AddrType, f.Address)
}

// ConnectionInformation ('c').
type ConnectionInformation struct {
	NetType  string
	AddrType string
	Address  string
}

func (f *ConnectionInformation) Key() string { return "c" }
func (f *ConnectionInformation) ComposeValue() string {
	return fmt.Sprintf("%s %s %s", f.NetType, f.AddrType, f.Address)
}

// MediaDescription ('m'). Formats is a sequence of RTP payload-type IDs.
type MediaDescription struct {
	Media    string // "audio"
	Port     int
	Protocol string // "RTP/AVP"
	Formats  []int
}

func (f *MediaDescription) Key() string { return "m" }
func (f *MediaDescription) ComposeValue() string {
	parts := make([]string, len(f.Formats))
	for i, id := range f.Formats {
		parts[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("%s %d %s %s", f.Media, f.Port, f.Protocol, strings.Join(parts, " "))
}

// TimeDescription ('t').
type TimeDescription struct{ Start, Stop int }

func (f *TimeDescription) Key() string          { return "t" }
func (f *TimeDescription) ComposeValue() string { return fmt.Sprintf("%d %d", f.Start, f.Stop) }

// BandwidthInformation ('b'), may repeat.
type BandwidthInformation struct {
	Modifier string
	Value    int
}

func (f *BandwidthInformation) Key() string          { return "b" }
func (f *BandwidthInformation) ComposeValue() string { return fmt.Sprintf("%s:%d", f.Modifier, f.Value) }

// CustomField is the opaque fallback for unrecognized single-letter keys;
// it preserves the exact value seen on the wire.
type CustomField struct {
	KeyName string
	Value   string
}

func (f *CustomField) Key() string          { return f.KeyName }
func (f *CustomField) ComposeValue() string { return f.Value }
