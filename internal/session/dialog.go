package session

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"github.com/arzzra/imsphone/internal/call"
	"github.com/arzzra/imsphone/internal/sip"
)

// Dialog is one negotiated call: its SIP identifiers, the headers needed to
// construct ACK/BYE consistently with the INVITE transaction, its media
// session, and its lifecycle FSM.
type Dialog struct {
	mu sync.Mutex

	CallID    string
	LocalTag  string
	RemoteTag string
	RemoteURI string
	Branch    string // shared by INVITE and its ACK, per spec.md §4.H

	localCSeq uint32

	// RemoteVia/RemoteRecordRoute hold an inbound INVITE's Via and
	// Record-Route stacks in received order (SPEC_FULL.md §9 "ordered
	// Via/Record-Route stacks"); the responses to that INVITE echo the same
	// headers from the request.
	RemoteVia         []*sip.ViaHeader
	RemoteRecordRoute []*sip.RecordRouteHeader

	Session call.CallSession

	fsm   *fsm.FSM
	State DialogState
}

func newDialog(callID, localTag string) *Dialog {
	d := &Dialog{CallID: callID, LocalTag: localTag}
	d.fsm = newDialogFSM(func(s DialogState) {
		d.mu.Lock()
		d.State = s
		d.mu.Unlock()
	})
	return d
}

func (d *Dialog) fire(event string) {
	_ = d.fsm.Event(context.Background(), event)
}

// nextCSeq returns the next outbound CSeq for this dialog, starting at 2
// (the INVITE itself is CSeq 1), matching spec.md §4.H's "BYE sends
// CSeq=2".
func (d *Dialog) nextCSeq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.localCSeq < 1 {
		d.localCSeq = 1
	}
	d.localCSeq++
	return d.localCSeq
}
