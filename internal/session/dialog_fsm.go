package session

import (
	"context"

	"github.com/looplab/fsm"
)

// DialogState enumerates a single call dialog's lifecycle. Adapted
// directly from the teacher's DialogState/initFSM
// (pkg/dialog/dialog.go), generalized from its REFER/PRACK-aware dialog
// to the spec's simpler INVITE/ACK/BYE-only call model.
type DialogState int

const (
	DialogInit DialogState = iota
	DialogTrying
	DialogRinging
	DialogEstablished
	DialogTerminated
)

func (s DialogState) String() string {
	switch s {
	case DialogTrying:
		return "trying"
	case DialogRinging:
		return "ringing"
	case DialogEstablished:
		return "established"
	case DialogTerminated:
		return "terminated"
	default:
		return "init"
	}
}

func parseDialogState(s string) DialogState {
	switch s {
	case DialogTrying.String():
		return DialogTrying
	case DialogRinging.String():
		return DialogRinging
	case DialogEstablished.String():
		return DialogEstablished
	case DialogTerminated.String():
		return DialogTerminated
	default:
		return DialogInit
	}
}

func newDialogFSM(onChange func(DialogState)) *fsm.FSM {
	return fsm.NewFSM(
		DialogInit.String(),
		fsm.Events{
			// UAC (outbound call)
			{Name: "invite", Src: []string{DialogInit.String()}, Dst: DialogTrying.String()},
			{Name: "ringing", Src: []string{DialogTrying.String()}, Dst: DialogRinging.String()},
			{Name: "answered", Src: []string{DialogTrying.String(), DialogRinging.String()}, Dst: DialogEstablished.String()},
			{Name: "rejected", Src: []string{DialogTrying.String(), DialogRinging.String()}, Dst: DialogTerminated.String()},

			// UAS (inbound call)
			{Name: "incoming", Src: []string{DialogInit.String()}, Dst: DialogTrying.String()},
			{Name: "accept", Src: []string{DialogTrying.String(), DialogRinging.String()}, Dst: DialogEstablished.String()},
			{Name: "reject", Src: []string{DialogTrying.String(), DialogRinging.String()}, Dst: DialogTerminated.String()},

			// Shared
			{Name: "bye", Src: []string{DialogEstablished.String()}, Dst: DialogTerminated.String()},
			{Name: "terminate", Src: []string{DialogTrying.String(), DialogRinging.String(), DialogEstablished.String()}, Dst: DialogTerminated.String()},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(parseDialogState(e.Dst))
				}
			},
		},
	)
}
