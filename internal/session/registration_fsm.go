package session

import (
	"context"

	"github.com/looplab/fsm"
)

// RegistrationState enumerates the client's registration lifecycle,
// grounded on original_source/pyims/sip/client.py's register() state
// dispatch and the teacher's fsm.NewFSM/fsm.Events/fsm.Callbacks shape
// (pkg/dialog/dialog.go's initFSM).
type RegistrationState int

const (
	RegistrationUnregistered RegistrationState = iota
	RegistrationRegistering
	RegistrationRegistered
	RegistrationFailed
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationUnregistered:
		return "unregistered"
	case RegistrationRegistering:
		return "registering"
	case RegistrationRegistered:
		return "registered"
	case RegistrationFailed:
		return "failed"
	default:
		return "unregistered"
	}
}

func parseRegistrationState(s string) RegistrationState {
	switch s {
	case RegistrationRegistering.String():
		return RegistrationRegistering
	case RegistrationRegistered.String():
		return RegistrationRegistered
	case RegistrationFailed.String():
		return RegistrationFailed
	default:
		return RegistrationUnregistered
	}
}

func newRegistrationFSM(onChange func(RegistrationState)) *fsm.FSM {
	return fsm.NewFSM(
		RegistrationUnregistered.String(),
		fsm.Events{
			{Name: "start", Src: []string{RegistrationUnregistered.String(), RegistrationFailed.String(), RegistrationRegistered.String()}, Dst: RegistrationRegistering.String()},
			{Name: "challenged", Src: []string{RegistrationRegistering.String()}, Dst: RegistrationRegistering.String()},
			{Name: "succeed", Src: []string{RegistrationRegistering.String()}, Dst: RegistrationRegistered.String()},
			{Name: "fail", Src: []string{RegistrationRegistering.String()}, Dst: RegistrationFailed.String()},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(parseRegistrationState(e.Dst))
				}
			},
		},
	)
}
