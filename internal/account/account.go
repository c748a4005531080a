// Package account holds the immutable subscriber identity and SIM secrets
// used by AKA authentication, grounded on
// original_source/pyims/sip/auth.py's Account class.
package account

import (
	"encoding/hex"
	"fmt"

	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/milenage"
)

// Account is {MCC, MNC, IMSI, Ki, OP or OPc, AMF}, created at startup and
// immutable thereafter (spec.md §3).
type Account struct {
	MCC  int
	MNC  int
	IMSI string
	Ki   [16]byte

	// HasOP reports whether the account was built from OP; OPc is always
	// set (derived from OP+Ki when HasOP is true).
	OP    [16]byte
	OPc   [16]byte
	HasOP bool

	AMF [2]byte
}

// New builds an Account, deriving OPc from OP+Ki when only OP is given,
// per original_source/pyims/sip/auth.py's "sim_opc derived via
// milenge.generate_opc if not given".
func New(mcc, mnc int, imsi string, ki [16]byte, amf [2]byte, op *[16]byte, opc *[16]byte) (*Account, error) {
	a := &Account{MCC: mcc, MNC: mnc, IMSI: imsi, Ki: ki, AMF: amf}
	switch {
	case op != nil && opc != nil:
		return nil, fmt.Errorf("account: exactly one of OP/OPc must be set: %w", imserrors.ErrInvariantViolation)
	case op != nil:
		a.OP = *op
		a.OPc = milenage.OPc(ki, *op)
		a.HasOP = true
	case opc != nil:
		a.OPc = *opc
	default:
		return nil, fmt.Errorf("account: exactly one of OP/OPc must be set: %w", imserrors.ErrInvariantViolation)
	}
	return a, nil
}

// Realm returns the IMS home-network host, grounded on
// original_source/pyims/sip/client.py's _generate_ims_host() and
// spec.md §6's exact realm format.
func (a *Account) Realm() string {
	return fmt.Sprintf("ims.mnc%03d.mcc%03d.3gppnetwork.org", a.MNC, a.MCC)
}

// URI returns the account's SIP URI (sip:<imsi>@<realm>).
func (a *Account) URI() string {
	return fmt.Sprintf("sip:%s@%s", a.IMSI, a.Realm())
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{imsi=%s, realm=%s, ki=%s}", a.IMSI, a.Realm(), hex.EncodeToString(a.Ki[:4])+"...")
}
