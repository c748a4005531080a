// Package session implements the Session/Client layer: request/response
// construction, the registration state machine, outbound/inbound INVITE
// handling, and BYE, grounded on original_source/pyims/sip/client.py and
// spec.md §4.H. Dialog/registration lifecycle transitions are driven
// through github.com/looplab/fsm, in the teacher's
// fsm.NewFSM/fsm.Events/fsm.Callbacks idiom (pkg/dialog/dialog.go).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/arzzra/imsphone/internal/account"
	authpkg "github.com/arzzra/imsphone/internal/auth"
	"github.com/arzzra/imsphone/internal/call"
	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/sdp"
	"github.com/arzzra/imsphone/internal/sip"
	"github.com/arzzra/imsphone/internal/socket"
	"github.com/arzzra/imsphone/internal/transport"
)

const (
	defaultMaxForwards = 70
	defaultExpires     = 1800
	registerTimeout    = 5 * time.Second
	inviteTimeout      = 32 * time.Second
)

// Client is the application-facing IMS UA: one Transaction to the server
// endpoint, the registration lifecycle, and zero-or-one active Dialog at a
// time, matching spec.md's single-dialog-per-transaction scope (multi-call
// concurrency is a Non-goal).
type Client struct {
	transport *transport.Transport
	tx        *transport.Transaction

	local  socket.Address
	remote socket.Address

	account *account.Account
	authn   *authpkg.Authenticator

	callHandler *call.CallHandler
	registry    *rtp.Registry

	log     logging.Logger
	metrics *metrics.Metrics

	contactURI string

	regFSM   *fsm.FSM
	regState RegistrationState

	activeDialog *Dialog

	// busyMu/busy track whether a synchronous request/response exchange
	// (Register/Invite/Bye) currently owns the Transaction's inbound FIFO,
	// so onNewMessages' async dispatch (spec.md §4.H) does not steal a
	// response meant for that exchange's own AwaitMessage call.
	busyMu sync.Mutex
	busy   bool

	// OnIncomingCall notifies the application once an unsolicited INVITE's
	// CallSession has been established, mirroring spec.md §4.H's async
	// inbound dispatch ("the listener runs on the transaction thread").
	OnIncomingCall func(*Dialog)
}

// NewClient builds a Client bound to local/remote over tr, authenticating
// as acc via authn, and handing negotiated calls to callHandler.
func NewClient(tr *transport.Transport, local, remote socket.Address, acc *account.Account, authn *authpkg.Authenticator, callHandler *call.CallHandler, registry *rtp.Registry, log logging.Logger, m *metrics.Metrics) *Client {
	c := &Client{
		transport:   tr,
		local:       local,
		remote:      remote,
		account:     acc,
		authn:       authn,
		callHandler: callHandler,
		registry:    registry,
		log:         log,
		metrics:     m,
		contactURI:  fmt.Sprintf("sip:%s@%s:%d", acc.IMSI, local.IP, local.Port),
	}
	c.regFSM = newRegistrationFSM(func(s RegistrationState) { c.regState = s })
	return c
}

// Open opens the underlying Transaction and begins async inbound dispatch.
func (c *Client) Open() error {
	tx, err := c.transport.Open(c.local, c.remote)
	if err != nil {
		return err
	}
	c.tx = tx
	tx.OnNewMessages = c.onNewMessages
	return nil
}

// Close tears down the Transaction.
func (c *Client) Close() {
	if c.tx != nil {
		c.tx.Close()
	}
}

func (c *Client) setBusy(v bool) {
	c.busyMu.Lock()
	c.busy = v
	c.busyMu.Unlock()
}

func (c *Client) isBusy() bool {
	c.busyMu.Lock()
	defer c.busyMu.Unlock()
	return c.busy
}

func (c *Client) newBranch() string { return "z9hG4bK" + uuid.NewString() }
func (c *Client) newTag() string    { return uuid.NewString()[:8] }

// createRequest fills CSeq, Max-Forwards, Expires (REGISTER only), From
// (with tag), Call-ID, a fresh-branch Via, To, and Contact, matching
// spec.md §4.H's create_request.
func (c *Client) createRequest(method, requestURI, callID string, cseq uint32, fromTag, toURI, toTag string) *sip.Message {
	req := sip.NewRequest(method, requestURI)
	req.Add(&sip.ViaHeader{Protocol: "SIP", Transport: c.transport.Name(), Host: c.local.IP, Port: c.local.Port, Branch: c.newBranch()})
	req.Add(&sip.MaxForwardsHeader{Value: defaultMaxForwards})
	req.Add(sip.NewFrom("", c.account.URI(), fromTag))
	req.Add(sip.NewTo("", toURI, toTag))
	req.Add(&sip.CallIDHeader{Value: callID})
	req.Add(&sip.CSeqHeader{Sequence: cseq, Method: method})
	req.Add(&sip.ContactHeader{URI: c.contactURI})
	if method == sip.MethodRegister {
		req.Add(&sip.ExpiresHeader{Value: defaultExpires})
	}
	return req
}

// createResponse echoes From/To/Call-ID, copies CSeq from the request, and
// echoes every Via and Record-Route header in order; no other headers are
// added (there is no set of default headers). toTag, when
// non-empty, stamps a local tag onto the echoed To header (dialog-creating
// responses); it is ignored if the request's To already carries one.
func (c *Client) createResponse(status int, req *sip.Message, toTag string) *sip.Message {
	resp := sip.NewResponse(status)
	if h, ok := req.First("From"); ok {
		resp.Add(h)
	}
	if h, ok := req.First("To"); ok {
		if to, ok := h.(*sip.SenderSendeeHeader); ok && to.Tag == "" && toTag != "" {
			resp.Add(sip.NewTo(to.Display, to.URI, toTag))
		} else {
			resp.Add(h)
		}
	}
	if h, ok := req.First("Call-ID"); ok {
		resp.Add(h)
	}
	if h, ok := req.First("CSeq"); ok {
		resp.Add(h)
	}
	for _, h := range req.HeadersByName("Via") {
		resp.Add(h)
	}
	for _, h := range req.HeadersByName("Record-Route") {
		resp.Add(h)
	}
	return resp
}

// Register runs the registration state machine: send REGISTER with a blank
// Authorization, answer a 401 challenge via the Authenticator, and retry on
// the same transaction, per spec.md §4.H.
func (c *Client) Register() error {
	c.setBusy(true)
	defer c.setBusy(false)

	_ = c.regFSM.Event(context.Background(), "start")

	callID := uuid.NewString()
	fromTag := c.newTag()
	toURI := c.account.URI()
	cseq := uint32(1)

	authHeader := authpkg.BlankAuthorization(c.account.IMSI, c.account.Realm(), toURI)

	for {
		req := c.createRequest(sip.MethodRegister, toURI, callID, cseq, fromTag, toURI, "")
		req.Add(authHeader)

		if c.metrics != nil {
			c.metrics.RegisterAttempts.Inc()
		}
		if err := c.tx.Send(req); err != nil {
			_ = c.regFSM.Event(context.Background(), "fail")
			return err
		}

		resp, err := c.tx.AwaitMessage(registerTimeout)
		if err != nil {
			_ = c.regFSM.Event(context.Background(), "fail")
			return err
		}

		switch resp.StatusCode {
		case 100:
			continue
		case 200:
			if c.metrics != nil {
				c.metrics.RegisterSuccesses.Inc()
			}
			_ = c.regFSM.Event(context.Background(), "succeed")
			return nil
		case 401:
			if c.metrics != nil {
				c.metrics.RegisterChallenges.Inc()
			}
			_ = c.regFSM.Event(context.Background(), "challenged")
			challengeHeader, ok := resp.First("WWW-Authenticate")
			challenge, ok2 := challengeHeader.(*sip.AuthHeader)
			if !ok || !ok2 {
				_ = c.regFSM.Event(context.Background(), "fail")
				return fmt.Errorf("session: 401 response missing WWW-Authenticate")
			}
			newAuth, err := c.authn.BuildAuthorization(sip.MethodRegister, toURI, c.account.IMSI, c.account, challenge)
			if err != nil {
				_ = c.regFSM.Event(context.Background(), "fail")
				return err
			}
			authHeader = newAuth
			cseq++
			continue
		default:
			_ = c.regFSM.Event(context.Background(), "fail")
			return &imserrors.RegistrationFailedError{Status: resp.StatusCode, Reason: resp.Reason}
		}
	}
}

// RegistrationState reports the current registration lifecycle state.
func (c *Client) RegistrationState() RegistrationState { return c.regState }

// Invite places an outbound call to calleeURI: builds an SDP offer via the
// CallHandler, sends INVITE, waits out any number of 100 Trying, 180
// Ringing and 183 Session Progress responses (any other status but 200
// fails the call), and on 200 OK negotiates the answer, sends ACK, and returns
// the established Dialog. ACK shares the INVITE's branch and From tag and
// uses the callee's URI as request-URI, per spec.md §4.H.
func (c *Client) Invite(calleeURI string) (*Dialog, error) {
	c.setBusy(true)
	defer c.setBusy(false)

	if c.metrics != nil {
		c.metrics.InviteAttempts.Inc()
	}

	callID := uuid.NewString()
	fromTag := c.newTag()

	offer := c.callHandler.CreateInvite()
	offerSDP, err := offer.ComposeToSDP(c.registry)
	if err != nil {
		return nil, err
	}

	req := c.createRequest(sip.MethodInvite, calleeURI, callID, 1, fromTag, calleeURI, "")
	req.Add(&sip.ContentTypeHeader{Value: "application/sdp"})
	req.Body = offerSDP.Compose()

	via, _ := req.First("Via")
	branch := via.(*sip.ViaHeader).Branch

	dialog := newDialog(callID, fromTag)
	dialog.Branch = branch
	dialog.RemoteURI = calleeURI
	dialog.fire("invite")

	if err := c.tx.Send(req); err != nil {
		if c.metrics != nil {
			c.metrics.InviteFailures.Inc()
		}
		return nil, err
	}

	for {
		resp, err := c.tx.AwaitMessage(inviteTimeout)
		if err != nil {
			if c.metrics != nil {
				c.metrics.InviteFailures.Inc()
			}
			return nil, err
		}

		switch {
		case resp.StatusCode == 100:
			continue
		case resp.StatusCode == 180 || resp.StatusCode == 183:
			dialog.fire("ringing")
			continue
		case resp.StatusCode == 200:
			if toHeader, ok := resp.First("To"); ok {
				if sst, ok := toHeader.(*sip.SenderSendeeHeader); ok {
					dialog.RemoteTag = sst.Tag
				}
			}
			decoded, err := resp.DecodeBody()
			if err != nil {
				if c.metrics != nil {
					c.metrics.InviteFailures.Inc()
				}
				return nil, err
			}
			answer, ok := decoded.(*sdp.Message)
			if !ok {
				if c.metrics != nil {
					c.metrics.InviteFailures.Inc()
				}
				return nil, fmt.Errorf("session: 200 OK to INVITE has non-SDP body (content-type %q): %w", resp.ContentType(), imserrors.ErrParseError)
			}
			answerReq, err := call.ParseFromSDP(answer, c.registry)
			if err != nil {
				if c.metrics != nil {
					c.metrics.InviteFailures.Inc()
				}
				return nil, err
			}
			callSession, err := c.callHandler.OnAnswer(offer, answerReq)
			if err != nil {
				if c.metrics != nil {
					c.metrics.InviteFailures.Inc()
				}
				return nil, err
			}
			dialog.Session = callSession
			dialog.fire("answered")

			ack := sip.NewRequest(sip.MethodAck, calleeURI)
			ack.Add(&sip.ViaHeader{Protocol: "SIP", Transport: c.transport.Name(), Host: c.local.IP, Port: c.local.Port, Branch: branch})
			ack.Add(&sip.MaxForwardsHeader{Value: defaultMaxForwards})
			ack.Add(sip.NewFrom("", c.account.URI(), fromTag))
			ack.Add(sip.NewTo("", calleeURI, dialog.RemoteTag))
			ack.Add(&sip.CallIDHeader{Value: callID})
			ack.Add(&sip.CSeqHeader{Sequence: 1, Method: sip.MethodAck})
			if err := c.tx.Send(ack); err != nil {
				return nil, err
			}

			c.activeDialog = dialog
			if c.metrics != nil {
				c.metrics.InviteSuccesses.Inc()
			}
			callSession.Start()
			return dialog, nil
		default:
			dialog.fire("rejected")
			if c.metrics != nil {
				c.metrics.InviteFailures.Inc()
			}
			return nil, &imserrors.InviteFailedError{Status: resp.StatusCode, Reason: resp.Reason}
		}
	}
}

// Bye terminates dialog: sends BYE with CSeq=2 and the dialog's remote URI
// as request-URI, per spec.md §4.H.
func (c *Client) Bye(dialog *Dialog) error {
	c.setBusy(true)
	defer c.setBusy(false)

	req := sip.NewRequest(sip.MethodBye, dialog.RemoteURI)
	req.Add(&sip.ViaHeader{Protocol: "SIP", Transport: c.transport.Name(), Host: c.local.IP, Port: c.local.Port, Branch: c.newBranch()})
	req.Add(&sip.MaxForwardsHeader{Value: defaultMaxForwards})
	req.Add(sip.NewFrom("", c.account.URI(), dialog.LocalTag))
	req.Add(sip.NewTo("", dialog.RemoteURI, dialog.RemoteTag))
	req.Add(&sip.CallIDHeader{Value: dialog.CallID})
	req.Add(&sip.CSeqHeader{Sequence: 2, Method: sip.MethodBye})

	if err := c.tx.Send(req); err != nil {
		return err
	}
	if _, err := c.tx.AwaitMessage(registerTimeout); err != nil {
		return err
	}
	dialog.fire("bye")
	if dialog.Session != nil {
		dialog.Session.Terminate()
	}
	if c.metrics != nil {
		c.metrics.ActiveCalls.Dec()
	}
	if c.activeDialog == dialog {
		c.activeDialog = nil
	}
	return nil
}

// onNewMessages is the Transaction's "new messages" callback (spec.md
// §4.G/§4.H "async inbound dispatch"). While a Register/Invite/Bye
// exchange is in progress it returns at once, leaving every message for
// that exchange's AwaitMessage. Otherwise it drains buffered requests into
// handleInboundRequest; a response popped here has no waiting exchange, so
// it is discarded and draining stops.
func (c *Client) onNewMessages() {
	if c.isBusy() {
		return
	}
	for {
		msg, err := c.tx.AwaitMessage(0)
		if err != nil {
			return
		}
		if !msg.IsRequest {
			return
		}
		c.handleInboundRequest(msg)
	}
}

// handleInboundRequest implements spec.md §4.H's inbound INVITE flow, plus
// the supplemented pre-answer 100 Trying/180 Ringing exchange
// (SPEC_FULL.md §9).
func (c *Client) handleInboundRequest(req *sip.Message) {
	switch req.Method {
	case sip.MethodInvite:
		c.handleInboundInvite(req)
	case sip.MethodBye:
		c.handleInboundBye(req)
	default:
		resp := c.createResponse(501, req, "")
		_ = c.tx.Send(resp)
	}
}

func (c *Client) handleInboundInvite(req *sip.Message) {
	_ = c.tx.Send(c.createResponse(100, req, ""))
	_ = c.tx.Send(c.createResponse(180, req, ""))

	decoded, err := req.DecodeBody()
	if err != nil {
		c.log.Warn("session: inbound INVITE has unparseable SDP", logging.Err(err))
		_ = c.tx.Send(c.createResponse(400, req, ""))
		return
	}
	offer, ok := decoded.(*sdp.Message)
	if !ok {
		c.log.Warn("session: inbound INVITE has non-SDP body", logging.String("content_type", req.ContentType()))
		_ = c.tx.Send(c.createResponse(400, req, ""))
		return
	}
	inviteReq, err := call.ParseFromSDP(offer, c.registry)
	if err != nil {
		_ = c.tx.Send(c.createResponse(400, req, ""))
		return
	}

	answer, callSession, err := c.callHandler.OnInvite(inviteReq)
	if err != nil {
		c.log.Warn("session: no mutually supported format for inbound call", logging.Err(err))
		_ = c.tx.Send(c.createResponse(400, req, ""))
		return
	}

	answerSDP, err := answer.ComposeToSDP(c.registry)
	if err != nil {
		_ = c.tx.Send(c.createResponse(500, req, ""))
		return
	}

	callID := ""
	if h, ok := req.First("Call-ID"); ok {
		callID = h.(*sip.CallIDHeader).Value
	}
	remoteURI := ""
	if h, ok := req.First("From"); ok {
		if sst, ok := h.(*sip.SenderSendeeHeader); ok {
			remoteURI = sst.URI
		}
	}
	localTag := c.newTag()

	dialog := newDialog(callID, localTag)
	dialog.RemoteURI = remoteURI
	for _, h := range req.HeadersByName("Via") {
		if v, ok := h.(*sip.ViaHeader); ok {
			dialog.RemoteVia = append(dialog.RemoteVia, v)
		}
	}
	for _, h := range req.HeadersByName("Record-Route") {
		if rr, ok := h.(*sip.RecordRouteHeader); ok {
			dialog.RemoteRecordRoute = append(dialog.RemoteRecordRoute, rr)
		}
	}
	dialog.Session = callSession
	dialog.fire("incoming")
	dialog.fire("accept")
	c.activeDialog = dialog

	resp := c.createResponse(200, req, localTag)
	resp.Add(&sip.ContentTypeHeader{Value: "application/sdp"})
	resp.Body = answerSDP.Compose()
	_ = c.tx.Send(resp)

	callSession.Start()
	if c.OnIncomingCall != nil {
		c.OnIncomingCall(dialog)
	}
}

func (c *Client) handleInboundBye(req *sip.Message) {
	resp := c.createResponse(200, req, "")
	_ = c.tx.Send(resp)
	if c.activeDialog != nil {
		c.activeDialog.fire("bye")
		if c.activeDialog.Session != nil {
			c.activeDialog.Session.Terminate()
		}
		if c.metrics != nil {
			c.metrics.ActiveCalls.Dec()
		}
		c.activeDialog = nil
	}
}
