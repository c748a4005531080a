package session

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arzzra/imsphone/internal/account"
	"github.com/arzzra/imsphone/internal/auth"
	"github.com/arzzra/imsphone/internal/call"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/milenage"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/sip"
	"github.com/arzzra/imsphone/internal/socket"
	"github.com/arzzra/imsphone/internal/transport"
)

// buildValidNonce constructs a base64 AKA nonce (RAND|SQN^AK|AMF|MAC) that
// will pass acc's own Authenticator.CreatePassword MAC check, letting tests
// drive a real 401 challenge/response round trip. It also returns the RAND
// used, so a verifying test double can independently derive the expected RES
// and digest response without calling into the auth package.
func buildValidNonce(acc *account.Account) (nonceB64 string, rnd [16]byte) {
	for i := range rnd {
		rnd[i] = byte(0x10 + i)
	}
	var sqn [6]byte
	for i := range sqn {
		sqn[i] = byte(i + 1)
	}
	_, ak := milenage.F2F5(acc.Ki, acc.OPc, rnd)
	var sqnXorAK [6]byte
	for i := range sqnXorAK {
		sqnXorAK[i] = sqn[i] ^ ak[i]
	}
	macA, _ := milenage.F1(acc.Ki, acc.OPc, sqn, rnd, acc.AMF)

	raw := make([]byte, 0, 32)
	raw = append(raw, rnd[:]...)
	raw = append(raw, sqnXorAK[:]...)
	raw = append(raw, acc.AMF[:]...)
	raw = append(raw, macA[:]...)
	return base64.StdEncoding.EncodeToString(raw), rnd
}

func testAccount(t *testing.T) *account.Account {
	t.Helper()
	var ki [16]byte
	var op [16]byte
	for i := range ki {
		ki[i] = byte(i)
		op[i] = byte(i + 1)
	}
	acc, err := account.New(1, 1, "001010000000001", ki, [2]byte{0, 0}, &op, nil)
	require.NoError(t, err)
	return acc
}

func newTestClient(t *testing.T, local, remote socket.Address) (*Client, *reactor.Reactor) {
	t.Helper()
	rx, err := reactor.New(logging.Nop())
	require.NoError(t, err)
	go rx.RunForever(10 * time.Millisecond)
	t.Cleanup(func() { rx.Stop(); rx.Close() })

	registry := rtp.NewDefaultRegistry()
	callHandler := call.NewCallHandler(rx, logging.Nop(), metrics.New(nil), registry, local.IP, registry.Ordered())
	tr := transport.NewUDPTransport(rx, logging.Nop())
	c := NewClient(tr, local, remote, testAccount(t), auth.New(), callHandler, registry, logging.Nop(), metrics.New(nil))
	return c, rx
}

func TestCreateRequestSetsMandatoryHeaders(t *testing.T) {
	c, _ := newTestClient(t, socket.Address{IP: "127.0.0.1", Port: 15060}, socket.Address{IP: "127.0.0.1", Port: 15061})
	req := c.createRequest(sip.MethodRegister, "sip:core@example.com", "call-1", 1, "fromtag", "sip:core@example.com", "")

	_, ok := req.First("Via")
	require.True(t, ok)
	mf, ok := req.First("Max-Forwards")
	require.True(t, ok)
	require.Equal(t, 70, mf.(*sip.MaxForwardsHeader).Value)
	exp, ok := req.First("Expires")
	require.True(t, ok)
	require.Equal(t, 1800, exp.(*sip.ExpiresHeader).Value)
	from, ok := req.First("From")
	require.True(t, ok)
	require.Equal(t, "fromtag", from.(*sip.SenderSendeeHeader).Tag)
}

func TestCreateRequestOmitsExpiresForNonRegister(t *testing.T) {
	c, _ := newTestClient(t, socket.Address{IP: "127.0.0.1", Port: 15062}, socket.Address{IP: "127.0.0.1", Port: 15063})
	req := c.createRequest(sip.MethodInvite, "sip:bob@example.com", "call-2", 1, "fromtag", "sip:bob@example.com", "")
	_, ok := req.First("Expires")
	require.False(t, ok)
}

func TestCreateResponseEchoesAndStampsToTag(t *testing.T) {
	c, _ := newTestClient(t, socket.Address{IP: "127.0.0.1", Port: 15064}, socket.Address{IP: "127.0.0.1", Port: 15065})
	req := sip.NewRequest(sip.MethodInvite, "sip:bob@example.com")
	req.Add(sip.NewFrom("", "sip:alice@example.com", "atag"))
	req.Add(sip.NewTo("", "sip:bob@example.com", ""))
	req.Add(&sip.CallIDHeader{Value: "call-3"})
	req.Add(&sip.CSeqHeader{Sequence: 1, Method: sip.MethodInvite})
	req.Add(&sip.ViaHeader{Transport: "UDP", Host: "10.0.0.5", Port: 5060, Branch: "z9hG4bK-x"})

	resp := c.createResponse(200, req, "btag")
	to, ok := resp.First("To")
	require.True(t, ok)
	require.Equal(t, "btag", to.(*sip.SenderSendeeHeader).Tag)

	vias := resp.HeadersByName("Via")
	require.Len(t, vias, 1)
}

func TestCreateResponseDoesNotOverwriteExistingToTag(t *testing.T) {
	c, _ := newTestClient(t, socket.Address{IP: "127.0.0.1", Port: 15066}, socket.Address{IP: "127.0.0.1", Port: 15067})
	req := sip.NewRequest(sip.MethodBye, "sip:bob@example.com")
	req.Add(sip.NewTo("", "sip:bob@example.com", "existing"))
	req.Add(&sip.CallIDHeader{Value: "call-4"})
	req.Add(&sip.CSeqHeader{Sequence: 2, Method: sip.MethodBye})

	resp := c.createResponse(200, req, "shouldnotapply")
	to, ok := resp.First("To")
	require.True(t, ok)
	require.Equal(t, "existing", to.(*sip.SenderSendeeHeader).Tag)
}

// fakeRegistrar answers one REGISTER with 401 then 200, exercising the full
// challenge/response loop over real loopback UDP sockets driven by the
// shared reactor, grounded on spec.md §8 scenario 3. It independently
// recomputes the expected AKAv1-MD5 digest (via crypto/md5 directly, not the
// auth package) and rejects the post-401 REGISTER with 403 if the client's
// Authorization response doesn't match, so a regression in the client's
// digest encoding (e.g. hex-encoding RES before hashing it) fails this test
// instead of silently reaching RegistrationRegistered anyway.
type fakeRegistrar struct {
	sock           *socket.UDPSocket
	clientTo       socket.Address
	challenge      *sip.AuthHeader
	sawCorrectAuth bool
}

func expectedDigestResponse(t *testing.T, acc *account.Account, rnd [16]byte, nonce string, authz *sip.AuthHeader, method, uri string) string {
	t.Helper()
	res, _ := milenage.F2F5(acc.Ki, acc.OPc, rnd)

	a1Input := append([]byte(authz.Username+":"+authz.Realm+":"), res[:]...)
	a1Sum := md5.Sum(a1Input)
	a1 := hex.EncodeToString(a1Sum[:])

	a2Sum := md5.Sum([]byte(method + ":" + uri))
	a2 := hex.EncodeToString(a2Sum[:])

	respSum := md5.Sum([]byte(a1 + ":" + nonce + ":" + authz.NC + ":" + authz.CNonce + ":" + authz.Qop + ":" + a2))
	return hex.EncodeToString(respSum[:])
}

func runFakeRegistrar(t *testing.T, rx *reactor.Reactor, local socket.Address, acc *account.Account, rnd [16]byte, challenge *sip.AuthHeader) *fakeRegistrar {
	t.Helper()
	sock, err := socket.NewUDPSocket(rx, logging.Nop(), local.String())
	require.NoError(t, err)
	f := &fakeRegistrar{sock: sock, challenge: challenge}
	seen401 := false
	sock.OnData = func(dg socket.UDPDatagram) {
		req, _, err := sip.Parse(dg.Payload, 0)
		if err != nil {
			return
		}
		f.clientTo = dg.From
		if !seen401 {
			seen401 = true
			resp := sip.NewResponse(401)
			copyDialogHeaders(resp, req)
			resp.Add(challenge)
			sock.Write(dg.From, resp.Compose())
			return
		}

		authzHeader, ok := req.First("Authorization")
		authz, ok2 := authzHeader.(*sip.AuthHeader)
		if !ok || !ok2 {
			sock.Write(dg.From, sip.NewResponse(400).Compose())
			return
		}
		want := expectedDigestResponse(t, acc, rnd, challenge.Nonce, authz, req.Method, req.RequestURI)
		if authz.Response != want {
			resp := sip.NewResponse(403)
			copyDialogHeaders(resp, req)
			sock.Write(dg.From, resp.Compose())
			return
		}
		f.sawCorrectAuth = true
		resp := sip.NewResponse(200)
		copyDialogHeaders(resp, req)
		sock.Write(dg.From, resp.Compose())
	}
	sock.StartRead()
	t.Cleanup(sock.Close)
	return f
}

func copyDialogHeaders(resp, req *sip.Message) {
	if h, ok := req.First("From"); ok {
		resp.Add(h)
	}
	if h, ok := req.First("To"); ok {
		if to, ok := h.(*sip.SenderSendeeHeader); ok {
			resp.Add(sip.NewTo(to.Display, to.URI, "servertag"))
		}
	}
	if h, ok := req.First("Call-ID"); ok {
		resp.Add(h)
	}
	if h, ok := req.First("CSeq"); ok {
		resp.Add(h)
	}
}

func TestRegisterHandlesChallengeThenSucceeds(t *testing.T) {
	local := socket.Address{IP: "127.0.0.1", Port: 25060}
	remote := socket.Address{IP: "127.0.0.1", Port: 25061}

	c, rx := newTestClient(t, local, remote)
	nonce, rnd := buildValidNonce(c.account)
	challenge := sip.NewWWWAuthenticate()
	challenge.Realm = c.account.Realm()
	challenge.Nonce = nonce
	registrar := runFakeRegistrar(t, rx, remote, c.account, rnd, challenge)

	require.NoError(t, c.Open())
	defer c.Close()

	err := c.Register()
	require.NoError(t, err)
	require.Equal(t, RegistrationRegistered, c.RegistrationState())
	require.True(t, registrar.sawCorrectAuth, "registrar must have verified a correct digest response, not merely reached 200")
}
