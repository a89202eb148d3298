// Package stunstack implements ice.Transport over gortc.io/stun,
// framing connectivity checks as STUN Binding transactions with the
// RFC 5389 Section 7.2.1 retransmission timer and RFC 5245 message
// integrity/fingerprint handling.
package stunstack

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gortc.io/stun"

	ice "github.com/gortc/iceagent"
)

// Transport adapts gortc.io/stun onto ice.Transport. One Transport can
// serve many sockets and streams; it tracks in-flight transactions by
// id so incoming responses can be routed back to their originator.
//
// Grounded on internal/server/server.go's Server: a long-lived object
// owning a logger and a registry (here, in-flight transactions instead
// of allocations) guarded by a single mutex.
type Transport struct {
	log *zap.Logger

	mu  sync.Mutex
	txs map[[12]byte]*transaction
}

// New returns a Transport logging with log.
func New(log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{log: log, txs: make(map[[12]byte]*transaction)}
}

type transaction struct {
	id       [12]byte
	cancel   context.CancelFunc
	cancelled bool
	mu       sync.Mutex
}

func (t *transaction) ID() [12]byte { return t.id }

func (t *transaction) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	t.cancel()
}

// defaultRetransmitPolicy is the ordinary connectivity-check schedule of
// RFC 5389 Section 7.2.1: initial RTO 500ms, doubling, capped at 1600ms,
// 7 total sends.
var defaultRetransmitPolicy = ice.RetransmitPolicy{
	InitialRTO: 500 * time.Millisecond,
	MaxRTO:     1600 * time.Millisecond,
	MaxSends:   7,
}

func resolvePolicy(p ice.RetransmitPolicy) ice.RetransmitPolicy {
	if p.InitialRTO == 0 {
		p.InitialRTO = defaultRetransmitPolicy.InitialRTO
	}
	if p.MaxRTO == 0 {
		p.MaxRTO = defaultRetransmitPolicy.MaxRTO
	}
	if p.MaxSends == 0 {
		p.MaxSends = defaultRetransmitPolicy.MaxSends
	}
	return p
}

// StartTransaction implements ice.Transport. It builds a Binding
// Request carrying attrs, signs it with integrityKey when non-empty,
// sends it on sock, and retransmits per policy until ctx is done or a
// matching response arrives.
func (s *Transport) StartTransaction(ctx context.Context, sock ice.Socket, dst ice.Addr, attrs []ice.StunAttribute, integrityKey []byte, policy ice.RetransmitPolicy, result func(ice.StunResult)) ice.StunTransaction {
	msg, err := buildRequest(stun.BindingRequest, attrs, integrityKey)
	if err != nil {
		result(ice.StunResult{})
		return nil
	}
	var id [12]byte
	copy(id[:], msg.TransactionID[:])

	txCtx, cancel := context.WithCancel(ctx)
	tx := &transaction{id: id, cancel: cancel}

	s.mu.Lock()
	s.txs[id] = tx
	s.mu.Unlock()

	go s.runTransaction(txCtx, sock, dst, msg, integrityKey, resolvePolicy(policy), tx, result)
	return tx
}

func (s *Transport) runTransaction(ctx context.Context, sock ice.Socket, dst ice.Addr, msg *stun.Message, integrityKey []byte, policy ice.RetransmitPolicy, tx *transaction, result func(ice.StunResult)) {
	defer func() {
		s.mu.Lock()
		delete(s.txs, tx.id)
		s.mu.Unlock()
	}()

	rto := policy.InitialRTO

	respCh := make(chan ice.StunResult, 1)
	go s.receiveLoop(ctx, sock, msg.TransactionID, integrityKey, respCh)

	for attempt := 0; attempt < policy.MaxSends; attempt++ {
		if err := sock.Send(msg.Raw, dst); err != nil {
			s.log.Debug("send failed", zap.Error(err))
			result(ice.StunResult{})
			return
		}
		timer := time.NewTimer(rto)
		select {
		case res := <-respCh:
			timer.Stop()
			result(res)
			return
		case <-timer.C:
			if rto < policy.MaxRTO {
				rto *= 2
				if rto > policy.MaxRTO {
					rto = policy.MaxRTO
				}
			}
		case <-ctx.Done():
			timer.Stop()
			result(ice.StunResult{Timeout: true})
			return
		}
	}
	result(ice.StunResult{Timeout: true})
}

// receiveLoop polls sock for a response matching tid until ctx is done
// or one arrives, decoupling read-deadline churn from the send loop.
func (s *Transport) receiveLoop(ctx context.Context, sock ice.Socket, tid [stun.TransactionIDSize]byte, integrityKey []byte, out chan<- ice.StunResult) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = sock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		raw, from, err := sock.Recv()
		if err != nil {
			continue
		}
		msg := new(stun.Message)
		msg.Raw = raw
		if err := msg.Decode(); err != nil {
			continue
		}
		if msg.TransactionID != tid {
			continue
		}
		select {
		case out <- decodeResult(msg, from, integrityKey):
		default:
		}
		return
	}
}

func decodeResult(msg *stun.Message, from ice.Addr, integrityKey []byte) ice.StunResult {
	if msg.Type.Class == stun.ClassErrorResponse {
		var code stun.ErrorCodeAttribute
		_ = code.GetFrom(msg)
		if code.Code == stun.CodeRoleConflict {
			return ice.StunResult{RoleConflict: true, From: from}
		}
		return ice.StunResult{ErrorCode: int(code.Code), From: from}
	}
	var xor stun.XORMappedAddress
	if err := xor.GetFrom(msg); err != nil {
		return ice.StunResult{From: from}
	}
	if len(integrityKey) > 0 {
		if err := stun.MessageIntegrity(integrityKey).Check(msg); err != nil {
			return ice.StunResult{From: from}
		}
	}
	return ice.StunResult{
		Success: true,
		From:    from,
		MappedAddr: ice.Addr{
			IP:   xor.IP,
			Port: xor.Port,
		},
	}
}

// ListenRequests implements ice.Transport: it spawns a read loop on
// sock that decodes Binding Requests, checks MESSAGE-INTEGRITY against
// integrityKey when it is non-empty (RFC 5389 Section 10.1.2), invokes
// handler, and sends back whatever response attributes handler returns
// signed with the same key (or an error response if it fails).
func (s *Transport) ListenRequests(sock ice.Socket, integrityKey []byte, handler func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error)) {
	go func() {
		for {
			_ = sock.SetReadDeadline(time.Now().Add(time.Second))
			raw, from, err := sock.Recv()
			if err != nil {
				continue
			}
			msg := new(stun.Message)
			msg.Raw = raw
			if err := msg.Decode(); err != nil {
				continue
			}
			if msg.Type.Class != stun.ClassRequest {
				s.routeResponse(msg, from)
				continue
			}
			if len(integrityKey) > 0 {
				if err := stun.MessageIntegrity(integrityKey).Check(msg); err != nil {
					s.log.Debug("dropping request with bad message integrity", zap.Stringer("from", from))
					continue
				}
			}
			attrs := decodeAttrs(msg)
			respAttrs, err := handler(from, attrs)
			var respType stun.MessageType
			if err != nil {
				respType = stun.NewType(stun.MethodBinding, stun.ClassErrorResponse)
			} else {
				respType = stun.NewType(stun.MethodBinding, stun.ClassSuccessResponse)
			}
			resp, buildErr := buildResponse(msg, respType, respAttrs, integrityKey)
			if buildErr != nil {
				s.log.Debug("build response failed", zap.Error(buildErr))
				continue
			}
			if err := sock.Send(resp.Raw, from); err != nil {
				s.log.Debug("send response failed", zap.Error(err))
			}
		}
	}()
}

func (s *Transport) routeResponse(msg *stun.Message, from ice.Addr) {
	var id [12]byte
	copy(id[:], msg.TransactionID[:])
	s.mu.Lock()
	_, ok := s.txs[id]
	s.mu.Unlock()
	if !ok {
		s.log.Debug("response for unknown transaction", zap.Binary("tid", msg.TransactionID[:]))
	}
}

func decodeAttrs(msg *stun.Message) []ice.StunAttribute {
	var out []ice.StunAttribute
	for _, a := range msg.Attributes {
		out = append(out, ice.StunAttribute{Type: uint16(a.Type), Value: a.Value})
	}
	return out
}

func buildRequest(method stun.Method, attrs []ice.StunAttribute, integrityKey []byte) (*stun.Message, error) {
	m := new(stun.Message)
	setters := []stun.Setter{stun.TransactionID, stun.NewType(method, stun.ClassRequest)}
	for _, a := range attrs {
		setters = append(setters, rawAttr{typ: stun.AttrType(a.Type), value: a.Value})
	}
	if err := m.Build(setters...); err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if len(integrityKey) > 0 {
		if err := stun.MessageIntegrity(integrityKey).AddTo(m); err != nil {
			return nil, errors.Wrap(err, "add message integrity")
		}
	}
	if err := stun.Fingerprint.AddTo(m); err != nil {
		return nil, errors.Wrap(err, "add fingerprint")
	}
	return m, nil
}

// buildResponse builds a response sharing req's transaction id. req
// doubles as a stun.Setter here the same way
// `res.Build(req, bindingSuccess, ...)` reuses the inbound request to
// seed the response's transaction id. The response is signed with
// integrityKey when non-empty, so an authenticated Binding Request
// always gets an authenticated response (RFC 5389 Section 10.1.2).
func buildResponse(req *stun.Message, typ stun.MessageType, attrs []ice.StunAttribute, integrityKey []byte) (*stun.Message, error) {
	m := new(stun.Message)
	setters := []stun.Setter{req, typ}
	for _, a := range attrs {
		setters = append(setters, rawAttr{typ: stun.AttrType(a.Type), value: a.Value})
	}
	if err := m.Build(setters...); err != nil {
		return nil, errors.Wrap(err, "build response")
	}
	if len(integrityKey) > 0 {
		if err := stun.MessageIntegrity(integrityKey).AddTo(m); err != nil {
			return nil, errors.Wrap(err, "add message integrity")
		}
	}
	if err := stun.Fingerprint.AddTo(m); err != nil {
		return nil, errors.Wrap(err, "add fingerprint")
	}
	return m, nil
}

// rawAttr adapts an ice.StunAttribute (type + pre-encoded value) onto
// stun.Setter so attribute construction owned by package ice (PRIORITY,
// USE-CANDIDATE, USERNAME, ICE-CONTROLLED/CONTROLLING) can be appended
// to a stun.Message without this package knowing their semantics.
type rawAttr struct {
	typ   stun.AttrType
	value []byte
}

func (r rawAttr) AddTo(m *stun.Message) error {
	m.Add(r.typ, r.value)
	return nil
}
