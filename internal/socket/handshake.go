package socket

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/rsocket/rpc-go/logger"
)

// Proposal is the handshake message sent by a client.
type Proposal struct {
	Version   core.Version
	Encodings []core.Encoding
	Payload   []byte
}

// Agreement is the outcome of a successful handshake.
type Agreement struct {
	Version  core.Version
	Encoding core.Encoding
	Payload  []byte
}

// HandshakeAcceptor may veto a proposal on the server side. The error text is sent as the reject reason.
type HandshakeAcceptor func(ctx context.Context, p Proposal) error

type proposalFrame struct {
	Version   core.Version `json:"version"`
	Encodings []string     `json:"encodings"`
	Payload   []byte       `json:"payload,omitempty"`
}

type replyFrame struct {
	Version  *core.Version  `json:"version,omitempty"`
	Encoding *core.Encoding `json:"encoding,omitempty"`
	Payload  []byte         `json:"payload,omitempty"`
	Reject   string         `json:"reject,omitempty"`
}

func sendHandshake(sk transport.Socket, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal handshake failed")
	}
	if err := sk.Send(transport.Frame{Data: b, Text: true}); err != nil {
		return errors.Wrapf(core.ErrTransport, "send handshake failed: %s", err)
	}
	return nil
}

// nextHandshakeFrame waits for the first message of the peer.
func nextHandshakeFrame(ctx context.Context, events <-chan transport.Event) ([]byte, error) {
	var cause error
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(core.ErrHandshakeTimeout, "no handshake within deadline: %s", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, errors.Wrap(core.ErrConnectionDropped, "closed during handshake")
			}
			switch ev.Kind {
			case transport.EventMessage:
				return ev.Frame.Data, nil
			case transport.EventError:
				cause = ev.Err
			case transport.EventClosed:
				if cause != nil {
					return nil, errors.Wrapf(core.ErrTransport, "handshake interrupted: %s", cause)
				}
				return nil, errors.Wrapf(core.ErrConnectionDropped, "closed during handshake: %d %s", ev.Code, ev.Reason)
			}
		}
	}
}

// ClientHandshake proposes p and waits for the agreement of the server.
func ClientHandshake(ctx context.Context, sk transport.Socket, p Proposal) (agreed Agreement, err error) {
	if len(p.Encodings) == 0 {
		err = errors.Wrap(core.ErrHandshakeFailed, "no encoding proposed")
		return
	}
	names := make([]string, 0, len(p.Encodings))
	for _, it := range p.Encodings {
		names = append(names, it.String())
	}
	if err = sendHandshake(sk, proposalFrame{
		Version:   p.Version,
		Encodings: names,
		Payload:   p.Payload,
	}); err != nil {
		return
	}
	raw, err := nextHandshakeFrame(ctx, sk.Events())
	if err != nil {
		return
	}
	var reply replyFrame
	if err = json.Unmarshal(raw, &reply); err != nil {
		err = errors.Wrapf(core.ErrHandshakeFailed, "invalid handshake reply: %s", err)
		return
	}
	if reply.Reject != "" {
		err = errors.Wrapf(core.ErrHandshakeFailed, "rejected by server: %s", reply.Reject)
		return
	}
	if reply.Version == nil || reply.Encoding == nil {
		err = errors.Wrap(core.ErrHandshakeFailed, "incomplete handshake reply")
		return
	}
	if _, ok := p.Version.Negotiate(*reply.Version); !ok || reply.Version.GreaterThan(p.Version) {
		err = errors.Wrapf(core.ErrHandshakeFailed, "server agreed on version %s, proposed %s", reply.Version, p.Version)
		return
	}
	if !containsEncoding(p.Encodings, *reply.Encoding) {
		err = errors.Wrapf(core.ErrHandshakeFailed, "server agreed on unproposed encoding %s", reply.Encoding)
		return
	}
	agreed = Agreement{
		Version:  *reply.Version,
		Encoding: *reply.Encoding,
		Payload:  reply.Payload,
	}
	return
}

// ServerHandshake waits for a proposal and answers with the agreement, or a reject.
func ServerHandshake(ctx context.Context, sk transport.Socket, version core.Version, supported []core.Encoding, accept HandshakeAcceptor) (agreed Agreement, err error) {
	raw, err := nextHandshakeFrame(ctx, sk.Events())
	if err != nil {
		return
	}
	var pf proposalFrame
	if e := json.Unmarshal(raw, &pf); e != nil {
		err = rejectHandshake(sk, errors.Wrap(e, "malformed proposal"))
		return
	}
	proposal := Proposal{
		Version: pf.Version,
		Payload: pf.Payload,
	}
	for _, name := range pf.Encodings {
		enc, e := core.ParseEncoding(name)
		if e != nil {
			logger.Debugf("skip proposed encoding %q: %s", name, e)
			continue
		}
		proposal.Encodings = append(proposal.Encodings, enc)
	}
	v, ok := version.Negotiate(proposal.Version)
	if !ok {
		err = rejectHandshake(sk, errors.Errorf("unsupported version %s", proposal.Version))
		return
	}
	var enc core.Encoding
	for _, it := range proposal.Encodings {
		if containsEncoding(supported, it) {
			enc = it
			break
		}
	}
	if enc == 0 {
		err = rejectHandshake(sk, errors.Errorf("no supported encoding in %v", pf.Encodings))
		return
	}
	if accept != nil {
		if e := accept(ctx, proposal); e != nil {
			err = rejectHandshake(sk, e)
			return
		}
	}
	if err = sendHandshake(sk, replyFrame{
		Version:  &v,
		Encoding: &enc,
	}); err != nil {
		return
	}
	agreed = Agreement{
		Version:  v,
		Encoding: enc,
		Payload:  proposal.Payload,
	}
	return
}

func rejectHandshake(sk transport.Socket, reason error) error {
	if err := sendHandshake(sk, replyFrame{Reject: reason.Error()}); err != nil {
		logger.Warnf("send handshake reject failed: %s", err)
	}
	return errors.Wrapf(core.ErrHandshakeFailed, "reject: %s", reason)
}

func containsEncoding(all []core.Encoding, enc core.Encoding) bool {
	for _, it := range all {
		if it == enc {
			return true
		}
	}
	return false
}
