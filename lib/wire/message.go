// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/bureau-foundation/stardust/lib/codec"
)

// Kind distinguishes the three message types. It travels in the frame
// header, not in the CBOR payload.
type Kind uint8

const (
	// KindCall is a request that expects exactly one Response with the
	// same sequence number.
	KindCall Kind = 1

	// KindResponse answers a Call: a result or an Error.
	KindResponse Kind = 2

	// KindSignal is a fire-and-forget event. Clients send signals to
	// invoke methods without waiting; the server sends signals to
	// deliver aspect events.
	KindSignal Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindResponse:
		return "response"
	case KindSignal:
		return "signal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindCall && k <= KindSignal
}

// Message is one decoded protocol unit.
//
// Calls and Signals address (Node, Aspect, Member). Member names a
// method on inbound traffic and an event on server-emitted signals.
// Responses carry only Seq plus either Result or Error; an ok Response
// with no value leaves Result empty.
type Message struct {
	Kind   Kind             `cbor:"-"`
	Seq    uint64           `cbor:"1,keyasint,omitempty"`
	Node   NodeID           `cbor:"2,keyasint,omitempty"`
	Aspect string           `cbor:"3,keyasint,omitempty"`
	Member string           `cbor:"4,keyasint,omitempty"`
	Args   codec.RawMessage `cbor:"5,keyasint,omitempty"`
	Result codec.RawMessage `cbor:"6,keyasint,omitempty"`
	Error  *Error           `cbor:"7,keyasint,omitempty"`
}

// Validate checks the per-kind shape of m.
func (m Message) Validate() error {
	switch m.Kind {
	case KindCall:
		if m.Seq == 0 {
			return protocolErrorf(nil, "call without sequence number")
		}
		if m.Aspect == "" || m.Member == "" {
			return protocolErrorf(nil, "call seq %d missing aspect or method", m.Seq)
		}
		if len(m.Result) != 0 || m.Error != nil {
			return protocolErrorf(nil, "call seq %d carries a result", m.Seq)
		}
	case KindSignal:
		if m.Seq != 0 {
			return protocolErrorf(nil, "signal carries sequence number %d", m.Seq)
		}
		if m.Aspect == "" || m.Member == "" {
			return protocolErrorf(nil, "signal missing aspect or event")
		}
		if len(m.Result) != 0 || m.Error != nil {
			return protocolErrorf(nil, "signal carries a result")
		}
	case KindResponse:
		if m.Seq == 0 {
			return protocolErrorf(nil, "response without sequence number")
		}
		if m.Node != 0 || m.Aspect != "" || m.Member != "" || len(m.Args) != 0 {
			return protocolErrorf(nil, "response seq %d carries call fields", m.Seq)
		}
		if m.Error != nil && len(m.Result) != 0 {
			return protocolErrorf(nil, "response seq %d carries both result and error", m.Seq)
		}
		if m.Error != nil && m.Error.Code == "" {
			return protocolErrorf(nil, "response seq %d has error without code", m.Seq)
		}
	default:
		return protocolErrorf(nil, "unknown message kind %d", uint8(m.Kind))
	}
	return nil
}

// DecodeArgs decodes the message arguments into v.
func (m Message) DecodeArgs(v any) error {
	if len(m.Args) == 0 {
		return fmt.Errorf("no arguments")
	}
	return Unmarshal(m.Args, v)
}

// DecodeResult decodes a successful response's result into v. An error
// response returns its *Error.
func (m Message) DecodeResult(v any) error {
	if m.Error != nil {
		return m.Error
	}
	if len(m.Result) == 0 {
		return nil
	}
	return Unmarshal(m.Result, v)
}

// NewCall builds a Call. args is encoded with Marshal.
func NewCall(seq uint64, node NodeID, aspect, method string, args any) (Message, error) {
	raw, err := Marshal(args)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s.%s arguments: %w", aspect, method, err)
	}
	return Message{Kind: KindCall, Seq: seq, Node: node, Aspect: aspect, Member: method, Args: raw}, nil
}

// NewSignal builds a Signal carrying payload.
func NewSignal(node NodeID, aspect, member string, payload any) (Message, error) {
	raw, err := Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s.%s payload: %w", aspect, member, err)
	}
	return Message{Kind: KindSignal, Node: node, Aspect: aspect, Member: member, Args: raw}, nil
}

// NewResponse builds an ok Response carrying result.
func NewResponse(seq uint64, result any) (Message, error) {
	raw, err := Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("encoding response %d: %w", seq, err)
	}
	return Message{Kind: KindResponse, Seq: seq, Result: raw}, nil
}

// NewErrorResponse builds an error Response.
func NewErrorResponse(seq uint64, err *Error) Message {
	return Message{Kind: KindResponse, Seq: seq, Error: err}
}
