// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// The handshake is an ordinary Call on the interface node. It must be
// the first message on every connection.
const (
	InterfaceAspect = "interface"
	HandshakeMethod = "handshake"
)

// Capabilities a client may request in its handshake. The server
// replies with the subset it agrees to.
const (
	// CapabilityLZ4 lets the server LZ4-compress large frames sent to
	// the client. Clients may always send compressed frames.
	CapabilityLZ4 = "lz4"

	// CapabilitySaveState marks a client that answers
	// interface.save_state calls when a session is saved.
	CapabilitySaveState = "save_state"
)

// HandshakeRequest is the argument of the handshake call.
type HandshakeRequest struct {
	Version      uint32   `cbor:"version"`
	Name         string   `cbor:"name,omitempty"`
	Capabilities []string `cbor:"capabilities,omitempty"`
}

// HandshakeResponse is the result of a successful handshake.
type HandshakeResponse struct {
	ClientID      ClientID `cbor:"client_id"`
	ServerVersion string   `cbor:"server_version"`
	Protocol      uint32   `cbor:"protocol"`
	Capabilities  []string `cbor:"capabilities,omitempty"`
}

// NewHandshake builds the handshake call. It always uses sequence
// number 1.
func NewHandshake(request HandshakeRequest) (Message, error) {
	return NewCall(1, InterfaceNode, InterfaceAspect, HandshakeMethod, request)
}

// IsHandshake reports whether m addresses the handshake method.
func IsHandshake(m Message) bool {
	return m.Kind == KindCall && m.Node == InterfaceNode &&
		m.Aspect == InterfaceAspect && m.Member == HandshakeMethod
}
