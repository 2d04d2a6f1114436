// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
)

func mustCall(t *testing.T, seq uint64, node NodeID, aspect, method string, args any) Message {
	t.Helper()
	m, err := NewCall(seq, node, aspect, method, args)
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	translation := Vec3{1, 2.5, -3}
	rotation := IdentityQuat
	result, err := NewResponse(1, Ref(1))
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	signal, err := NewSignal(4, "spatial", "moved", map[string]any{"to": Vec3{0, 1, 0}})
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}

	tests := []struct {
		name    string
		message Message
	}{
		{"handshake", mustCall(t, 1, InterfaceNode, "interface", "handshake", map[string]any{"version": 1})},
		{"call without args", mustCall(t, 7, 3, "node", "destroy", nil)},
		{"transform args", mustCall(t, 2, 1, "spatial", "set_local_transform", Transform{Translation: &translation, Rotation: &rotation})},
		{"node ref result", result},
		{"void response", Message{Kind: KindResponse, Seq: 9}},
		{"error response", NewErrorResponse(3, Errorf(CodeUnknownNode, "%s", NodeID(44)))},
		{"signal", signal},
		{"binary blob", mustCall(t, 5, 2, "drawable", "load_model", map[string]any{"data": []byte{0, 1, 2, 0xff}})},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			frame, err := Encode(test.message, EncodeOptions{})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(frame, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, test.message) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, test.message)
			}
		})
	}
}

// randomMessage builds an arbitrary valid message from rng.
func randomMessage(t *testing.T, rng *rand.Rand) Message {
	t.Helper()
	randomString := func() string {
		const letters = "abcdefghijklmnopqrstuvwxyz_"
		var builder strings.Builder
		for range 1 + rng.IntN(12) {
			builder.WriteByte(letters[rng.IntN(len(letters))])
		}
		return builder.String()
	}
	randomValue := func() any {
		switch rng.IntN(6) {
		case 0:
			return rng.Int64()
		case 1:
			return randomString()
		case 2:
			return Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		case 3:
			return Quat{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		case 4:
			return Ref(NodeID(rng.Uint64()))
		default:
			return []any{randomString(), rng.Float64(), true, nil}
		}
	}
	seq := 1 + rng.Uint64N(1<<40)
	switch rng.IntN(4) {
	case 0:
		return mustCall(t, seq, NodeID(rng.Uint64N(1<<20)), randomString(), randomString(), map[string]any{randomString(): randomValue()})
	case 1:
		m, err := NewSignal(NodeID(rng.Uint64N(1<<20)), randomString(), randomString(), randomValue())
		if err != nil {
			t.Fatalf("NewSignal: %v", err)
		}
		return m
	case 2:
		m, err := NewResponse(seq, randomValue())
		if err != nil {
			t.Fatalf("NewResponse: %v", err)
		}
		return m
	default:
		return NewErrorResponse(seq, &Error{Code: ErrorCode(randomString()), Message: randomString()})
	}
}

func TestRoundTripRandomMessages(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	for iteration := range 500 {
		message := randomMessage(t, rng)
		options := EncodeOptions{}
		if iteration%2 == 0 {
			options.CompressThreshold = 1
		}
		frame, err := Encode(message, options)
		if err != nil {
			t.Fatalf("iteration %d: Encode(%+v): %v", iteration, message, err)
		}
		got, err := Decode(frame, 0)
		if err != nil {
			t.Fatalf("iteration %d: Decode: %v", iteration, err)
		}
		if !reflect.DeepEqual(got, message) {
			t.Fatalf("iteration %d: round trip mismatch:\n got  %+v\n want %+v", iteration, got, message)
		}
	}
}

func TestCompressedFrame(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("stardust ", 500)
	message := mustCall(t, 1, 2, "drawable", "set_text", map[string]any{"text": text})

	plain, err := Encode(message, EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	compressed, err := Encode(message, EncodeOptions{CompressThreshold: 256})
	if err != nil {
		t.Fatalf("Encode compressed: %v", err)
	}
	if compressed[1]&FlagCompressed == 0 {
		t.Fatal("compressed frame missing FlagCompressed")
	}
	if len(compressed) >= len(plain) {
		t.Errorf("compressed frame %d bytes, plain %d", len(compressed), len(plain))
	}

	got, err := Decode(compressed, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, message) {
		t.Error("compressed round trip mismatch")
	}
}

func TestEncodeSkipsCompressionBelowThreshold(t *testing.T) {
	t.Parallel()
	message := mustCall(t, 1, 0, "interface", "handshake", map[string]any{"version": 1})
	frame, err := Encode(message, EncodeOptions{CompressThreshold: 4096})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[1] != 0 {
		t.Errorf("flags = %#x, want 0", frame[1])
	}
}

func TestEncodeRejectsInvalidMessages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		message Message
	}{
		{"unknown kind", Message{Kind: 9, Seq: 1}},
		{"call without seq", Message{Kind: KindCall, Aspect: "node", Member: "destroy"}},
		{"call without method", Message{Kind: KindCall, Seq: 1, Aspect: "node"}},
		{"signal with seq", Message{Kind: KindSignal, Seq: 2, Aspect: "node", Member: "x"}},
		{"response with target", Message{Kind: KindResponse, Seq: 1, Aspect: "node"}},
		{"response with result and error", Message{Kind: KindResponse, Seq: 1, Result: []byte{0x01}, Error: &Error{Code: CodeTimeout}}},
		{"error without code", Message{Kind: KindResponse, Seq: 1, Error: &Error{}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := Encode(test.message, EncodeOptions{})
			if !IsProtocolError(err) {
				t.Errorf("Encode error = %v, want ProtocolError", err)
			}
		})
	}
}

func frameWith(kind, flags byte, payload []byte) []byte {
	frame := make([]byte, HeaderLength+len(payload))
	frame[0] = kind
	frame[1] = flags
	binary.BigEndian.PutUint32(frame[2:HeaderLength], uint32(len(payload)))
	copy(frame[HeaderLength:], payload)
	return frame
}

func TestDecodeMalformedFrames(t *testing.T) {
	t.Parallel()
	valid, err := Encode(mustCall(t, 1, 1, "node", "destroy", nil), EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	oversized := frameWith(byte(KindCall), 0, nil)
	binary.BigEndian.PutUint32(oversized[2:], 1024)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short header", []byte{1, 0, 0}},
		{"unknown kind", frameWith(0x7f, 0, valid[HeaderLength:])},
		{"zero kind", frameWith(0, 0, valid[HeaderLength:])},
		{"unknown flag", frameWith(byte(KindCall), 0x80, valid[HeaderLength:])},
		{"length mismatch", valid[:len(valid)-1]},
		{"trailing frame bytes", append(append([]byte{}, valid...), 0x00)},
		{"oversized declared length", oversized},
		{"empty payload", frameWith(byte(KindCall), 0, nil)},
		{"not cbor", frameWith(byte(KindCall), 0, []byte{0xff, 0xff})},
		{"cbor array not map", frameWith(byte(KindCall), 0, []byte{0x82, 0x01, 0x02})},
		{"trailing cbor", frameWith(byte(KindCall), 0, append(append([]byte{}, valid[HeaderLength:]...), 0x01))},
		{"wrong field type", frameWith(byte(KindCall), 0, []byte{0xa1, 0x01, 0x61, 'x'})},
		{"compressed without prefix", frameWith(byte(KindCall), FlagCompressed, []byte{0x00})},
		{"compressed garbage", frameWith(byte(KindCall), FlagCompressed, []byte{0, 0, 0, 8, 0xff, 0xff, 0xff})},
		{"compressed size bomb", frameWith(byte(KindCall), FlagCompressed, []byte{0xff, 0xff, 0xff, 0xff, 0x00})},
		{"response shaped as call", frameWith(byte(KindResponse), 0, valid[HeaderLength:])},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(test.frame, 512)
			if err == nil {
				t.Fatal("Decode succeeded on malformed frame")
			}
			if !IsProtocolError(err) {
				t.Errorf("Decode error %v is not a ProtocolError", err)
			}
		})
	}
}

func TestDecodeTaggedValuesIntoAny(t *testing.T) {
	t.Parallel()
	message := mustCall(t, 1, 1, "test", "values", []any{Ref(5), Vec2{1, 2}, Vec3{1, 2, 3}, Quat{0, 0, 0, 1}})
	frame, err := Encode(message, EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var values []any
	if err := decoded.DecodeArgs(&values); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	want := []any{Ref(5), Vec2{1, 2}, Vec3{1, 2, 3}, Quat{0, 0, 0, 1}}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("values = %#v, want %#v", values, want)
	}
}

func TestReaderWriterStream(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	writer := NewWriter(&buffer, EncodeOptions{})
	messages := []Message{
		mustCall(t, 1, 0, "interface", "handshake", map[string]any{"version": 1}),
		mustCall(t, 2, 0, "interface", "create_node", map[string]any{"aspects": []string{"spatial"}}),
		{Kind: KindResponse, Seq: 1},
	}
	for _, message := range messages {
		if err := writer.WriteMessage(message); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}

	reader := NewReader(&buffer, 0)
	for index, want := range messages {
		got, err := reader.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: ReadMessage: %v", index, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("message %d mismatch: got %+v, want %+v", index, got, want)
		}
	}
	if _, err := reader.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame: err = %v, want io.EOF", err)
	}
}

func TestReaderTruncatedFrame(t *testing.T) {
	t.Parallel()
	frame, err := Encode(mustCall(t, 1, 1, "node", "destroy", nil), EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, cut := range []int{3, HeaderLength + 1} {
		reader := NewReader(bytes.NewReader(frame[:cut]), 0)
		if _, err := reader.ReadMessage(); !IsProtocolError(err) {
			t.Errorf("cut at %d: err = %v, want ProtocolError", cut, err)
		}
	}
}

func TestReaderTransportError(t *testing.T) {
	t.Parallel()
	broken := errors.New("connection reset")
	reader := NewReader(errorReader{broken}, 0)
	_, err := reader.ReadMessage()
	if !errors.Is(err, broken) {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
	if IsProtocolError(err) {
		t.Error("transport error reported as protocol error")
	}
}

type errorReader struct{ err error }

func (r errorReader) Read([]byte) (int, error) { return 0, r.err }

func TestAsError(t *testing.T) {
	t.Parallel()
	typed := Errorf(CodePermissionDenied, "not yours")
	if got := AsError(typed); got != typed {
		t.Errorf("AsError(typed) = %v, want same pointer", got)
	}
	if got := AsError(errors.New("loop")); got.Code != CodeAspectError || got.Message != "loop" {
		t.Errorf("AsError(plain) = %+v", got)
	}
	if AsError(nil) != nil {
		t.Error("AsError(nil) != nil")
	}
}

func FuzzDecode(f *testing.F) {
	seed, err := Encode(Message{Kind: KindCall, Seq: 1, Aspect: "interface", Member: "handshake"}, EncodeOptions{})
	if err != nil {
		f.Fatalf("Encode: %v", err)
	}
	f.Add(seed)
	f.Add([]byte{1, 1, 0, 0, 0, 4, 0, 0, 0, 0})
	f.Add([]byte{3, 0, 0, 0, 0, 1, 0xa0})
	f.Fuzz(func(t *testing.T, frame []byte) {
		message, err := Decode(frame, 1<<16)
		if err != nil {
			if !IsProtocolError(err) {
				t.Fatalf("non-protocol error: %v", err)
			}
			return
		}
		again, err := Encode(message, EncodeOptions{})
		if err != nil {
			t.Fatalf("decoded message does not re-encode: %v", err)
		}
		if _, err := Decode(again, 1<<16); err != nil {
			t.Fatalf("re-encoded message does not decode: %v", err)
		}
	})
}
