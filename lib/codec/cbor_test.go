// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

type sampleMessage struct {
	Action string `cbor:"action"`
	Client uint64 `cbor:"client,omitempty"`
	Count  int    `cbor:"count"`
}

type taggedRef uint64

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleMessage{Action: "status", Client: 7, Count: 42}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleMessage
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("non-deterministic encoding: %x vs %x", first, again)
		}
	}
}

func TestUnmarshalAnyUsesStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["nested"])
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	data := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	var decoded map[string]int
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestUnmarshalRejectsDeepNesting(t *testing.T) {
	// 64 nested single-element arrays.
	data := append(bytes.Repeat([]byte{0x81}, 64), 0x01)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected nesting depth error")
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data := []byte{0x01, 0x02}
	var decoded int
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestModeTagsDecodeIntoAny(t *testing.T) {
	tags := NewTagSet()
	if err := RegisterTag(tags, reflect.TypeOf(taggedRef(0)), 40001); err != nil {
		t.Fatalf("RegisterTag: %v", err)
	}
	mode, err := NewMode(tags)
	if err != nil {
		t.Fatalf("NewMode: %v", err)
	}

	data, err := mode.Marshal([]any{taggedRef(9), "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded []any
	if err := mode.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d items, want 2", len(decoded))
	}
	if ref, ok := decoded[0].(taggedRef); !ok || ref != 9 {
		t.Errorf("decoded[0] = %#v, want taggedRef(9)", decoded[0])
	}

	// Untagged integers must not decode into the tagged type.
	plain, err := Marshal(uint64(9))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var ref taggedRef
	if err := mode.Unmarshal(plain, &ref); err == nil {
		t.Error("expected error decoding untagged value into tagged type")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(sampleMessage{Action: "ping"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"ping"`) {
		t.Errorf("diagnostic %q missing action", diagnostic)
	}
}
