// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Decoder limits. A frame comes from an untrusted peer, so the decoder
// refuses pathological nesting and collection sizes before allocating.
const (
	maxNestedLevels = 32
	maxArrayLength  = 1 << 16
	maxMapPairs     = 1 << 16
)

// Mode is a paired CBOR encoder and decoder sharing one tag set.
// The zero value is not usable; construct with NewMode.
type Mode struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// TagSet associates CBOR tag numbers with Go types so that tagged
// protocol values (node references, vectors) decode back to their
// registered type even when the target is any.
type TagSet = cbor.TagSet

// NewTagSet returns an empty tag set.
func NewTagSet() TagSet {
	return cbor.NewTagSet()
}

// RegisterTag adds a required tag for contentType to tags. Encoding a
// value of contentType always emits the tag; decoding into contentType
// requires it.
func RegisterTag(tags TagSet, contentType reflect.Type, number uint64) error {
	return tags.Add(cbor.TagOptions{
		EncTag: cbor.EncTagRequired,
		DecTag: cbor.DecTagRequired,
	}, contentType, number)
}

// NewMode builds an encoder with Core Deterministic Encoding (RFC 8949
// §4.2) and a hardened decoder. tags may be nil.
func NewMode(tags TagSet) (*Mode, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString

	decOptions := cbor.DecOptions{
		// Protocol arguments never use non-string map keys. Decoding
		// into any yields map[string]any rather than the CBOR default
		// map[interface{}]interface{}.
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayLength,
		MaxMapPairs:      maxMapPairs,
	}

	var mode Mode
	var err error
	if tags == nil {
		mode.enc, err = encOptions.EncMode()
	} else {
		mode.enc, err = encOptions.EncModeWithTags(tags)
	}
	if err != nil {
		return nil, err
	}
	if tags == nil {
		mode.dec, err = decOptions.DecMode()
	} else {
		mode.dec, err = decOptions.DecModeWithTags(tags)
	}
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

// Marshal encodes v with this mode.
func (m *Mode) Marshal(v any) ([]byte, error) {
	return m.enc.Marshal(v)
}

// Unmarshal decodes exactly one CBOR item from data into v. Trailing
// bytes after the item are an error.
func (m *Mode) Unmarshal(data []byte, v any) error {
	return m.dec.Unmarshal(data, v)
}

// NewEncoder returns a stream encoder writing to w.
func (m *Mode) NewEncoder(w io.Writer) *Encoder {
	return m.enc.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func (m *Mode) NewDecoder(r io.Reader) *Decoder {
	return m.dec.NewDecoder(r)
}

// standard is the untagged mode used for admin sockets and state files.
var standard *Mode

func init() {
	var err error
	standard, err = NewMode(nil)
	if err != nil {
		panic("codec: CBOR mode initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return standard.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return standard.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value. It implements
// cbor.Marshaler and cbor.Unmarshaler so it can be used to delay
// CBOR decoding or pre-encode CBOR output.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w using the
// standard mode.
func NewEncoder(w io.Writer) *Encoder {
	return standard.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r using the
// standard mode.
func NewDecoder(r io.Reader) *Decoder {
	return standard.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// entire contents of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
