// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/stardust/lib/codec"
)

// ClientState is what a session remembers about one client.
type ClientState struct {
	// Name is the name the client gave in its handshake.
	Name string `cbor:"name,omitempty"`

	// Command and Dir relaunch the client. They come from the peer
	// credentials of its connection.
	Command []string `cbor:"command,omitempty"`
	Dir     string   `cbor:"dir,omitempty"`

	// Data is the client's answer to interface.save_state.
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// fileMagic starts every state file. The final byte is the format
// version.
var fileMagic = [4]byte{'S', 'D', 'S', 1}

// checksumKey domain-separates state checksums from other BLAKE3 uses.
var checksumKey = [32]byte{
	's', 't', 'a', 'r', 'd', 'u', 's', 't', '.', 's', 'e', 's', 's', 'i', 'o', 'n',
	'.', 's', 't', 'a', 't', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ErrCorrupt is returned for state files that fail to parse or
// verify.
var ErrCorrupt = errors.New("corrupt session state")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("session: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		panic("session: zstd decoder initialization failed: " + err.Error())
	}
}

func checksum(data []byte) [32]byte {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("session: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Encode serializes state: magic, checksum of the CBOR payload, then
// the zstd-compressed payload.
func Encode(state ClientState) ([]byte, error) {
	payload, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding client state: %w", err)
	}
	sum := checksum(payload)
	out := make([]byte, 0, len(fileMagic)+len(sum)+len(payload))
	out = append(out, fileMagic[:]...)
	out = append(out, sum[:]...)
	return zstdEncoder.EncodeAll(payload, out), nil
}

// Decode parses and verifies a state file.
func Decode(data []byte) (ClientState, error) {
	var state ClientState
	header := len(fileMagic) + 32
	if len(data) < header || !bytes.Equal(data[:len(fileMagic)], fileMagic[:]) {
		return state, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	payload, err := zstdDecoder.DecodeAll(data[header:], nil)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum := checksum(payload); !bytes.Equal(sum[:], data[len(fileMagic):header]) {
		return state, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if err := codec.Unmarshal(payload, &state); err != nil {
		return state, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return state, nil
}
