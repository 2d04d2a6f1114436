// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// HeaderLength is the fixed size of a frame header: kind, flags, and a
// big-endian uint32 payload length.
const HeaderLength = 6

// DefaultMaxPayload bounds a frame payload when the caller does not
// configure one. Model uploads go through the renderer, not frames, so
// 16 MiB is generous.
const DefaultMaxPayload = 16 * 1024 * 1024

// FlagCompressed marks an LZ4 block payload prefixed with its
// uncompressed length (uint32 big-endian).
const FlagCompressed byte = 0x01

const knownFlags = FlagCompressed

// EncodeOptions controls frame encoding.
type EncodeOptions struct {
	// CompressThreshold enables LZ4 compression for payloads of at
	// least this many bytes. Zero disables compression.
	CompressThreshold int
}

// Encode validates m and returns its complete frame.
func Encode(m Message, options EncodeOptions) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	payload, err := mode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", m.Kind, err)
	}

	var flags byte
	if options.CompressThreshold > 0 && len(payload) >= options.CompressThreshold {
		if compressed, ok := compressPayload(payload); ok {
			payload = compressed
			flags |= FlagCompressed
		}
	}
	if uint64(len(payload)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%s payload length %d overflows frame header", m.Kind, len(payload))
	}

	frame := make([]byte, HeaderLength+len(payload))
	frame[0] = byte(m.Kind)
	frame[1] = flags
	binary.BigEndian.PutUint32(frame[2:HeaderLength], uint32(len(payload)))
	copy(frame[HeaderLength:], payload)
	return frame, nil
}

// Decode parses one complete frame. maxPayload bounds both the framed
// and the decompressed payload length; zero means DefaultMaxPayload.
// Any malformed input returns a *ProtocolError.
func Decode(frame []byte, maxPayload int) (Message, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(frame) < HeaderLength {
		return Message{}, protocolErrorf(nil, "frame of %d bytes shorter than header", len(frame))
	}
	kind, flags, length, err := parseHeader(frame[:HeaderLength], maxPayload)
	if err != nil {
		return Message{}, err
	}
	if uint64(len(frame)-HeaderLength) != uint64(length) {
		return Message{}, protocolErrorf(nil, "header declares %d payload bytes, frame has %d", length, len(frame)-HeaderLength)
	}
	return decodePayload(kind, flags, frame[HeaderLength:], maxPayload)
}

func parseHeader(header []byte, maxPayload int) (Kind, byte, uint32, error) {
	kind := Kind(header[0])
	flags := header[1]
	length := binary.BigEndian.Uint32(header[2:HeaderLength])
	if !kind.valid() {
		return 0, 0, 0, protocolErrorf(nil, "unknown message kind %d", header[0])
	}
	if flags&^knownFlags != 0 {
		return 0, 0, 0, protocolErrorf(nil, "unknown frame flags %#x", flags)
	}
	if uint64(length) > uint64(maxPayload) {
		return 0, 0, 0, protocolErrorf(nil, "payload length %d exceeds maximum %d", length, maxPayload)
	}
	return kind, flags, length, nil
}

func decodePayload(kind Kind, flags byte, payload []byte, maxPayload int) (Message, error) {
	if flags&FlagCompressed != 0 {
		decompressed, err := decompressPayload(payload, maxPayload)
		if err != nil {
			return Message{}, err
		}
		payload = decompressed
	}
	if len(payload) == 0 {
		return Message{}, protocolErrorf(nil, "empty %s payload", kind)
	}

	var m Message
	if err := mode.Unmarshal(payload, &m); err != nil {
		return Message{}, protocolErrorf(err, "decoding %s payload", kind)
	}
	m.Kind = kind
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func compressPayload(payload []byte) ([]byte, bool) {
	destination := make([]byte, 4+lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, destination[4:], nil)
	if err != nil || written == 0 || written+4 >= len(payload) {
		return nil, false
	}
	binary.BigEndian.PutUint32(destination[:4], uint32(len(payload)))
	return destination[:4+written], true
}

func decompressPayload(payload []byte, maxPayload int) ([]byte, error) {
	if len(payload) < 4 {
		return nil, protocolErrorf(nil, "compressed payload of %d bytes missing length prefix", len(payload))
	}
	size := binary.BigEndian.Uint32(payload[:4])
	if uint64(size) > uint64(maxPayload) {
		return nil, protocolErrorf(nil, "decompressed length %d exceeds maximum %d", size, maxPayload)
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(payload[4:], destination)
	if err != nil {
		return nil, protocolErrorf(err, "decompressing payload")
	}
	if uint32(read) != size {
		return nil, protocolErrorf(nil, "decompressed %d bytes, header declared %d", read, size)
	}
	return destination, nil
}

// Reader reads frames from a byte stream.
type Reader struct {
	r          io.Reader
	maxPayload int
	header     [HeaderLength]byte
}

// NewReader returns a frame reader over r. maxPayload of zero means
// DefaultMaxPayload.
func NewReader(r io.Reader, maxPayload int) *Reader {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{r: r, maxPayload: maxPayload}
}

// ReadMessage reads and decodes the next frame. A stream that ends
// cleanly between frames returns io.EOF. A stream that ends inside a
// frame, or carries a malformed frame, returns a *ProtocolError.
// Transport errors are returned wrapped.
func (r *Reader) ReadMessage() (Message, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, protocolErrorf(err, "truncated frame header")
		}
		return Message{}, fmt.Errorf("read frame header: %w", err)
	}
	kind, flags, length, err := parseHeader(r.header[:], r.maxPayload)
	if err != nil {
		return Message{}, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Message{}, protocolErrorf(err, "truncated %s payload", kind)
			}
			return Message{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return decodePayload(kind, flags, payload, r.maxPayload)
}

// Writer writes frames to a byte stream. It is not safe for concurrent
// use; each connection has exactly one writer goroutine.
type Writer struct {
	w       io.Writer
	options EncodeOptions
}

// NewWriter returns a frame writer over w.
func NewWriter(w io.Writer, options EncodeOptions) *Writer {
	return &Writer{w: w, options: options}
}

// SetOptions replaces the encoding options, used once the handshake
// has negotiated compression.
func (w *Writer) SetOptions(options EncodeOptions) {
	w.options = options
}

// WriteMessage encodes m and writes the whole frame in one call.
func (w *Writer) WriteMessage(m Message) error {
	frame, err := Encode(m, w.options)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", m.Kind, err)
	}
	return nil
}
