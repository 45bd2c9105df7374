// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wsproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame opcodes from RFC 6455 section 5.2. Only the subset the tester
// traffic actually uses is handled; everything else is skipped.
const (
	OpcodeText  byte = 0x1
	OpcodeClose byte = 0x8
	OpcodePing  byte = 0x9
	OpcodePong  byte = 0xA
)

// MaxFrameSize bounds the payload length a single frame may declare.
// Result documents for the largest experiments stay well under 16 MiB,
// so anything bigger indicates a broken or hostile peer.
const MaxFrameSize = 16 << 20

const (
	finBit     = 0x80
	maskBit    = 0x80
	opcodeMask = 0x0F
	lenMask    = 0x7F

	len16Marker = 126
	len64Marker = 127
)

// ErrFrameTooLarge is returned when a frame declares a payload length
// above MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("wsproto: frame exceeds %d bytes", MaxFrameSize)

// Frame is a single decoded websocket frame.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// EncodeText builds an unmasked text frame around payload.
//
// Server-to-client frames are never masked (RFC 6455 section 5.1). The
// length field uses the shortest of the three encodings: 7-bit for
// payloads up to 125 bytes, 16-bit big endian up to 65535, and 64-bit
// big endian beyond that.
func EncodeText(payload []byte) []byte {
	return encodeFrame(OpcodeText, payload)
}

func encodeFrame(opcode byte, payload []byte) []byte {
	n := len(payload)
	var header []byte
	switch {
	case n <= 125:
		header = []byte{finBit | opcode, byte(n)}
	case n <= 0xFFFF:
		header = []byte{finBit | opcode, len16Marker, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = []byte{finBit | opcode, len64Marker, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	frame := make([]byte, 0, len(header)+n)
	frame = append(frame, header...)
	frame = append(frame, payload...)
	return frame
}

// ReadFrame reads exactly one frame from r.
//
// Client-to-server frames are masked per the RFC, but unmasked frames
// are tolerated since local test clients commonly skip masking. The
// mask key, when present, is applied in place before the payload is
// returned.
//
// Fragmented messages are not supported: the FIN bit is assumed set and
// continuation frames are not reassembled. The command traffic this
// server carries never fragments.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	opcode := hdr[0] & opcodeMask
	masked := hdr[1]&maskBit != 0

	length := uint64(hdr[1] & lenMask)
	switch length {
	case len16Marker:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("wsproto: short 16-bit length: %w", err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64Marker:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, fmt.Errorf("wsproto: short 64-bit length: %w", err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return Frame{}, fmt.Errorf("wsproto: short mask key: %w", err)
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wsproto: short payload: %w", err)
	}
	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}
	return Frame{Opcode: opcode, Payload: payload}, nil
}
