package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary frame layout constants, per the fixed 25-byte header.
const (
	FrameHeaderSize = 25
	frameMagic      = 0xA7
	frameReserved   = 0x00

	correlationIDOffset = 3
	correlationIDSize   = 16
	payloadTypeOffset   = 19
	lengthOffset        = 21
)

// Flag bits within the header's flags byte.
const (
	FlagCompressed byte = 1 << 0
	FlagChunked    byte = 1 << 1
	FlagFinalChunk byte = 1 << 2
)

// PayloadKind enumerates the closed set of binary payload kinds.
type PayloadKind byte

const (
	PayloadScreenshotPNG  PayloadKind = 0x01
	PayloadScreenshotJPEG PayloadKind = 0x02
	PayloadVideoH264      PayloadKind = 0x03
	PayloadFileData       PayloadKind = 0x04
	PayloadHierarchyXML   PayloadKind = 0x05
)

// Frame is a decoded binary-channel message: a 25-byte header plus an
// opaque payload.
type Frame struct {
	Compressed    bool
	Chunked       bool
	FinalChunk    bool
	CorrelationID string // originating request id, truncated/zero-padded to 16 bytes
	PayloadKind   PayloadKind
	Payload       []byte
}

// correlationIDBytes truncates or zero-pads id to exactly 16 raw UTF-8
// bytes, per the spec's fixed (lossy) wire encoding.
func correlationIDBytes(id string) [correlationIDSize]byte {
	var buf [correlationIDSize]byte
	copy(buf[:], []byte(id))
	return buf
}

// EncodeFrame writes the 25-byte header followed by the payload. Pure:
// allocates only the output buffer.
func EncodeFrame(f *Frame) []byte {
	out := make([]byte, FrameHeaderSize+len(f.Payload))
	out[0] = frameMagic
	out[1] = frameReserved

	var flags byte
	if f.Compressed {
		flags |= FlagCompressed
	}
	if f.Chunked {
		flags |= FlagChunked
	}
	if f.FinalChunk {
		flags |= FlagFinalChunk
	}
	out[2] = flags

	cid := correlationIDBytes(f.CorrelationID)
	copy(out[correlationIDOffset:correlationIDOffset+correlationIDSize], cid[:])

	out[payloadTypeOffset] = 0x00
	out[payloadTypeOffset+1] = byte(f.PayloadKind)

	binary.BigEndian.PutUint32(out[lengthOffset:lengthOffset+4], uint32(len(f.Payload)))

	copy(out[FrameHeaderSize:], f.Payload)
	return out
}

// DecodeFrame validates the header and slices out the payload. The
// returned Frame's Payload aliases buf; callers that retain it across
// buffer reuse must copy.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < FrameHeaderSize {
		return nil, NewFrameProtocolError(fmt.Sprintf("frame too short: %d bytes", len(buf)))
	}
	if buf[0] != frameMagic {
		return nil, NewFrameProtocolError(fmt.Sprintf("bad magic byte: 0x%02X", buf[0]))
	}
	if buf[1] != frameReserved {
		return nil, NewFrameProtocolError(fmt.Sprintf("bad reserved byte: 0x%02X", buf[1]))
	}

	flags := buf[2]
	cid := buf[correlationIDOffset : correlationIDOffset+correlationIDSize]

	length := binary.BigEndian.Uint32(buf[lengthOffset : lengthOffset+4])
	if int(length) != len(buf)-FrameHeaderSize {
		return nil, NewFrameProtocolError(fmt.Sprintf("length mismatch: header=%d actual=%d", length, len(buf)-FrameHeaderSize))
	}

	return &Frame{
		Compressed:    flags&FlagCompressed != 0,
		Chunked:       flags&FlagChunked != 0,
		FinalChunk:    flags&FlagFinalChunk != 0,
		CorrelationID: string(cid),
		PayloadKind:   PayloadKind(buf[payloadTypeOffset+1]),
		Payload:       buf[FrameHeaderSize:],
	}, nil
}
