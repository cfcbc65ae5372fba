package wsclient

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/coder/wsclient/internal/errd"
)

const (
	finBit  = 1 << 7
	rsv1Bit = 1 << 6
	rsv2Bit = 1 << 5
	rsv3Bit = 1 << 4
	maskBit = 1 << 7

	// maxControlPayload is the maximum length of a control frame payload.
	// See https://tools.ietf.org/html/rfc6455#section-5.5.
	maxControlPayload = 125

	// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
	// Second byte contains mask flag and payload len.
	// Next 8 bytes are the maximum extended payload length.
	// Last 4 bytes are the mask key.
	maxHeaderSize = 1 + 1 + 8 + 4

	// payloadChunk bounds how much of a payload is allocated ahead of
	// the bytes actually received.
	payloadChunk = 32 << 10
)

// Frame is a single WebSocket frame.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
type Frame struct {
	Fin    bool
	RSV1   bool
	RSV2   bool
	RSV3   bool
	Opcode Opcode

	Masked  bool
	MaskKey [4]byte

	PayloadLength uint64
	Payload       []byte
}

// EncodeFrame returns opcode and payload as a single final frame masked
// with maskKey, the only kind of frame a client sends.
//
// A nil payload encodes a frame without payload, such as a bare close.
func EncodeFrame(op Opcode, maskKey [4]byte, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, maxHeaderSize+len(payload)), op, maskKey, payload)
}

// AppendFrame is like EncodeFrame but appends the frame to dst.
// payload itself is not modified.
func AppendFrame(dst []byte, op Opcode, maskKey [4]byte, payload []byte) []byte {
	dst = append(dst, finBit|byte(op))

	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, maskBit|byte(n))
	case n <= math.MaxUint16:
		dst = append(dst, maskBit|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, maskBit|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	dst = append(dst, maskKey[:]...)

	start := len(dst)
	dst = append(dst, payload...)
	Mask(maskKey, 0, dst[start:])
	return dst
}

// Mask applies the WebSocket masking algorithm to b in place.
// pos is the index into key of the first byte of b; the returned value
// is the position to continue with for the bytes that follow b.
// Masking twice with the same key and position restores b.
// See https://tools.ietf.org/html/rfc6455#section-5.3
func Mask(key [4]byte, pos int, b []byte) int {
	pos &= 3

	// Align to the start of the key so whole words can be xored.
	for len(b) > 0 && pos != 0 {
		b[0] ^= key[pos]
		b = b[1:]
		pos = (pos + 1) & 3
	}

	if len(b) >= 8 {
		key32 := binary.LittleEndian.Uint32(key[:])
		key64 := uint64(key32)<<32 | uint64(key32)
		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for i := range b {
		b[i] ^= key[pos]
		pos = (pos + 1) & 3
	}
	return pos
}

// DecodeFrame reads a single frame sent by a server from r.
// It is ReadFrame without a length limit.
func DecodeFrame(r io.Reader) (Frame, error) {
	return ReadFrame(r, -1)
}

// ReadFrame reads a single frame sent by a server from r.
//
// A masked frame, a set RSV bit, a reserved opcode or a fragmented or
// oversized control frame is reported as a *ProtocolError. Unless limit
// is negative, a data frame payload longer than limit is rejected with
// ErrMessageTooBig before any of it is read.
//
// The returned error matches io.EOF only when r ends before the first
// byte of a frame; a truncated frame is io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, limit int64) (_ Frame, err error) {
	defer errd.Wrap(&err, "failed to read frame")

	var b [8]byte
	_, err = io.ReadFull(r, b[:2])
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		Fin:    b[0]&finBit != 0,
		RSV1:   b[0]&rsv1Bit != 0,
		RSV2:   b[0]&rsv2Bit != 0,
		RSV3:   b[0]&rsv3Bit != 0,
		Opcode: Opcode(b[0] & 0xf),
		Masked: b[1]&maskBit != 0,
	}

	if f.Masked {
		return Frame{}, protocolErrorf("received masked frame from server")
	}
	if f.RSV1 || f.RSV2 || f.RSV3 {
		return Frame{}, protocolErrorf("received header with unexpected rsv bits set: %v:%v:%v", f.RSV1, f.RSV2, f.RSV3)
	}
	if f.Opcode.Reserved() {
		return Frame{}, protocolErrorf("received reserved opcode %v", f.Opcode)
	}

	switch length := b[1] &^ maskBit; length {
	case 126:
		_, err = io.ReadFull(r, b[:2])
		if err != nil {
			return Frame{}, eofIsUnexpected(err)
		}
		f.PayloadLength = uint64(binary.BigEndian.Uint16(b[:2]))
	case 127:
		_, err = io.ReadFull(r, b[:8])
		if err != nil {
			return Frame{}, eofIsUnexpected(err)
		}
		f.PayloadLength = binary.BigEndian.Uint64(b[:8])
		if f.PayloadLength > math.MaxInt64 {
			return Frame{}, protocolErrorf("received frame with most significant bit of the payload length set")
		}
	default:
		f.PayloadLength = uint64(length)
	}

	if f.Opcode.Control() {
		if !f.Fin {
			return Frame{}, protocolErrorf("received fragmented %v frame", f.Opcode)
		}
		if f.PayloadLength > maxControlPayload {
			return Frame{}, protocolErrorf("received %v frame with payload length %d", f.Opcode, f.PayloadLength)
		}
	}

	if limit >= 0 && !f.Opcode.Control() && f.PayloadLength > uint64(limit) {
		return Frame{}, ErrMessageTooBig
	}

	f.Payload, err = readPayload(r, f.PayloadLength)
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

// readPayload reads exactly n bytes from r. The transport may hand out
// fewer bytes than asked for per call so the buffer is grown as bytes
// arrive rather than allocated up front from an untrusted length.
func readPayload(r io.Reader, n uint64) ([]byte, error) {
	initial := n
	if initial > payloadChunk {
		initial = payloadChunk
	}
	p := make([]byte, 0, initial)

	for uint64(len(p)) < n {
		if len(p) == cap(p) {
			p = append(p, 0)[:len(p)]
		}

		end := cap(p)
		if rem := n - uint64(len(p)); uint64(end-len(p)) > rem {
			end = len(p) + int(rem)
		}

		m, err := r.Read(p[len(p):end])
		p = p[:len(p)+m]
		if err != nil && uint64(len(p)) < n {
			return nil, eofIsUnexpected(err)
		}
	}
	return p, nil
}

func eofIsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
