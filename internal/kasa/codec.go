package kasa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// initialKey seeds the XOR autokey cipher.
	initialKey byte = 171

	// headerSize is the length prefix in front of every frame.
	headerSize = 4

	// maxFrameSize caps a reply. A full HS300 sysinfo is a few KB.
	maxFrameSize = 64 << 10
)

// Encrypt obfuscates plain with the autokey cipher. Each output byte is the
// input byte XOR the running key; the output byte becomes the next key.
func Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := initialKey
	for i, p := range plain {
		c := key ^ p
		out[i] = c
		key = c
	}
	return out
}

// Decrypt reverses Encrypt.
func Decrypt(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := initialKey
	for i, c := range cipher {
		out[i] = key ^ c
		key = c
	}
	return out
}

// WriteFrame encrypts plain and writes it with its length prefix in a
// single Write call.
func WriteFrame(w io.Writer, plain []byte) error {
	buf := make([]byte, headerSize+len(plain))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(plain))) //nolint:gosec // bounded by caller payload size
	copy(buf[headerSize:], Encrypt(plain))

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: write: %w", ErrConnectionFailed, err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns the decrypted
// payload.
//
// Returns:
//   - ErrEmptyResponse: connection closed before any byte, or length 0
//   - ErrMalformedResponse: truncated frame or length above maxFrameSize
//   - ErrConnectionFailed: any other read error (including timeouts)
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, classifyReadError(err, "read header")
	}

	size := binary.BigEndian.Uint32(header)
	if size == 0 {
		return nil, ErrEmptyResponse
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds %d", ErrMalformedResponse, size, maxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, classifyReadError(err, "read body")
	}
	return Decrypt(body), nil
}

func classifyReadError(err error, op string) error {
	switch {
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: connection closed", ErrEmptyResponse)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s: truncated frame", ErrMalformedResponse, op)
	default:
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, op, err)
	}
}
