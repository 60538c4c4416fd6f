package kasa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncrypt_KnownVector(t *testing.T) {
	// {"system":{"get_sysinfo":{}}} as produced by the vendor app.
	plain := []byte(`{"system":{"get_sysinfo":{}}}`)
	got := Encrypt(plain)

	want := []byte{0xd0, 0xf2, 0x81, 0xf8, 0x8b, 0xff, 0x9a, 0xf7}
	if !bytes.Equal(got[:len(want)], want) {
		t.Errorf("Encrypt() prefix = % x, want % x", got[:len(want)], want)
	}
	if !bytes.Equal(Decrypt(got), plain) {
		t.Error("Decrypt(Encrypt(x)) != x")
	}
}

func TestEncrypt_Empty(t *testing.T) {
	if len(Encrypt(nil)) != 0 || len(Decrypt(nil)) != 0 {
		t.Error("empty input should produce empty output")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"system":{"set_relay_state":{"state":1}}}`)

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	if got := binary.BigEndian.Uint32(buf.Bytes()[:4]); got != uint32(len(payload)) {
		t.Errorf("length prefix = %d, want %d", got, len(payload))
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() = %s, want %s", got, payload)
	}
}

func TestReadFrame_Errors(t *testing.T) {
	oversized := make([]byte, 4)
	binary.BigEndian.PutUint32(oversized, maxFrameSize+1)

	truncated := make([]byte, 4, 6)
	binary.BigEndian.PutUint32(truncated, 10)
	truncated = append(truncated, 0x01, 0x02)

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"closed before header", nil, ErrEmptyResponse},
		{"zero length", []byte{0, 0, 0, 0}, ErrEmptyResponse},
		{"partial header", []byte{0, 0}, ErrMalformedResponse},
		{"oversized", oversized, ErrMalformedResponse},
		{"truncated body", truncated, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChildID(t *testing.T) {
	tests := []struct {
		deviceID string
		id       string
		want     string
	}{
		{"8006ABC", "00", "8006ABC00"},
		{"8006ABC", "8006ABC01", "8006ABC01"},
		{"8006ABC", "", "8006ABC"},
	}
	for _, tt := range tests {
		if got := ChildID(tt.deviceID, tt.id); got != tt.want {
			t.Errorf("ChildID(%q, %q) = %q, want %q", tt.deviceID, tt.id, got, tt.want)
		}
	}
}
