package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/enginecore/internal/testutil/testlog"
)

func TestEncodeStampsHeader(t *testing.T) {
	testlog.Start(t)
	buf, err := Encode(Packet{Header: Header{Kind: 3, Sequence: 42}, Payload: []byte("ping")}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderLen+4 {
		t.Fatalf("unexpected length %d", len(buf))
	}
	out, err := Decode(buf, DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version || out.Header.Kind != 3 || out.Header.Sequence != 42 {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, []byte("ping")) {
		t.Fatalf("payload mismatch: %q", out.Payload)
	}
}

func TestDecodeMalformedIsDeterministic(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode([]byte{1, 2, 3}, DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}

	buf, _ := Encode(Packet{Payload: []byte("abcdef")}, DefaultLimits())
	if _, err := Decode(buf[:len(buf)-2], DefaultLimits()); !errors.Is(err, ErrPayloadTrunc) {
		t.Fatalf("expected ErrPayloadTrunc, got %v", err)
	}

	bad := append([]byte(nil), buf...)
	bad[0] = 0xff
	if _, err := Decode(bad, DefaultLimits()); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}

	ver := append([]byte(nil), buf...)
	ver[5] = 9
	if _, err := Decode(ver, DefaultLimits()); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestLimitsEnforced(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 4}
	if _, err := Encode(Packet{Payload: []byte("too long")}, limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on encode, got %v", err)
	}
	buf, _ := Encode(Packet{Payload: []byte("too long")}, DefaultLimits())
	if _, err := Decode(buf, limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on decode, got %v", err)
	}
}
