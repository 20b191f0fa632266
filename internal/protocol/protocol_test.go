package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseCommandVocabulary(t *testing.T) {
	cases := []struct {
		payload []byte
		want    Command
		ok      bool
	}{
		{[]byte{0x01}, CmdStart, true},
		{[]byte{0x02}, CmdAck, true},
		{[]byte{0x03}, CmdRetry, true},
		{[]byte{0x04}, CmdComplete, true},
		{[]byte{0x05}, CmdCancel, true},
		{[]byte{0x06}, 0, false},
		{[]byte{}, 0, false},
		{[]byte{0x01, 0x02}, 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseCommand(tc.payload)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parse %v: got (%v,%v) want (%v,%v)", tc.payload, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	for _, c := range []Command{CmdStart, CmdAck, CmdRetry, CmdComplete, CmdCancel} {
		got, ok := ParseCommand(EncodeCommand(c))
		if !ok || got != c {
			t.Fatalf("round trip %v: got (%v,%v)", c, got, ok)
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	in := Metadata{TotalBytes: 100, ChunkCount: 5, SenderName: "Night Shift"}
	blob, err := EncodeMetadata(in)
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	out, err := DecodeMetadata(blob)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestMetadataZeroPayloadRoundTrip(t *testing.T) {
	in := Metadata{TotalBytes: 0, ChunkCount: 0, SenderName: "Day Team"}
	blob, err := EncodeMetadata(in)
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	out, err := DecodeMetadata(blob)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestMetadataValidation(t *testing.T) {
	if err := (Metadata{SenderName: " "}).Validate(); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for blank sender name, got %v", err)
	}
	if err := (Metadata{TotalBytes: 0, ChunkCount: 1, SenderName: "x"}).Validate(); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for chunks without bytes, got %v", err)
	}
	if err := (Metadata{TotalBytes: 10, ChunkCount: 0, SenderName: "x"}).Validate(); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for bytes without chunks, got %v", err)
	}
}

func TestDecodeMetadataRejectsGarbage(t *testing.T) {
	if _, err := DecodeMetadata([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
	// Well-formed TLV with a missing required field.
	blob, err := EncodeMetadata(Metadata{TotalBytes: 10, ChunkCount: 1, SenderName: "x"})
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	if _, err := DecodeMetadata(blob[:15]); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata for truncated blob, got %v", err)
	}
}

func TestSlicePaginatesBlob(t *testing.T) {
	blob := []byte("abcdefghij")

	var got []byte
	offset := 0
	for {
		window, err := Slice(blob, offset, 4)
		if err != nil {
			t.Fatalf("slice at %d: %v", offset, err)
		}
		if len(window) == 0 {
			break
		}
		got = append(got, window...)
		offset += len(window)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("paginated read mismatch: got %q", got)
	}
}

func TestSliceBeyondEndIsEmptyNotError(t *testing.T) {
	blob := []byte("abc")
	window, err := Slice(blob, 3, 4)
	if err != nil {
		t.Fatalf("slice at end: %v", err)
	}
	if len(window) != 0 {
		t.Fatalf("expected empty window, got %q", window)
	}
	window, err = Slice(blob, 100, 4)
	if err != nil {
		t.Fatalf("slice past end: %v", err)
	}
	if len(window) != 0 {
		t.Fatalf("expected empty window, got %q", window)
	}
}

func TestSliceRejectsBadWindow(t *testing.T) {
	if _, err := Slice([]byte("abc"), -1, 4); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for negative offset, got %v", err)
	}
	if _, err := Slice([]byte("abc"), 0, 0); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for zero max, got %v", err)
	}
}
