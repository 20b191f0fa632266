package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		U64Field(1, 12345),
		U32Field(2, 7),
		StringField(3, "Night Shift"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(out))
	}
	if v, err := out[0].U64(); err != nil || v != 12345 {
		t.Fatalf("u64 field: v=%d err=%v", v, err)
	}
	if v, err := out[1].U32(); err != nil || v != 7 {
		t.Fatalf("u32 field: v=%d err=%v", v, err)
	}
	if v, err := out[2].String(); err != nil || v != "Night Shift" {
		t.Fatalf("string field: v=%q err=%v", v, err)
	}
	if out[3].ID != 9999 || out[3].Type != TypeBytes || !bytes.Equal(out[3].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[3])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestFieldAccessorsRejectTypeMismatch(t *testing.T) {
	f := StringField(1, "not a number")
	if _, err := f.U32(); err == nil {
		t.Fatalf("expected type mismatch for U32")
	}
	if _, err := f.U64(); err == nil {
		t.Fatalf("expected type mismatch for U64")
	}
	if _, err := U32Field(2, 5).String(); err == nil {
		t.Fatalf("expected type mismatch for String")
	}
}

func TestGetFieldMissingID(t *testing.T) {
	fields := []Field{U32Field(1, 1)}
	if _, ok := GetField(fields, 2); ok {
		t.Fatalf("expected missing field")
	}
}
