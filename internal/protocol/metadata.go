package protocol

import (
	"fmt"
	"strings"

	"github.com/wardlink/signover/internal/protocol/tlv"
)

// Field IDs for the metadata blob.
const (
	FieldTotalBytes uint16 = 1
	FieldChunkCount uint16 = 2
	FieldSenderName uint16 = 3
)

// Metadata describes one advertised transfer. Fixed once a session starts.
type Metadata struct {
	TotalBytes uint64
	ChunkCount uint32
	SenderName string
}

func (m Metadata) Validate() error {
	if strings.TrimSpace(m.SenderName) == "" {
		return fmt.Errorf("%w: missing sender name", ErrInvalidMetadata)
	}
	if m.TotalBytes == 0 && m.ChunkCount != 0 {
		return fmt.Errorf("%w: chunk count without payload bytes", ErrInvalidMetadata)
	}
	if m.TotalBytes != 0 && m.ChunkCount == 0 {
		return fmt.Errorf("%w: payload bytes without chunk count", ErrInvalidMetadata)
	}
	return nil
}

// EncodeMetadata renders the metadata slot blob.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return tlv.EncodeFields([]tlv.Field{
		tlv.U64Field(FieldTotalBytes, m.TotalBytes),
		tlv.U32Field(FieldChunkCount, m.ChunkCount),
		tlv.StringField(FieldSenderName, m.SenderName),
	}), nil
}

// DecodeMetadata parses a fully reassembled metadata slot blob.
func DecodeMetadata(blob []byte) (Metadata, error) {
	fields, err := tlv.DecodeFields(blob)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	var m Metadata

	f, ok := tlv.GetField(fields, FieldTotalBytes)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing total bytes", ErrInvalidMetadata)
	}
	if m.TotalBytes, err = f.U64(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	f, ok = tlv.GetField(fields, FieldChunkCount)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing chunk count", ErrInvalidMetadata)
	}
	if m.ChunkCount, err = f.U32(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	f, ok = tlv.GetField(fields, FieldSenderName)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: missing sender name", ErrInvalidMetadata)
	}
	if m.SenderName, err = f.String(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Slice serves one offset-paginated read against a blob. A single read may
// not return the whole blob: the response holds at most maxBytes from
// offset, and an offset at or past the end yields an empty slice, which is
// how a reader detects the end of pagination.
func Slice(blob []byte, offset int, maxBytes int) ([]byte, error) {
	if offset < 0 || maxBytes <= 0 {
		return nil, fmt.Errorf("%w: bad read window offset=%d max=%d", ErrConfiguration, offset, maxBytes)
	}
	if offset >= len(blob) {
		return []byte{}, nil
	}
	end := offset + maxBytes
	if end > len(blob) {
		end = len(blob)
	}
	out := make([]byte, end-offset)
	copy(out, blob[offset:end])
	return out, nil
}
