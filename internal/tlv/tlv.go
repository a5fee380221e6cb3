// Package tlv implements the tag-length-value encoding used for ZATCA QR
// payloads. Each record is a 1-byte tag, a 1-byte length and the raw value;
// a QR payload is the base64 of the concatenated records.
package tlv

import (
	"encoding/base64"
	"fmt"
)

// MaxValueLen is the largest value a single record can carry. The length
// field is one byte, so anything longer cannot be represented.
const MaxValueLen = 255

// ValueTooLongError is returned when a value overflows the length byte
type ValueTooLongError struct {
	Tag byte
	Len int
}

func (e *ValueTooLongError) Error() string {
	return fmt.Sprintf("tlv: value for tag %d is %d bytes, max is %d", e.Tag, e.Len, MaxValueLen)
}

// TruncatedError is returned when decoding runs out of bytes mid-record
type TruncatedError struct {
	Offset int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("tlv: truncated record at offset %d", e.Offset)
}

// Record is a single decoded tag-length-value entry
type Record struct {
	Tag   byte
	Value []byte
}

// Encode prepends the tag and length bytes to value.
// Values longer than MaxValueLen are rejected, never truncated.
func Encode(tag byte, value []byte) ([]byte, error) {
	if len(value) > MaxValueLen {
		return nil, &ValueTooLongError{Tag: tag, Len: len(value)}
	}
	out := make([]byte, 0, len(value)+2)
	out = append(out, tag, byte(len(value)))
	out = append(out, value...)
	return out, nil
}

// EncodeString encodes a UTF-8 string value
func EncodeString(tag byte, value string) ([]byte, error) {
	return Encode(tag, []byte(value))
}

// EncodeSequence concatenates the records and base64-encodes the result
func EncodeSequence(records []Record) (string, error) {
	var buf []byte
	for _, r := range records {
		b, err := Encode(r.Tag, r.Value)
		if err != nil {
			return "", err
		}
		buf = append(buf, b...)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeAll parses a concatenation of records
func DecodeAll(data []byte) ([]Record, error) {
	var records []Record
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return nil, &TruncatedError{Offset: i}
		}
		tag := data[i]
		length := int(data[i+1])
		if i+2+length > len(data) {
			return nil, &TruncatedError{Offset: i}
		}
		value := make([]byte, length)
		copy(value, data[i+2:i+2+length])
		records = append(records, Record{Tag: tag, Value: value})
		i += 2 + length
	}
	return records, nil
}

// DecodeSequence reverses EncodeSequence
func DecodeSequence(payload string) ([]Record, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("tlv: invalid base64 payload: %w", err)
	}
	return DecodeAll(data)
}
