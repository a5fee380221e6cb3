package tlv_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/zatca-engine/internal/tlv"
)

func TestEncode(t *testing.T) {
	out, err := tlv.EncodeString(1, "Fixzit Facility Co")
	require.NoError(t, err)

	assert.Equal(t, byte(1), out[0])
	assert.Equal(t, byte(len("Fixzit Facility Co")), out[1])
	assert.Equal(t, "Fixzit Facility Co", string(out[2:]))
}

func TestEncode_EmptyValue(t *testing.T) {
	out, err := tlv.Encode(3, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte{3, 0}, out)
}

func TestEncode_MaxLength(t *testing.T) {
	value := bytes.Repeat([]byte{'x'}, tlv.MaxValueLen)

	out, err := tlv.Encode(2, value)
	require.NoError(t, err)
	assert.Len(t, out, tlv.MaxValueLen+2)
	assert.Equal(t, byte(255), out[1])
}

func TestEncode_ValueTooLong(t *testing.T) {
	value := bytes.Repeat([]byte{'x'}, tlv.MaxValueLen+1)

	_, err := tlv.Encode(2, value)
	require.Error(t, err)

	var tooLong *tlv.ValueTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, byte(2), tooLong.Tag)
	assert.Equal(t, 256, tooLong.Len)
}

func TestRoundTrip(t *testing.T) {
	records := []tlv.Record{
		{Tag: 1, Value: []byte("Fixzit Facility Co")},
		{Tag: 2, Value: []byte("310122393500003")},
		{Tag: 3, Value: []byte("2026-02-10T09:30:00Z")},
		{Tag: 4, Value: []byte("273.13")},
		{Tag: 5, Value: []byte("35.63")},
	}

	payload, err := tlv.EncodeSequence(records)
	require.NoError(t, err)

	decoded, err := tlv.DecodeSequence(payload)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))

	for i, r := range records {
		assert.Equal(t, r.Tag, decoded[i].Tag)
		assert.Equal(t, r.Value, decoded[i].Value)
	}
}

func TestEncodeSequence_RejectsOversizedRecord(t *testing.T) {
	records := []tlv.Record{
		{Tag: 1, Value: []byte("ok")},
		{Tag: 2, Value: bytes.Repeat([]byte{'x'}, 300)},
	}

	_, err := tlv.EncodeSequence(records)

	var tooLong *tlv.ValueTooLongError
	require.ErrorAs(t, err, &tooLong)
}

func TestDecodeAll_Truncated(t *testing.T) {
	// Tag 1 claims 10 bytes but only 2 follow
	_, err := tlv.DecodeAll([]byte{1, 10, 'a', 'b'})

	var truncated *tlv.TruncatedError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, 0, truncated.Offset)
}

func TestDecodeAll_DanglingTag(t *testing.T) {
	_, err := tlv.DecodeAll([]byte{1})

	var truncated *tlv.TruncatedError
	require.ErrorAs(t, err, &truncated)
}

func TestDecodeSequence_InvalidBase64(t *testing.T) {
	_, err := tlv.DecodeSequence("not-base64!!!")
	require.Error(t, err)
}

func TestDecodeAll_BinaryValues(t *testing.T) {
	// Phase-2 tags carry raw digest bytes, not text
	digest := bytes.Repeat([]byte{0x00, 0xff}, 16)

	encoded, err := tlv.Encode(6, digest)
	require.NoError(t, err)

	records, err := tlv.DecodeAll(encoded)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, digest, records[0].Value)
}

func TestEncodeSequence_Base64Output(t *testing.T) {
	payload, err := tlv.EncodeSequence([]tlv.Record{{Tag: 1, Value: []byte("A")}})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 'A'}, raw)
}
