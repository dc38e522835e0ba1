package wsroom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"empty", []byte{}, ""},
		{"ascii", []byte("post:1234"), "post:1234"},
		{"two byte", []byte("café"), "café"},
		{"three byte", []byte("タグ"), "タグ"},
		{"four byte", []byte("tag:🐱"), "tag:🐱"},
		{"nul byte", []byte{'a', 0x00, 'b'}, "a\x00b"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := DecodeUTF8(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestDecodeUTF8Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		offset   int
		bad      byte
		expected int
		message  string
	}{
		{
			name:    "lone continuation",
			input:   []byte{'a', 0x80},
			offset:  1,
			bad:     0x80,
			message: "wsroom: invalid UTF-8 start byte 0x80 at offset 1",
		},
		{
			name:    "invalid lead",
			input:   []byte{0xFF},
			offset:  0,
			bad:     0xFF,
			message: "wsroom: invalid UTF-8 start byte 0xff at offset 0",
		},
		{
			name:     "truncated",
			input:    []byte{'x', 0xE3, 0x82},
			offset:   1,
			bad:      0xE3,
			expected: 3,
			message:  "wsroom: truncated UTF-8 sequence starting with 0xe3 at offset 1 (expected 3-byte sequence)",
		},
		{
			name:     "bad continuation",
			input:    []byte{0xC3, 'A'},
			offset:   1,
			bad:      'A',
			expected: 2,
			message:  "wsroom: invalid UTF-8 continuation byte 0x41 at offset 1 (expected 2-byte sequence)",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := DecodeUTF8(test.input)
			assert.Empty(t, got)

			var utf8Err *UTF8Error
			require.True(t, errors.As(err, &utf8Err))
			assert.Equal(t, test.offset, utf8Err.Offset)
			assert.Equal(t, test.bad, utf8Err.Byte)
			assert.Equal(t, test.expected, utf8Err.Expected)
			assert.EqualError(t, err, test.message)
		})
	}
}
