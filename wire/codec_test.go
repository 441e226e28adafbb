package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socketkit/errors"
)

func TestDecodeHexPlainPairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{"uppercase pairs", "48656C6C6F", []byte("Hello")},
		{"lowercase pairs", "48656c6c6f", []byte("Hello")},
		{"spaced pairs", "48 65 6c 6c 6f", []byte("Hello")},
		{"0x prefix", "0x48656C6C6F", []byte("Hello")},
		{"prefix per byte", "0x48 0x65 0x6c 0x6c 0x6f", []byte("Hello")},
		{"newlines stripped", "4865\n6c6c\r\n6f", []byte("Hello")},
		{"crlf bytes", "0D0A", []byte("\r\n")},
		{"empty string", "", []byte{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := DecodeHex(test.input)
			if !bytes.Equal(got, test.expected) {
				t.Errorf("DecodeHex(%q) = %v, expected %v", test.input, got, test.expected)
			}
		})
	}
}

func TestDecodeHexLegacyEscapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{"pure escapes", `\x48\x65\x6C\x6C\x6F`, []byte("Hello")},
		{"mixed literal and escapes", `Hello\x0D\x0A`, []byte("Hello\r\n")},
		{"escapes then literal", `\x3EPROMPT`, []byte(">PROMPT")},
		{"interleaved", `A\x00B\x00C`, []byte{'A', 0, 'B', 0, 'C'}},
		{"invalid escape digits stay literal", `\xZZ`, []byte(`\xZZ`)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := DecodeHex(test.input)
			if !bytes.Equal(got, test.expected) {
				t.Errorf("DecodeHex(%q) = %v, expected %v", test.input, got, test.expected)
			}
		})
	}
}

func TestDecodeHexFallbackToText(t *testing.T) {
	// Malformed hex never errors; the original input is taken as UTF-8.
	tests := []string{
		"not-valid-hex!",
		"48656",     // odd length
		"GET / 1.0", // stray characters survive cleaning
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			got := DecodeHex(input)
			if !bytes.Equal(got, []byte(input)) {
				t.Errorf("DecodeHex(%q) = %v, expected literal fallback", input, got)
			}
		})
	}
}

func TestHexRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("Hello"),
		{0x00, 0xFF, 0x0D, 0x0A, 0x80},
		{},
	}

	for _, payload := range payloads {
		encoded := EncodeHex(payload)
		assert.Equal(t, payload, append([]byte{}, DecodeHex(encoded)...))
	}

	assert.Equal(t, "48656c6c6f", EncodeHex([]byte("Hello")), "hex output must be lowercase, unseparated")
}

func TestBase64RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("Hello"),
		{0x00, 0xFF, 0x80, 0x7F},
		{},
	}

	for _, payload := range payloads {
		decoded, err := DecodeBase64(EncodeBase64(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, append([]byte{}, decoded...))
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	_, err := DecodeBase64("not valid base64!!")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.True(t, errors.Is(err, errors.ErrInvalidEncoding))
	assert.Contains(t, err.Error(), "not valid base64!!")
}

func TestEncodeTextReplacement(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid utf-8", []byte("héllo"), "héllo"},
		{"lone continuation byte", []byte{'A', 0x80, 'B'}, "A�B"},
		{"one replacement per bad byte", []byte{0xFF, 0xFE}, "��"},
		{"truncated sequence", []byte{'A', 0xE2, 0x82}, "A��"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := EncodeText(test.input); got != test.expected {
				t.Errorf("EncodeText(%v) = %q, expected %q", test.input, got, test.expected)
			}
		})
	}
}

func TestTextViewIgnoreDropsInvalidBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid passes through", []byte("PING :server\r\n"), "PING :server\r\n"},
		{"invalid bytes dropped", []byte{'P', 0xFF, 'I', 0x80, 'N', 'G'}, "PING"},
		{"all invalid", []byte{0xFF, 0xFE}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := TextViewIgnore(test.input); got != test.expected {
				t.Errorf("TextViewIgnore(%v) = %q, expected %q", test.input, got, test.expected)
			}
		})
	}
}

func TestAppendTerminator(t *testing.T) {
	assert.Equal(t, []byte("PONG\r\n"), AppendTerminator([]byte("PONG"), "0D0A"))
	assert.Equal(t, []byte("PONG"), AppendTerminator([]byte("PONG"), ""))

	// Terminator goes through the same permissive hex decoding.
	assert.Equal(t, []byte("DATA\r\n"), AppendTerminator([]byte("DATA"), `\x0D\x0A`))
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected Encoding
		wantErr  bool
	}{
		{"", EncodingUTF8, false},
		{"utf-8", EncodingUTF8, false},
		{"hex", EncodingHex, false},
		{"base64", EncodingBase64, false},
		{"ascii", "", true},
	}

	for _, test := range tests {
		enc, err := ParseEncoding(test.input)
		if test.wantErr {
			require.Error(t, err, "input %q", test.input)
			assert.True(t, errors.IsInvalid(err))
			continue
		}
		require.NoError(t, err, "input %q", test.input)
		assert.Equal(t, test.expected, enc)
	}
}

func TestDecodePayload(t *testing.T) {
	got, err := DecodePayload("GET / HTTP/1.0", EncodingUTF8, "0D0A0D0A")
	require.NoError(t, err)
	assert.Equal(t, []byte("GET / HTTP/1.0\r\n\r\n"), got)

	got, err = DecodePayload("504f4e47", EncodingHex, "0D0A")
	require.NoError(t, err)
	assert.Equal(t, []byte("PONG\r\n"), got)

	got, err = DecodePayload(EncodeBase64([]byte{0x01, 0x02}), EncodingBase64, "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, got)

	_, err = DecodePayload("%%%", EncodingBase64, "")
	require.Error(t, err)
}

func TestEncodeChunk(t *testing.T) {
	chunk := []byte{0xDE, 0xAD}

	got, err := EncodeChunk(chunk, EncodingHex)
	require.NoError(t, err)
	assert.Equal(t, "dead", got)

	got, err = EncodeChunk(chunk, EncodingBase64)
	require.NoError(t, err)
	assert.Equal(t, EncodeBase64(chunk), got)

	got, err = EncodeChunk([]byte("ok"), EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = EncodeChunk(chunk, Encoding("ebcdic"))
	require.Error(t, err)
}
