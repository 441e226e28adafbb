// Package wire provides stateless codecs between raw socket bytes and the
// textual representations used at the tool boundary: UTF-8 (lossy on
// display), hex in both plain-pair and legacy \xNN syntax, and base64.
//
// Decoding is deliberately permissive: malformed hex falls back to treating
// the input as literal UTF-8 text and
// never fails an operation. Base64 is the exception; a bad base64 payload is
// a real caller error and surfaces as a classified invalid-encoding error.
package wire

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/c360/socketkit/errors"
)

// hexEscapePattern matches one legacy \xNN escape (two hex digits, any case).
var hexEscapePattern = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)

// DecodeText converts caller-supplied text to wire bytes (UTF-8).
func DecodeText(s string) []byte {
	return []byte(s)
}

// EncodeText renders wire bytes as text for display. Byte sequences that are
// not valid UTF-8 are replaced with U+FFFD, one replacement per offending
// unit. Never fails.
func EncodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}

// TextViewIgnore renders wire bytes as text with invalid UTF-8 bytes dropped
// entirely. This is the view triggers match against; the buffered bytes are
// never altered.
func TextViewIgnore(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}

// DecodeHex parses a hex string into bytes. The primary format is plain hex
// pairs like "48656C6C6F"; "0x"/"0X" prefixes, spaces, CR and LF are
// stripped and case is ignored. Strings containing the literal substring
// `\x` are parsed in legacy escape mode instead: every \xNN run becomes one
// byte and any interleaved literal text is encoded as UTF-8, in original
// order, so "Hello\x0D\x0A" yields "Hello" followed by CR LF.
//
// DecodeHex never fails: if the cleaned string is not valid hex (odd length
// or stray characters), the original unmodified input is returned as UTF-8
// bytes.
func DecodeHex(s string) []byte {
	if strings.Contains(s, `\x`) {
		return decodeHexEscapes(s)
	}

	clean := strings.NewReplacer("0x", "", "0X", "", " ", "", "\n", "", "\r", "").Replace(s)
	decoded, err := hex.DecodeString(clean)
	if err != nil {
		// Permissive fallback: malformed hex is literal text, not an error.
		return []byte(s)
	}
	return decoded
}

// decodeHexEscapes handles the legacy \xNN syntax, including mixed content.
func decodeHexEscapes(s string) []byte {
	out := make([]byte, 0, len(s))
	last := 0
	for _, loc := range hexEscapePattern.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			out = append(out, s[last:loc[0]]...)
		}
		// Submatch is exactly two hex digits, cannot fail.
		b, _ := hex.DecodeString(s[loc[2]:loc[3]])
		out = append(out, b...)
		last = loc[1]
	}
	if last < len(s) {
		out = append(out, s[last:]...)
	}
	return out
}

// EncodeHex renders wire bytes as a lowercase hex-pair string with no
// separators or prefix.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeBase64 parses standard base64 into bytes. Unlike hex, a malformed
// payload is a classified invalid-encoding error carrying the offending
// input.
func DecodeBase64(s string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrInvalidEncoding, s, err),
			"wire", "DecodeBase64", "base64 decode")
	}
	return decoded, nil
}

// EncodeBase64 renders wire bytes as standard base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// AppendTerminator decodes terminatorHex via DecodeHex and concatenates it
// after b. An empty terminator returns b unchanged.
func AppendTerminator(b []byte, terminatorHex string) []byte {
	if terminatorHex == "" {
		return b
	}
	terminator := DecodeHex(terminatorHex)
	out := make([]byte, 0, len(b)+len(terminator))
	out = append(out, b...)
	return append(out, terminator...)
}
