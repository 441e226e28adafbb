package wire

import (
	"fmt"

	"github.com/c360/socketkit/errors"
)

// Encoding identifies a textual representation of wire bytes.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding validates an encoding name from the tool boundary. An empty
// name selects utf-8.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case "":
		return EncodingUTF8, nil
	case EncodingUTF8, EncodingHex, EncodingBase64:
		return Encoding(name), nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: unknown encoding %q", errors.ErrInvalidEncoding, name),
			"wire", "ParseEncoding", "encoding selection")
	}
}

// DecodePayload converts caller-supplied text into wire bytes using the
// given encoding, then appends the optional hex terminator. Only base64 can
// fail; hex and utf-8 are total.
func DecodePayload(data string, encoding Encoding, terminatorHex string) ([]byte, error) {
	var payload []byte
	switch encoding {
	case EncodingBase64:
		decoded, err := DecodeBase64(data)
		if err != nil {
			return nil, err
		}
		payload = decoded
	case EncodingHex:
		payload = DecodeHex(data)
	case EncodingUTF8, "":
		payload = DecodeText(data)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown encoding %q", errors.ErrInvalidEncoding, encoding),
			"wire", "DecodePayload", "encoding selection")
	}

	return AppendTerminator(payload, terminatorHex), nil
}

// EncodeChunk renders one buffer chunk in the given encoding for display.
func EncodeChunk(chunk []byte, encoding Encoding) (string, error) {
	switch encoding {
	case EncodingHex:
		return EncodeHex(chunk), nil
	case EncodingBase64:
		return EncodeBase64(chunk), nil
	case EncodingUTF8, "":
		return EncodeText(chunk), nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: unknown encoding %q", errors.ErrInvalidEncoding, encoding),
			"wire", "EncodeChunk", "encoding selection")
	}
}
