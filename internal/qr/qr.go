// Package qr renders pairing codes into web-displayable images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const pngSize = 256

// PNGBase64 encodes a pairing code as a QR PNG and returns it
// base64-encoded, ready for an <img src="data:image/png;base64,..."> tag.
func PNGBase64(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, pngSize)
	if err != nil {
		return "", fmt.Errorf("encode pairing QR: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
