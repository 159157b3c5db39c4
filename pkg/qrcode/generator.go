// Package qrcode renders pairing codes as scannable PNG images.
package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	"waprofiles/pkg/constants"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrGenerateFailed = errors.New("failed to generate QR code")
)

const dataURLPrefix = "data:image/png;base64,"

// PNG encodes content as a PNG QR code of size pixels. A non-positive size
// falls back to the default.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = constants.DefaultQRImageSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrGenerateFailed, err)
	}
	return png, nil
}

// DataURL returns the PNG as a base64 data URL usable in an <img> tag.
func DataURL(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
