package icons

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MaxIconPixels bounds the declared width*height of an icon. Headers are
// checked before decoding so a small payload cannot force a huge allocation.
const MaxIconPixels = 4096 * 4096

// Decodable reports whether data decodes into a non-empty image in one of
// the registered formats (PNG, JPEG, GIF, WebP) no larger than MaxIconPixels.
func Decodable(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return false
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxIconPixels {
		return false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return !img.Bounds().Empty()
}
