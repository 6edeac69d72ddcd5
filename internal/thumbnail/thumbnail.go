// Package thumbnail derives fixed-size previews and inline blur placeholders for uploaded images.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	DefaultWidth  = 300
	DefaultHeight = 300

	blurWidth = 16
)

// ErrNotImage is returned for content the deriver does not handle.
var ErrNotImage = errors.New("not an image")

// Result is a derived preview.
type Result struct {
	Data        []byte
	ContentType string
	// BlurDataURL is a tiny blurred JPEG as a data: URL, usable as a UI placeholder.
	BlurDataURL string
}

// Deriver produces a thumbnail from source bytes. Implementations may fail per item.
type Deriver interface {
	Derive(ctx context.Context, data []byte, fileName, contentType string) (*Result, error)
}

// ImagingDeriver crops to a fixed size with disintegration/imaging.
type ImagingDeriver struct {
	Width  int
	Height int
}

func NewImagingDeriver() *ImagingDeriver {
	return &ImagingDeriver{Width: DefaultWidth, Height: DefaultHeight}
}

// IsImage reports whether contentType names an image.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// IsVideo reports whether contentType names a video.
func IsVideo(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "video/")
}

func (d *ImagingDeriver) Derive(ctx context.Context, data []byte, fileName, contentType string) (*Result, error) {
	if !IsImage(contentType) {
		return nil, ErrNotImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}

	format, err := imaging.FormatFromFilename(fileName)
	if err != nil {
		format = imaging.JPEG
	}
	thumb := imaging.Fill(src, d.Width, d.Height, imaging.Center, imaging.Lanczos)
	var out bytes.Buffer
	if err := imaging.Encode(&out, thumb, format, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	blur := imaging.Blur(imaging.Resize(src, blurWidth, 0, imaging.Box), 1.5)
	var blurBuf bytes.Buffer
	if err := imaging.Encode(&blurBuf, blur, imaging.JPEG, imaging.JPEGQuality(40)); err != nil {
		return nil, fmt.Errorf("encode blur: %w", err)
	}

	return &Result{
		Data:        out.Bytes(),
		ContentType: formatContentType(format),
		BlurDataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(blurBuf.Bytes()),
	}, nil
}

func formatContentType(f imaging.Format) string {
	switch f {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.BMP:
		return "image/bmp"
	case imaging.TIFF:
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
