package images

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Format identifies the on-disk encoding of a frame.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatGIF  Format = "gif"
)

// Decode reads a frame in any of the formats camera gateways hand us:
// JPEG, PNG, GIF (first frame), or WebP. The standard decoders are tried
// first; WebP is attempted explicitly because some snapshot services label
// it as JPEG.
func Decode(r io.Reader) (image.Image, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading image")
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory frame. See Decode.
func DecodeBytes(data []byte) (image.Image, Format, error) {
	if len(data) == 0 {
		return nil, "", errors.New("decoding image: empty input")
	}
	if img, name, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, Format(name), nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, FormatWebP, nil
	}
	return nil, "", errors.New("decoding image: unknown or unsupported format")
}

// Open loads a frame from disk.
func Open(path string) (image.Image, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	img, format, err := Decode(f)
	if err != nil {
		return nil, "", errors.Wrapf(err, "decoding %s", path)
	}
	return img, format, nil
}

// Save writes a frame to disk, choosing the encoder from the file
// extension. Unknown extensions are written as JPEG.
func Save(path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		defer f.Close()
		if err := webp.Encode(f, img, &webp.Options{Quality: 90}); err != nil {
			return errors.Wrapf(err, "encoding %s", path)
		}
		return nil
	case ".png", ".gif", ".tif", ".tiff", ".bmp", ".jpg", ".jpeg":
		return errors.Wrapf(imaging.Save(img, path), "saving %s", path)
	default:
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		defer f.Close()
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
			return errors.Wrapf(err, "encoding %s", path)
		}
		return nil
	}
}

// Crop extracts a region as a standalone image. The returned image has
// its origin at (0, 0) so backends can treat every region uniformly.
func Crop(img image.Image, r Rect) image.Image {
	return imaging.Crop(img, r.ToImageRect())
}
