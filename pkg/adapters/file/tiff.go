package file

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/aretw0/cadence/pkg/domain"
	"golang.org/x/image/tiff"
)

// EncodeTIFF writes img as a deflate-compressed 16-bit grayscale TIFF.
func EncodeTIFF(w io.Writer, img domain.Image) error {
	if len(img.Pix) != img.Width*img.Height {
		return fmt.Errorf("image has %d pixels, want %dx%d", len(img.Pix), img.Width, img.Height)
	}
	gray := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			gray.SetGray16(x, y, color.Gray16{Y: img.At(x, y)})
		}
	}
	return tiff.Encode(w, gray, &tiff.Options{Compression: tiff.Deflate})
}

// DecodeTIFF reads a grayscale TIFF back into an Image.
func DecodeTIFF(r io.Reader) (domain.Image, error) {
	decoded, err := tiff.Decode(r)
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to decode tiff: %w", err)
	}
	b := decoded.Bounds()
	img := domain.Image{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint16, b.Dx()*b.Dy())}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(decoded.At(x, y)).(color.Gray16)
			img.Pix[(y-b.Min.Y)*img.Width+(x-b.Min.X)] = g.Y
		}
	}
	return img, nil
}

// WriteTIFF stores img at path.
func WriteTIFF(path string, img domain.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := EncodeTIFF(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadTIFF loads an image written by WriteTIFF.
func ReadTIFF(path string) (domain.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()
	return DecodeTIFF(f)
}
