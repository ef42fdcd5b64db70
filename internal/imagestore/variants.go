package imagestore

import (
	"bytes"
	"fmt"
	"image"

	// Decoders for the formats distributors ship.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/HugoSmits86/nativewebp"
	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// VariantWidths are the maximum widths of the responsive variants.
var VariantWidths = map[string]int{
	types.VariantThumb:  400,
	types.VariantMedium: 800,
	types.VariantLarge:  1200,
}

// ResizedVariants lists the generated variants in generation order.
var ResizedVariants = []string{types.VariantThumb, types.VariantMedium, types.VariantLarge}

// VariantExt is the extension of every generated variant.
const VariantExt = ".webp"

// Encoder renders a resized image as WebP.
type Encoder struct {
	Policy  string
	Ext     string
	quality float32 // 0 for lossless
}

// EncoderForPolicy maps an encoder policy to a concrete encoder. Unknown policies fall back to
// lossy_webp_q85.
func EncoderForPolicy(policy string) Encoder {
	switch policy {
	case config.EncoderLossless:
		return Encoder{Policy: policy, Ext: VariantExt}
	case config.EncoderLossy95:
		return Encoder{Policy: policy, Ext: VariantExt, quality: 95}
	default:
		return Encoder{Policy: config.EncoderLossy85, Ext: VariantExt, quality: 85}
	}
}

// Lossless reports whether the encoder keeps every pixel.
func (e Encoder) Lossless() bool {
	return e.quality == 0
}

// Encode writes img as VP8L (lossless) or VP8 (lossy) WebP.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if e.Lossless() {
		if err := nativewebp.Encode(&buf, toNRGBA(img), nil); err != nil {
			return nil, fmt.Errorf("failed to encode lossless webp: %w", err)
		}
		return buf.Bytes(), nil
	}
	if err := webp.Encode(&buf, img, &webp.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode webp q%.0f: %w", e.quality, err)
	}
	return buf.Bytes(), nil
}

// Decoded is a source image with its format name as reported by image.Decode.
type Decoded struct {
	Image  image.Image
	Format string
}

// Decode reads an image of any registered format.
func Decode(data []byte) (*Decoded, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Decoded{Image: img, Format: format}, nil
}

// Resize scales img to maxWidth preserving the aspect ratio. Images already narrower are
// returned unchanged.
func Resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth || w == 0 {
		return img
	}
	nh := int(float64(h)*float64(maxWidth)/float64(w) + 0.5)
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// toNRGBA converts img to non-premultiplied RGBA, the layout the lossless encoder reads.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// formatExt maps an image.Decode format name to a file extension.
func formatExt(format, fallback string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp", "bmp", "tiff":
		return "." + format
	default:
		if fallback != "" {
			return fallback
		}
		return ".bin"
	}
}
