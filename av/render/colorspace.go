package render

import (
	"fmt"
	"image"
	"math"
)

// ColorRange selects the YUV value-range convention.
type ColorRange uint8

const (
	// RangeLimited is studio swing: Y in [16,235], chroma 128±112.
	RangeLimited ColorRange = iota
	// RangeFull uses all 256 code values.
	RangeFull
)

// String returns a string representation of the range.
func (r ColorRange) String() string {
	if r == RangeFull {
		return "full"
	}
	return "limited"
}

// ParseColorRange converts a configuration string to a ColorRange.
func ParseColorRange(s string) (ColorRange, error) {
	switch s {
	case "limited", "":
		return RangeLimited, nil
	case "full":
		return RangeFull, nil
	default:
		return RangeLimited, fmt.Errorf("unknown color range %q", s)
	}
}

// BT.709 luma coefficients expanded into the inverse matrix.
const (
	bt709RV = 1.5748
	bt709GU = -0.1873
	bt709GV = -0.4681
	bt709BU = 1.8556
)

// yuvToRGB709 converts normalized samples (each in [0,1]) to RGB in [0,1].
// This is the reference for the fragment stage of the YUV program.
func yuvToRGB709(y, u, v float64, limited bool) (r, g, b float64) {
	if limited {
		y = (y - 16.0/255) * (255.0 / 219)
		u = (u - 128.0/255) * (255.0 / 224)
		v = (v - 128.0/255) * (255.0 / 224)
	} else {
		u -= 128.0 / 255
		v -= 128.0 / 255
	}

	r = clamp01(y + bt709RV*v)
	g = clamp01(y + bt709GU*u + bt709GV*v)
	b = clamp01(y + bt709BU*u)
	return r, g, b
}

// ycbcrToRGBA709 converts a full-range 4:2:0 image into dst, which must
// cover the same rectangle.
func ycbcrToRGBA709(dst *image.RGBA, src *image.YCbCr) {
	b := src.Rect
	for py := b.Min.Y; py < b.Max.Y; py++ {
		for px := b.Min.X; px < b.Max.X; px++ {
			yi, ci := src.YOffset(px, py), src.COffset(px, py)
			r, g, bl := yuvToRGB709(
				float64(src.Y[yi])/255,
				float64(src.Cb[ci])/255,
				float64(src.Cr[ci])/255,
				false,
			)
			o := dst.PixOffset(px, py)
			dst.Pix[o] = toByte(r)
			dst.Pix[o+1] = toByte(g)
			dst.Pix[o+2] = toByte(bl)
			dst.Pix[o+3] = 0xff
		}
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// expandLuma maps a limited-range luma code to full range.
func expandLuma(y byte) byte {
	return clampByte((float64(y) - 16) * 255 / 219)
}

// expandChroma maps a limited-range chroma code to full range.
func expandChroma(c byte) byte {
	return clampByte((float64(c)-128)*255/224 + 128)
}

func clampByte(x float64) byte {
	x = math.Round(x)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x)
}

// toByte converts a normalized channel to an 8-bit code value.
func toByte(x float64) byte {
	return clampByte(x * 255)
}
