package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/frame"
)

var (
	// ErrUnsupportedFormat is returned for color formats that have no
	// display conversion (NV12, YUY2). It is not a failure.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrShortImage is returned when an image holds fewer bytes than its
	// dimensions require.
	ErrShortImage = errors.New("image data shorter than dimensions")
	// ErrSizeMismatch is returned when a decoded image does not have the
	// size declared by the capture.
	ErrSizeMismatch = errors.New("decoded size does not match capture")
)

// DecodeColor converts a color image to a BGRA buffer at source resolution.
func DecodeColor(img *device.Image) (*frame.Buffer, error) {
	switch img.Format {
	case device.PixelMJPG:
		return decodeMJPG(img)
	case device.PixelBGRA32:
		return copyBGRA(img)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, img.Format)
	}
}

func decodeMJPG(img *device.Image) (*frame.Buffer, error) {
	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	bounds := decoded.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if (img.Width > 0 && w != img.Width) || (img.Height > 0 && h != img.Height) {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSizeMismatch, w, h, img.Width, img.Height)
	}

	out := frame.New(frame.LayoutBGRA, h, w)
	dst := out.Bytes()

	switch src := decoded.(type) {
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			row := dst[y*w*4:]
			for x := 0; x < w; x++ {
				yi := src.YOffset(bounds.Min.X+x, bounds.Min.Y+y)
				ci := src.COffset(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, b := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				row[x*4+0], row[x*4+1], row[x*4+2], row[x*4+3] = b, g, r, 0xff
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := dst[y*w*4:]
			for x := 0; x < w; x++ {
				v := src.Pix[y*src.Stride+x]
				row[x*4+0], row[x*4+1], row[x*4+2], row[x*4+3] = v, v, v, 0xff
			}
		}
	default:
		for y := 0; y < h; y++ {
			row := dst[y*w*4:]
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(decoded.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				row[x*4+0], row[x*4+1], row[x*4+2], row[x*4+3] = c.B, c.G, c.R, c.A
			}
		}
	}
	return out, nil
}

func copyBGRA(img *device.Image) (*frame.Buffer, error) {
	w, h, stride := img.Width, img.Height, img.RowStride()
	rowBytes := w * 4
	if w <= 0 || h <= 0 || stride < rowBytes || len(img.Data) < stride*(h-1)+rowBytes {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d BGRA", ErrShortImage, len(img.Data), w, h)
	}
	out := frame.New(frame.LayoutBGRA, h, w)
	dst := out.Bytes()
	if stride == rowBytes {
		copy(dst, img.Data[:rowBytes*h])
		return out, nil
	}
	for y := 0; y < h; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], img.Data[y*stride:])
	}
	return out, nil
}

// NormalizeIR maps 16-bit little-endian IR samples to 8-bit gray with
// out = min(255, sample*255/ceiling). When flip is set the row is mirrored
// in the same pass.
func NormalizeIR(img *device.Image, ceiling uint32, flip bool) (*frame.Buffer, error) {
	if img.Format != device.PixelIR16 && img.Format != device.PixelDepth16 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, img.Format)
	}
	if ceiling == 0 {
		ceiling = 1
	}
	w, h, stride := img.Width, img.Height, img.RowStride()
	if w <= 0 || h <= 0 || stride < w*2 || len(img.Data) < stride*(h-1)+w*2 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d IR", ErrShortImage, len(img.Data), w, h)
	}

	out := frame.New(frame.LayoutGray, h, w)
	dst := out.Bytes()
	for y := 0; y < h; y++ {
		src := img.Data[y*stride:]
		row := dst[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			v := uint32(src[2*x]) | uint32(src[2*x+1])<<8
			scaled := v * 255 / ceiling
			if scaled > 255 {
				scaled = 255
			}
			if flip {
				row[w-1-x] = byte(scaled)
			} else {
				row[x] = byte(scaled)
			}
		}
	}
	return out, nil
}
