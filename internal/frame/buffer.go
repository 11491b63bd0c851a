// Package frame holds the decoded pixel buffers shared between the frame
// processors and the display consumer.
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// Layout describes how the bytes of a Buffer are arranged per pixel.
type Layout int

const (
	// LayoutBGRA is 4 bytes per pixel in blue, green, red, alpha order.
	LayoutBGRA Layout = iota
	// LayoutGray is 1 byte per pixel.
	LayoutGray
)

// Channels returns the number of bytes per pixel.
func (l Layout) Channels() int {
	if l == LayoutBGRA {
		return 4
	}
	return 1
}

func (l Layout) String() string {
	switch l {
	case LayoutBGRA:
		return "bgra"
	case LayoutGray:
		return "gray"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Buffer owns a contiguous height*width*channels byte array.
//
// A Buffer is filled by exactly one producer and is read-only once it has
// been pushed to a display queue.
type Buffer struct {
	layout Layout
	height int
	width  int
	data   []byte
}

// New allocates a zeroed buffer.
func New(layout Layout, height, width int) *Buffer {
	return &Buffer{
		layout: layout,
		height: height,
		width:  width,
		data:   make([]byte, height*width*layout.Channels()),
	}
}

// Wrap adopts data as the pixel storage of a new buffer. The length of data
// must match the shape exactly.
func Wrap(layout Layout, height, width int, data []byte) (*Buffer, error) {
	want := height * width * layout.Channels()
	if height < 0 || width < 0 || len(data) != want {
		return nil, fmt.Errorf("frame: %dx%d %s needs %d bytes, got %d", width, height, layout, want, len(data))
	}
	return &Buffer{layout: layout, height: height, width: width, data: data}, nil
}

// Layout returns the pixel layout.
func (b *Buffer) Layout() Layout { return b.layout }

// Height returns the number of rows.
func (b *Buffer) Height() int { return b.height }

// Width returns the number of pixels per row.
func (b *Buffer) Width() int { return b.width }

// Channels returns the number of bytes per pixel.
func (b *Buffer) Channels() int { return b.layout.Channels() }

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int { return b.width * b.layout.Channels() }

// Len returns the size of the pixel array in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes exposes the pixel array. Callers must not modify it after the
// buffer has been published.
func (b *Buffer) Bytes() []byte { return b.data }

// FlipHorizontal mirrors every row in place. Flipping twice restores the
// original contents.
func (b *Buffer) FlipHorizontal() {
	ch := b.layout.Channels()
	stride := b.Stride()
	for row := 0; row < b.height; row++ {
		line := b.data[row*stride : (row+1)*stride]
		for l, r := 0, (b.width-1)*ch; l < r; l, r = l+ch, r-ch {
			for k := 0; k < ch; k++ {
				line[l+k], line[r+k] = line[r+k], line[l+k]
			}
		}
	}
}

// Image converts the buffer into a standard library image for encoding.
// The returned image does not share memory with the buffer.
func (b *Buffer) Image() image.Image {
	rect := image.Rect(0, 0, b.width, b.height)
	if b.layout == LayoutGray {
		img := image.NewGray(rect)
		copy(img.Pix, b.data)
		return img
	}

	img := image.NewNRGBA(rect)
	for i := 0; i+3 < len(b.data); i += 4 {
		img.Pix[i+0] = b.data[i+2]
		img.Pix[i+1] = b.data[i+1]
		img.Pix[i+2] = b.data[i+0]
		img.Pix[i+3] = b.data[i+3]
	}
	return img
}

// At returns the color of a single pixel, mainly for diagnostics.
func (b *Buffer) At(x, y int) color.Color {
	ch := b.layout.Channels()
	off := y*b.Stride() + x*ch
	if b.layout == LayoutGray {
		return color.Gray{Y: b.data[off]}
	}
	return color.NRGBA{R: b.data[off+2], G: b.data[off+1], B: b.data[off], A: b.data[off+3]}
}
