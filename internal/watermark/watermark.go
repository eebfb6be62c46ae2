// Package watermark hides a short ASCII signature in the least significant bit
// of an image's red channel.
//
// Each payload byte is written most significant bit first, followed by the
// terminator byte 0x03, one bit per pixel in raster order. Only lossless
// formats preserve the payload, so encoded output is always PNG.
package watermark

import (
	"errors"
	"image"
	"image/draw"
)

// Terminator marks the end of an embedded payload.
const Terminator byte = 0x03

// ErrCapacityExceeded is returned by EmbedStrict when the image has fewer
// pixels than the payload and terminator need.
var ErrCapacityExceeded = errors.New("watermark payload exceeds image capacity")

// Capacity returns how many payload bytes img can carry, excluding the
// terminator. Images smaller than one byte of bits report 0.
func Capacity(img image.Image) int {
	b := img.Bounds()
	n := b.Dx()*b.Dy()/8 - 1
	if n < 0 {
		return 0
	}
	return n
}

// Embed returns a copy of img whose red-channel LSBs carry signature.
// Bits beyond the image capacity are dropped; pixels past the payload and
// every other channel are left untouched.
func Embed(img image.Image, signature string) *image.NRGBA {
	out := toNRGBA(img, true)
	bits := bitStream(signature)

	pixels := len(out.Pix) / 4
	for i, bit := range bits {
		if i >= pixels {
			break
		}
		r := &out.Pix[i*4]
		*r = (*r & 0xFE) | bit
	}
	return out
}

// EmbedStrict is Embed but refuses to truncate the payload.
func EmbedStrict(img image.Image, signature string) (*image.NRGBA, error) {
	if len(signature) > Capacity(img) {
		return nil, ErrCapacityExceeded
	}
	return Embed(img, signature), nil
}

// Extract reads a payload from img. Decoding stops at the terminator; without
// one, every complete byte is returned. ok is false when nothing was decoded.
func Extract(img image.Image) (payload string, ok bool) {
	src := toNRGBA(img, false)

	var out []byte
	var cur byte
	var n int
	for y := 0; y < src.Rect.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < src.Rect.Dx(); x++ {
			cur = cur<<1 | row[x*4]&1
			n++
			if n < 8 {
				continue
			}
			if cur == Terminator {
				return result(out)
			}
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	return result(out)
}

func result(b []byte) (string, bool) {
	if len(b) == 0 {
		return "", false
	}
	return string(b), true
}

func bitStream(s string) []byte {
	payload := append([]byte(s), Terminator)
	bits := make([]byte, 0, len(payload)*8)
	for _, c := range payload {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (c>>uint(i))&1)
		}
	}
	return bits
}

// toNRGBA returns img as a zero-origin NRGBA with a tight stride. Unless
// copyAlways is set, an img that already has that shape is returned as is.
func toNRGBA(img image.Image, copyAlways bool) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && !copyAlways && b.Min == (image.Point{}) && n.Stride == b.Dx()*4 {
		return n
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
