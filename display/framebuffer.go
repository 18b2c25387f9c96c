// Package display owns the memory LCD. Drawing goes into an in-memory
// gg backbuffer; Flush thresholds it to 1 bit per pixel and pushes the
// frame to the device. Access is serialised by Locked.
package display

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"

	"betrusted/hal"
	"betrusted/heap"
)

// Surface is the drawable view of the display handed out by a borrow.
type Surface interface {
	Init(clockHz uint32) error
	Size() image.Point
	Clear()
	DrawText(pt image.Point, s string)
	DrawCircle(center image.Point, radius int)
	Flush() error
}

// Framebuffer renders into a gg context sized to the LCD.
type Framebuffer struct {
	Log *logrus.Entry

	lcd   hal.LCD
	alloc heap.Allocator
	face  font.Face

	ctx    *gg.Context
	frame  []byte
	stride int
}

var _ Surface = (*Framebuffer)(nil)

// NewFramebuffer binds a framebuffer to the LCD. The 1-bpp transfer
// buffer comes from alloc when Init runs.
func NewFramebuffer(lcd hal.LCD, alloc heap.Allocator, log *logrus.Entry) *Framebuffer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Framebuffer{
		Log:   log,
		lcd:   lcd,
		alloc: alloc,
		face:  inconsolata.Bold8x16,
	}
}

// Init brings up the LCD at clockHz and sizes the backbuffer to it.
// It is safe to call multiple times.
func (fb *Framebuffer) Init(clockHz uint32) error {
	if fb.ctx != nil {
		return nil
	}
	if err := fb.lcd.Init(clockHz); err != nil {
		return errors.Wrap(err, "display: lcd init")
	}

	w, h := fb.lcd.Size()
	if w <= 0 || h <= 0 {
		return errors.Errorf("display: lcd reports size %dx%d", w, h)
	}

	stride := (w + 7) / 8
	size := uint32(stride * h)
	addr, err := fb.alloc.Alloc(size)
	if err != nil {
		return errors.Wrap(err, "display: frame buffer")
	}
	frame, err := fb.alloc.Bytes(addr, size)
	if err != nil {
		return errors.Wrap(err, "display: frame buffer")
	}

	fb.Log.WithFields(logrus.Fields{
		"width":  w,
		"height": h,
		"frame":  fmt.Sprintf("%#x", addr),
	}).Debug("display: initialized")

	fb.ctx = gg.NewContext(w, h)
	fb.ctx.SetFontFace(fb.face)
	fb.frame = frame
	fb.stride = stride
	fb.Clear()
	return nil
}

// Size returns the display dimensions in pixels.
func (fb *Framebuffer) Size() image.Point {
	w, h := fb.lcd.Size()
	return image.Pt(w, h)
}

// mustBeInitialized panics with ErrNotInitialized when drawing comes
// before Init.
func (fb *Framebuffer) mustBeInitialized() {
	if fb.ctx == nil {
		panic(ErrNotInitialized)
	}
}

// Clear fills the backbuffer with Off.
func (fb *Framebuffer) Clear() {
	fb.mustBeInitialized()
	fb.ctx.SetColor(Off)
	fb.ctx.Clear()
}

// DrawText draws s with its top-left corner at pt.
func (fb *Framebuffer) DrawText(pt image.Point, s string) {
	fb.mustBeInitialized()
	ascent := fb.face.Metrics().Ascent.Ceil()
	fb.ctx.SetColor(On)
	fb.ctx.DrawString(s, float64(pt.X), float64(pt.Y+ascent))
}

// DrawCircle draws a filled On disc with an Off outline.
func (fb *Framebuffer) DrawCircle(center image.Point, radius int) {
	fb.mustBeInitialized()
	fb.ctx.DrawCircle(float64(center.X), float64(center.Y), float64(radius))
	fb.ctx.SetColor(On)
	fb.ctx.FillPreserve()
	fb.ctx.SetColor(Off)
	fb.ctx.SetLineWidth(1)
	fb.ctx.Stroke()
}

// Flush packs the backbuffer into the 1-bpp frame and transfers it. A
// device failure is returned, never retried.
func (fb *Framebuffer) Flush() error {
	if fb.ctx == nil {
		return ErrNotInitialized
	}

	im, ok := fb.ctx.Image().(*image.RGBA)
	if !ok {
		return errors.New("display: backbuffer is not RGBA")
	}

	size := fb.Size()
	width, height := size.X, size.Y

	// Clamp to image bounds.
	if width > im.Bounds().Dx() {
		width = im.Bounds().Dx()
	}
	if height > im.Bounds().Dy() {
		height = im.Bounds().Dy()
	}
	// Clamp to the frame buffer.
	if fb.stride*height > len(fb.frame) {
		height = len(fb.frame) / fb.stride
	}

	clear(fb.frame)
	srcPix := im.Pix
	srcStride := im.Stride

	for y := 0; y < height; y++ {
		srcRow := srcPix[y*srcStride:]
		dstRow := fb.frame[y*fb.stride:]
		for x := 0; x < width; x++ {
			si := x * 4
			if isOn(srcRow[si+0], srcRow[si+1], srcRow[si+2]) {
				dstRow[x/8] |= 0x80 >> (x % 8)
			}
		}
	}

	if err := fb.lcd.Transfer(fb.frame); err != nil {
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}
	return nil
}

// Image returns the backbuffer. Nil before Init.
func (fb *Framebuffer) Image() image.Image {
	if fb.ctx == nil {
		return nil
	}
	return fb.ctx.Image()
}

// SavePNG writes the backbuffer to path.
func (fb *Framebuffer) SavePNG(path string) error {
	if fb.ctx == nil {
		return ErrNotInitialized
	}
	return fb.ctx.SavePNG(path)
}

// Pixel reports whether the pixel at p was On in the last flushed frame.
func (fb *Framebuffer) Pixel(p image.Point) bool {
	if fb.frame == nil || p.X < 0 || p.Y < 0 || p.X >= fb.stride*8 {
		return false
	}
	i := p.Y*fb.stride + p.X/8
	if i >= len(fb.frame) {
		return false
	}
	return fb.frame[i]&(0x80>>(p.X%8)) != 0
}
