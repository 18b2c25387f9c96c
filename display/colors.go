package display

import "image/color"

// The memory LCD is 1 bit per pixel. Drawing happens in RGBA and Flush
// thresholds back down to these two values.
var (
	On  = color.Gray{Y: 0x00} // dark pixel, bit set in the transferred frame
	Off = color.Gray{Y: 0xFF} // background
)

// onThreshold is the luminance below which an RGBA pixel counts as On.
// Antialiased edges land on whichever side is nearer.
const onThreshold = 0x80

func isOn(r, g, b uint8) bool {
	// Rec. 601 luma in integer form.
	y := (299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000
	return y < onThreshold
}
