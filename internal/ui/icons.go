package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Icon dimensions for system tray.
const iconSize = 22

// signalBars is the number of bars drawn in the tray icon.
const signalBars = 4

// Pre-generated PNG icons for the reachability states.
var (
	iconOfflinePNG     []byte
	iconUnreachablePNG []byte
	iconViaWWANPNG     []byte
	iconViaWiFiPNG     []byte
)

var dimBar = color.RGBA{90, 90, 90, 255}

func init() {
	iconOfflinePNG = generateSignalIcon(color.RGBA{128, 128, 128, 255}, 0)
	iconUnreachablePNG = generateSignalIcon(color.RGBA{229, 57, 53, 255}, 1)
	iconViaWWANPNG = generateSignalIcon(color.RGBA{255, 140, 0, 255}, 3)
	iconViaWiFiPNG = generateSignalIcon(color.RGBA{76, 175, 80, 255}, 4)
}

// generateSignalIcon draws ascending signal bars. The first lit bars use c,
// the rest are dimmed.
func generateSignalIcon(c color.RGBA, lit int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))

	const (
		barWidth  = 4
		barGap    = 1
		left      = 1
		bottom    = 20
		minHeight = 4
		step      = 5
	)

	for i := 0; i < signalBars; i++ {
		fill := dimBar
		if i < lit {
			fill = c
		}
		x0 := left + i*(barWidth+barGap)
		top := bottom - (minHeight + i*step) + 1
		for y := top; y <= bottom; y++ {
			for x := x0; x < x0+barWidth; x++ {
				img.Set(x, y, fill)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
