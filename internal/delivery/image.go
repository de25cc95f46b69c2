package delivery

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder; generated cards arrive as jpeg or png

	"golang.org/x/image/draw"
)

// MaxImageDimension is the longest side the messaging transport accepts
// before it starts re-compressing photos badly.
const MaxImageDimension = 2560

// Downscale shrinks an image so its longest side fits MaxImageDimension,
// re-encoding as JPEG. Images already within bounds are returned untouched.
func Downscale(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("delivery: decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= MaxImageDimension && h <= MaxImageDimension {
		return data, nil
	}

	scale := float64(MaxImageDimension) / float64(w)
	if h > w {
		scale = float64(MaxImageDimension) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(w)*scale), int(float64(h)*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("delivery: encode image: %w", err)
	}
	return out.Bytes(), nil
}
