package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
)

// Image formats accepted by RenderViewport.
const (
	FormatPNG  = "PNG"
	FormatJPEG = "JPEG"
)

// DefaultViewportSize is the longest image edge used when none is given.
const DefaultViewportSize = 800

// MaxViewportSize is the largest longest edge RenderViewport accepts.
const MaxViewportSize = 4096

// maxGridLines bounds the grid lines drawn per axis.
const maxGridLines = 100

// pixelLimit keeps projected coordinates well inside the int range.
const pixelLimit = 1 << 20

var (
	viewportBackground = color.RGBA{R: 57, G: 57, B: 57, A: 255}
	viewportGrid       = color.RGBA{R: 72, G: 72, B: 72, A: 255}
	viewportAxisX      = color.RGBA{R: 160, G: 60, B: 60, A: 255}
	viewportAxisY      = color.RGBA{R: 100, G: 150, B: 60, A: 255}
	viewportCamera     = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	viewportLight      = color.RGBA{R: 240, G: 220, B: 120, A: 255}
	viewportActive     = color.RGBA{R: 255, G: 160, B: 40, A: 255}
)

// NormalizeFormat maps a user supplied format name to FormatPNG or
// FormatJPEG.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToUpper(format) {
	case "", "PNG":
		return FormatPNG, nil
	case "JPEG", "JPG":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("Unsupported image format: %s", format)
	}
}

// RenderViewport draws a top-down orthographic view of the visible objects
// and encodes it to w. The longest edge of the image is maxSize pixels.
func (s *Scene) RenderViewport(w io.Writer, maxSize int, format string) (int, int, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return 0, 0, err
	}
	if maxSize <= 0 {
		maxSize = DefaultViewportSize
	}
	if maxSize > MaxViewportSize {
		return 0, 0, fmt.Errorf("max_size %d exceeds the limit of %d pixels", maxSize, MaxViewportSize)
	}
	width := maxSize
	height := maxSize * 9 / 16
	if height < 1 {
		height = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: viewportBackground}, image.Point{}, draw.Src)

	v := s.fitView(width, height)
	v.grid(img)

	for _, obj := range s.Objects() {
		if !obj.Visible {
			continue
		}
		switch obj.Type {
		case TypeMesh:
			c := s.objectColor(obj)
			if obj.Primitive == "SPHERE" || obj.Primitive == "CYLINDER" {
				v.disc(img, obj.Location[0], obj.Location[1], math.Abs(obj.Scale[0]), c)
			} else {
				v.rect(img, obj.Location[0], obj.Location[1], math.Abs(obj.Scale[0]), math.Abs(obj.Scale[1]), c)
			}
		case TypeCamera:
			v.marker(img, obj.Location[0], obj.Location[1], 5, viewportCamera)
		case TypeLight:
			v.marker(img, obj.Location[0], obj.Location[1], 4, viewportLight)
		}
		if obj.Name == s.active {
			v.marker(img, obj.Location[0], obj.Location[1], 2, viewportActive)
		}
	}

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to encode viewport: %w", err)
	}
	return width, height, nil
}

func (s *Scene) objectColor(obj *Object) color.RGBA {
	rgba := [4]float64{0.8, 0.8, 0.8, 1}
	if len(obj.Materials) > 0 {
		if m, ok := s.materials[obj.Materials[0]]; ok {
			rgba = m.BaseColor
		}
	}
	return color.RGBA{R: channel(rgba[0]), G: channel(rgba[1]), B: channel(rgba[2]), A: 255}
}

func channel(f float64) uint8 {
	if math.IsNaN(f) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

// view maps world x/y to pixel coordinates.
type view struct {
	cx, cy float64
	scale  float64
	w, h   int
}

func (s *Scene) fitView(width, height int) view {
	minX, minY, maxX, maxY := -5.0, -5.0, 5.0, 5.0
	for _, obj := range s.objects {
		if !obj.Visible {
			continue
		}
		r := math.Max(math.Abs(obj.Scale[0]), math.Abs(obj.Scale[1]))
		minX = math.Min(minX, obj.Location[0]-r)
		maxX = math.Max(maxX, obj.Location[0]+r)
		minY = math.Min(minY, obj.Location[1]-r)
		maxY = math.Max(maxY, obj.Location[1]+r)
	}
	spanX := (maxX - minX) * 1.1
	spanY := (maxY - minY) * 1.1
	scale := math.Min(float64(width)/spanX, float64(height)/spanY)
	return view{
		cx:    (minX + maxX) / 2,
		cy:    (minY + maxY) / 2,
		scale: scale,
		w:     width,
		h:     height,
	}
}

func (v view) px(x, y float64) (int, int) {
	return toPixel(float64(v.w)/2 + (x-v.cx)*v.scale),
		toPixel(float64(v.h)/2 - (y-v.cy)*v.scale)
}

// toPixel rounds f and clamps it to ±pixelLimit. NaN maps to -pixelLimit,
// which is off every image.
func toPixel(f float64) int {
	switch {
	case math.IsNaN(f) || f < -pixelLimit:
		return -pixelLimit
	case f > pixelLimit:
		return pixelLimit
	}
	return int(math.Round(f))
}

// usable reports whether the view maps world units to a finite, positive
// pixel scale.
func (v view) usable() bool {
	return v.scale > 0 && !math.IsInf(v.scale, 0) &&
		!math.IsNaN(v.cx) && !math.IsInf(v.cx, 0) &&
		!math.IsNaN(v.cy) && !math.IsInf(v.cy, 0)
}

// gridStep returns the spacing between grid lines: 1, 2 or 5 times a power
// of ten, chosen so that span needs at most maxGridLines lines.
func gridStep(span float64) float64 {
	raw := span / maxGridLines
	if raw <= 1 {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * mag; step >= raw {
			return step
		}
	}
	return 10 * mag
}

// gridLines returns the multiples of step that fall in [lo, hi].
func gridLines(lo, hi, step float64) []float64 {
	first := math.Ceil(lo/step) * step
	var lines []float64
	for i := 0; i <= maxGridLines+1; i++ {
		x := first + float64(i)*step
		if x > hi {
			break
		}
		lines = append(lines, x)
	}
	return lines
}

func (v view) grid(img *image.RGBA) {
	if !v.usable() {
		return
	}
	halfW := float64(v.w) / 2 / v.scale
	halfH := float64(v.h) / 2 / v.scale
	step := gridStep(2 * math.Max(halfW, halfH))
	if math.IsInf(step, 0) || math.IsNaN(step) {
		return
	}

	for _, x := range gridLines(v.cx-halfW, v.cx+halfW, step) {
		c := viewportGrid
		if x == 0 {
			c = viewportAxisY
		}
		px, _ := v.px(x, 0)
		for y := 0; y < v.h; y++ {
			img.SetRGBA(px, y, c)
		}
	}
	for _, y := range gridLines(v.cy-halfH, v.cy+halfH, step) {
		c := viewportGrid
		if y == 0 {
			c = viewportAxisX
		}
		_, py := v.px(0, y)
		for x := 0; x < v.w; x++ {
			img.SetRGBA(x, py, c)
		}
	}
}

func (v view) rect(img *image.RGBA, x, y, hw, hh float64, c color.RGBA) {
	x0, y0 := v.px(x-hw, y+hh)
	x1, y1 := v.px(x+hw, y-hh)
	r := image.Rect(x0, y0, x1+1, y1+1).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func (v view) disc(img *image.RGBA, x, y, radius float64, c color.RGBA) {
	if !v.usable() {
		return
	}
	cx, cy := v.px(x, y)
	r := toPixel(math.Ceil(radius * v.scale))
	if limit := max(v.w, v.h); r > limit {
		r = limit
	}
	box := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(img.Bounds())
	for py := box.Min.Y; py < box.Max.Y; py++ {
		for px := box.Min.X; px < box.Max.X; px++ {
			dx, dy := px-cx, py-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

func (v view) marker(img *image.RGBA, x, y float64, size int, c color.RGBA) {
	cx, cy := v.px(x, y)
	r := image.Rect(cx-size, cy-size, cx+size+1, cy+size+1).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}
