// Package detect finds the ball in decoded frames.
package detect

import (
	"errors"
	"image"
	"math"
	"sort"

	"balltrack/internal/config"
)

// ErrEmptyImage is returned for frames without pixels.
var ErrEmptyImage = errors.New("detect: empty image")

// Circle is one detected circle in image coordinates.
type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Detector finds circles in an image. Candidates are ordered strongest first.
type Detector interface {
	Detect(img image.Image) ([]Circle, error)
}

// HoughDetector is a gradient Hough circle transform: the image is reduced to
// luma, smoothed with a Gaussian, edge-detected with Sobel gradients and
// hysteresis thresholds, and every edge pixel votes for centres along its
// gradient normal.
type HoughDetector struct {
	BlurKernel int     // odd Gaussian kernel size, <= 1 disables smoothing
	DP         float64 // inverse accumulator resolution
	MinDist    float64 // minimum distance between reported centres
	Param1     float64 // high edge threshold; the low one is half of it
	Param2     float64 // accumulator votes needed for a centre
	MinRadius  int
	MaxRadius  int
}

// NewHoughDetector builds a detector from config.
func NewHoughDetector(c config.Detector) *HoughDetector {
	return &HoughDetector{
		BlurKernel: c.BlurKernel,
		DP:         c.DP,
		MinDist:    c.MinDist,
		Param1:     c.Param1,
		Param2:     c.Param2,
		MinRadius:  c.MinRadius,
		MaxRadius:  c.MaxRadius,
	}
}

// plane is a single channel float image.
type plane struct {
	w, h int
	pix  []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float32, w*h)}
}

// at reads with edge replication.
func (p *plane) at(x, y int) float32 {
	x = clamp(x, 0, p.w-1)
	y = clamp(y, 0, p.h-1)
	return p.pix[y*p.w+x]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type edgePoint struct {
	x, y   int
	dx, dy float64 // unit gradient
}

// Detect implements Detector.
func (d *HoughDetector) Detect(img image.Image) ([]Circle, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	gray := luma(img)
	if d.BlurKernel > 1 {
		gray = gaussianBlur(gray, d.BlurKernel)
	}
	edges := d.edges(gray)
	if len(edges) == 0 {
		return nil, nil
	}

	circles := d.vote(gray.w, gray.h, edges)
	for i := range circles {
		circles[i].X += float64(b.Min.X)
		circles[i].Y += float64(b.Min.Y)
	}
	return circles, nil
}

// luma converts to Rec. 601 intensity in the 0..255 range.
func luma(img image.Image) *plane {
	b := img.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < p.h; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			for x := 0; x < p.w; x++ {
				r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
				p.pix[y*p.w+x] = 0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)
			}
		}
	case *image.Gray:
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				p.pix[y*p.w+x] = float32(src.GrayAt(x+b.Min.X, y+b.Min.Y).Y)
			}
		}
	default:
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				r, g, bl, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
				p.pix[y*p.w+x] = (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)) / 257
			}
		}
	}
	return p
}

// gaussianKernel returns normalised weights; sigma follows the usual
// 0.3*((k-1)*0.5-1)+0.8 rule, which gives 2.0 for k = 11.
func gaussianKernel(k int) []float32 {
	if k%2 == 0 {
		k++
	}
	sigma := 0.3*(float64(k-1)*0.5-1) + 0.8
	half := k / 2
	weights := make([]float32, k)
	var sum float64
	for i := -half; i <= half; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		weights[i+half] = float32(v)
		sum += v
	}
	for i := range weights {
		weights[i] /= float32(sum)
	}
	return weights
}

func gaussianBlur(src *plane, k int) *plane {
	kernel := gaussianKernel(k)
	half := len(kernel) / 2

	tmp := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var acc float32
			for i, wgt := range kernel {
				acc += wgt * src.at(x+i-half, y)
			}
			tmp.pix[y*src.w+x] = acc
		}
	}
	dst := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var acc float32
			for i, wgt := range kernel {
				acc += wgt * tmp.at(x, y+i-half)
			}
			dst.pix[y*src.w+x] = acc
		}
	}
	return dst
}

// edges runs Sobel, non-maximum suppression and hysteresis, returning the
// surviving edge pixels with their gradient direction.
func (d *HoughDetector) edges(p *plane) []edgePoint {
	w, h := p.w, p.h
	gx := make([]float32, w*h)
	gy := make([]float32, w*h)
	mag := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := p.at(x+1, y-1) + 2*p.at(x+1, y) + p.at(x+1, y+1) -
				p.at(x-1, y-1) - 2*p.at(x-1, y) - p.at(x-1, y+1)
			sy := p.at(x-1, y+1) + 2*p.at(x, y+1) + p.at(x+1, y+1) -
				p.at(x-1, y-1) - 2*p.at(x, y-1) - p.at(x+1, y-1)
			i := y*w + x
			gx[i], gy[i] = sx, sy
			mag[i] = abs32(sx) + abs32(sy)
		}
	}

	high := float32(d.Param1)
	low := high / 2
	magAt := func(x, y int) float32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		none = iota
		weak
		strong
	)
	class := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m < low {
				continue
			}
			ax, ay := abs32(gx[i]), abs32(gy[i])
			var n1, n2 float32
			switch {
			case ay <= ax*0.4142:
				n1, n2 = magAt(x-1, y), magAt(x+1, y)
			case ay >= ax*2.4142:
				n1, n2 = magAt(x, y-1), magAt(x, y+1)
			case gx[i]*gy[i] > 0:
				n1, n2 = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				n1, n2 = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m < n1 || m <= n2 {
				continue
			}
			if m >= high {
				class[i] = strong
				stack = append(stack, i)
			} else {
				class[i] = weak
			}
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if class[j] == weak {
					class[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	var out []edgePoint
	for i, c := range class {
		if c != strong {
			continue
		}
		n := math.Hypot(float64(gx[i]), float64(gy[i]))
		if n == 0 {
			continue
		}
		out = append(out, edgePoint{
			x:  i % w,
			y:  i / w,
			dx: float64(gx[i]) / n,
			dy: float64(gy[i]) / n,
		})
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

type peak struct {
	idx   int
	votes int32
}

// vote accumulates centre votes and extracts circles.
func (d *HoughDetector) vote(w, h int, edges []edgePoint) []Circle {
	dp := d.DP
	if dp < 1 {
		dp = 1
	}
	aw := int(math.Ceil(float64(w)/dp)) + 1
	ah := int(math.Ceil(float64(h)/dp)) + 1
	acc := make([]int32, aw*ah)

	minR, maxR := d.MinRadius, d.MaxRadius
	if minR < 1 {
		minR = 1
	}
	if maxR < minR {
		maxR = minR
	}
	for _, e := range edges {
		for _, sign := range [2]float64{-1, 1} {
			last := -1
			for r := minR; r <= maxR; r++ {
				cx := (float64(e.x) + sign*float64(r)*e.dx) / dp
				cy := (float64(e.y) + sign*float64(r)*e.dy) / dp
				ix, iy := int(math.Round(cx)), int(math.Round(cy))
				if ix < 0 || iy < 0 || ix >= aw || iy >= ah {
					continue
				}
				i := iy*aw + ix
				if i == last {
					continue
				}
				acc[i]++
				last = i
			}
		}
	}

	threshold := int32(d.Param2)
	if threshold < 1 {
		threshold = 1
	}
	var peaks []peak
	for y := 1; y < ah-1; y++ {
		for x := 1; x < aw-1; x++ {
			i := y*aw + x
			v := acc[i]
			if v < threshold {
				continue
			}
			if v > acc[i-1] && v >= acc[i+1] && v > acc[i-aw] && v >= acc[i+aw] {
				peaks = append(peaks, peak{idx: i, votes: v})
			}
		}
	}
	sort.SliceStable(peaks, func(a, b int) bool { return peaks[a].votes > peaks[b].votes })

	minDist2 := d.MinDist * d.MinDist
	var circles []Circle
	for _, p := range peaks {
		cx, cy := refine(acc, aw, p.idx)
		cx *= dp
		cy *= dp

		tooClose := false
		for _, c := range circles {
			if (c.X-cx)*(c.X-cx)+(c.Y-cy)*(c.Y-cy) < minDist2 {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		r, ok := bestRadius(edges, cx, cy, minR, maxR)
		if !ok {
			continue
		}
		circles = append(circles, Circle{X: cx, Y: cy, R: r})
	}
	return circles
}

// refine takes the vote weighted centroid of the 3x3 cell block around idx.
func refine(acc []int32, aw, idx int) (float64, float64) {
	px, py := idx%aw, idx/aw
	var sum, sx, sy float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v := float64(acc[(py+dy)*aw+px+dx])
			sum += v
			sx += v * float64(px+dx)
			sy += v * float64(py+dy)
		}
	}
	return sx / sum, sy / sum
}

// bestRadius picks the radius most edge pixels agree on.
func bestRadius(edges []edgePoint, cx, cy float64, minR, maxR int) (float64, bool) {
	hist := make([]int, maxR-minR+1)
	for _, e := range edges {
		dist := math.Hypot(float64(e.x)-cx, float64(e.y)-cy)
		r := int(math.Round(dist))
		if r < minR || r > maxR {
			continue
		}
		hist[r-minR]++
	}
	best, count := 0, 0
	for i, n := range hist {
		if n > count {
			best, count = i, n
		}
	}
	if count == 0 {
		return 0, false
	}
	return float64(best + minR), true
}
