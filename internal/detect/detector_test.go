package detect

import (
	"image"
	"image/color"
	"math"
	"testing"

	"balltrack/internal/config"
	"balltrack/internal/motion"
)

func defaultDetector() *HoughDetector {
	return NewHoughDetector(config.Default().Detector)
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func near(c Circle, x, y, tol float64) bool {
	return math.Abs(c.X-x) <= tol && math.Abs(c.Y-y) <= tol
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(11)
	if len(k) != 11 {
		t.Fatalf("kernel length %d", len(k))
	}
	var sum float32
	for _, v := range k {
		sum += v
	}
	if math.Abs(float64(sum)-1) > 1e-5 {
		t.Fatalf("kernel sums to %f", sum)
	}
	if k[5] <= k[4] || k[4] != k[6] {
		t.Fatalf("kernel not centred: %v", k)
	}
}

func TestDetectRenderedBall(t *testing.T) {
	d := defaultDetector()
	cases := []struct{ x, y float64 }{
		{200, 150},
		{60, 80},
		{330, 240},
		{30, 150},
	}
	for _, c := range cases {
		b := motion.NewBall(config.Canvas{Width: 400, Height: 300}, config.Ball{Radius: 20, StartX: c.x, StartY: c.y})
		circles, err := d.Detect(b.Render())
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(circles) == 0 {
			t.Fatalf("no circle found at (%v, %v)", c.x, c.y)
		}
		got := circles[0]
		if !near(got, c.x, c.y, 3) {
			t.Errorf("centre (%.1f, %.1f), want (%v, %v)", got.X, got.Y, c.x, c.y)
		}
		if got.R < 17 || got.R > 23 {
			t.Errorf("radius %.1f, want about 20", got.R)
		}
	}
}

func TestDetectAlongTrajectory(t *testing.T) {
	d := defaultDetector()
	def := config.Default()
	b := motion.NewBall(def.Canvas, def.Ball)
	for i := 0; i < 60; i++ {
		pos := b.Step()
		circles, err := d.Detect(b.Render())
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(circles) == 0 || !near(circles[0], pos.X, pos.Y, 3) {
			t.Fatalf("tick %d: ball at %+v not found, got %+v", i, pos, circles)
		}
	}
}

func TestDetectBlankFrame(t *testing.T) {
	circles, err := defaultDetector().Detect(blank(400, 300))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(circles) != 0 {
		t.Fatalf("expected no circles, got %+v", circles)
	}
}

func TestDetectIgnoresOutOfRangeRadius(t *testing.T) {
	img := blank(400, 300)
	motion.DrawDisc(img, 200, 150, 60, color.RGBA{R: 255, A: 255})
	circles, err := defaultDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, c := range circles {
		if near(c, 200, 150, 5) {
			t.Fatalf("large disc reported as %+v", c)
		}
	}
}

func TestDetectTwoBallsHonoursMinDist(t *testing.T) {
	img := blank(400, 300)
	red := color.RGBA{R: 255, A: 255}
	motion.DrawDisc(img, 100, 100, 20, red)
	motion.DrawDisc(img, 300, 200, 20, red)

	circles, err := defaultDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	var first, second bool
	for _, c := range circles {
		first = first || near(c, 100, 100, 3)
		second = second || near(c, 300, 200, 3)
	}
	if !first || !second {
		t.Fatalf("expected both balls, got %+v", circles)
	}
	for i := range circles {
		for j := i + 1; j < len(circles); j++ {
			if math.Hypot(circles[i].X-circles[j].X, circles[i].Y-circles[j].Y) < 50 {
				t.Fatalf("centres closer than min dist: %+v %+v", circles[i], circles[j])
			}
		}
	}
}

func TestDetectSubImageOffset(t *testing.T) {
	img := blank(400, 300)
	motion.DrawDisc(img, 250, 160, 20, color.RGBA{R: 255, A: 255})
	sub := img.SubImage(image.Rect(150, 100, 350, 250))
	circles, err := defaultDetector().Detect(sub)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(circles) == 0 || !near(circles[0], 250, 160, 3) {
		t.Fatalf("got %+v, want centre near (250, 160)", circles)
	}
}

func TestDetectEmptyImage(t *testing.T) {
	if _, err := defaultDetector().Detect(image.NewRGBA(image.Rectangle{})); err != ErrEmptyImage {
		t.Fatalf("err=%v, want ErrEmptyImage", err)
	}
}
