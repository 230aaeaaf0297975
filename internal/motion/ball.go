package motion

import (
	"image"
	"image/color"

	"balltrack/internal/config"
)

// Position is a point on the canvas in pixels.
type Position struct {
	X float64
	Y float64
}

// Ball simulates a ball bouncing inside a fixed canvas, one step per frame.
type Ball struct {
	Width     int
	Height    int
	Radius    int
	Color     color.RGBA
	Position  Position
	VelocityX float64
	VelocityY float64
}

// NewBall builds a ball from config.
func NewBall(canvas config.Canvas, b config.Ball) *Ball {
	return &Ball{
		Width:     canvas.Width,
		Height:    canvas.Height,
		Radius:    b.Radius,
		Color:     color.RGBA{R: 255, A: 255},
		Position:  Position{X: b.StartX, Y: b.StartY},
		VelocityX: b.VelocityX,
		VelocityY: b.VelocityY,
	}
}

// Step advances the ball by one tick and returns the position the frame for
// this tick is drawn at. Velocity flips after the move, per axis, when the
// leading edge has reached or crossed a wall.
func (b *Ball) Step() Position {
	b.Position.X += b.VelocityX
	b.Position.Y += b.VelocityY

	r := float64(b.Radius)
	if b.Position.X-r < 0 || b.Position.X+r >= float64(b.Width) {
		b.VelocityX = -b.VelocityX
	}
	if b.Position.Y-r < 0 || b.Position.Y+r >= float64(b.Height) {
		b.VelocityY = -b.VelocityY
	}
	return b.Position
}

// Render draws the ball at its current position as a filled disc on black.
func (b *Ball) Render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	DrawDisc(img, int(b.Position.X), int(b.Position.Y), b.Radius, b.Color)
	return img
}

// DrawDisc fills every pixel within r of (cx, cy).
func DrawDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()
	r2 := r * r
	for y := cy - r; y <= cy+r; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		dy := y - cy
		for x := cx - r; x <= cx+r; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx := x - cx
			if dx*dx+dy*dy <= r2 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
