package enrollengine

import (
	"fmt"
	"strings"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// asciiRamp maps increasing brightness onto increasingly "dense" characters.
const asciiRamp = " .·:;+=xX#@"

const maxProgressBoxes = 5

// renderer turns a captured frame, plus the first detected face and a capture
// progress count, into a fixed-size ASCII grid suitable for a terminal preview stream.
type renderer struct {
	width, height int
}

func newRenderer(width, height int) *renderer {
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 25
	}
	return &renderer{width: width, height: height}
}

// renderProgress draws the frame as ASCII, then overlays a progress message, a
// box-glyph progress bar, and the detected face's bounding box, all anchored above the
// first detection. With no detection the plain ASCII frame is returned unmodified, to
// avoid message flicker when detection intermittently misses a frame.
func (r *renderer) renderProgress(frame model.Frame, faces []model.FaceBox, captured, total uint32) string {
	grid := r.toASCII(frame)

	if len(faces) > 0 {
		face := faces[0]
		imgW, imgH := float32(frame.Width), float32(frame.Height)

		x1 := scaleCoord(face.X1, imgW, r.width)
		x2 := scaleCoord(face.X2, imgW, r.width)
		y1 := scaleCoord(face.Y1, imgH, r.height)

		centerX := (x1 + x2) / 2

		msg := "Move head slightly"
		if captured >= total {
			msg = "Complete!"
		}
		r.overlayText(grid, msg, saturatingSub(centerX, len(msg)/2)+10, saturatingSub(y1, 2))

		bar := progressBar(captured)
		r.overlayText(grid, bar, saturatingSub(centerX, len(bar)/2)+12, saturatingSub(y1, 1))

		r.drawFaceBox(grid, face, imgW, imgH)
	}

	return gridToString(grid)
}

func (r *renderer) toASCII(frame model.Frame) [][]rune {
	grid := make([][]rune, r.height)
	for y := range grid {
		grid[y] = make([]rune, r.width)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}
	if frame.Width == 0 || frame.Height == 0 {
		return grid
	}

	ramp := []rune(asciiRamp)
	for ty := 0; ty < r.height; ty++ {
		for tx := 0; tx < r.width; tx++ {
			ix := tx * frame.Width / r.width
			iy := ty * frame.Height / r.height
			if ix >= frame.Width || iy >= frame.Height {
				continue
			}
			brightness := frame.Gray[iy*frame.Width+ix]
			idx := int(brightness) * (len(ramp) - 1) / 255
			grid[ty][tx] = ramp[idx]
		}
	}
	return grid
}

func (r *renderer) overlayText(grid [][]rune, text string, startX, y int) {
	if y < 0 || y >= r.height {
		return
	}
	for i, ch := range []rune(text) {
		x := startX + i
		if x >= 0 && x < r.width {
			grid[y][x] = ch
		}
	}
}

func (r *renderer) drawFaceBox(grid [][]rune, face model.FaceBox, imgW, imgH float32) {
	x1 := scaleCoord(face.X1, imgW, r.width)
	x2 := scaleCoord(face.X2, imgW, r.width)
	y1 := scaleCoord(face.Y1, imgH, r.height)
	y2 := scaleCoord(face.Y2, imgH, r.height)

	r.setRune(grid, x1, y1, '┌')
	r.setRune(grid, x2-1, y1, '┐')
	r.setRune(grid, x1, y2-1, '└')
	r.setRune(grid, x2-1, y2-1, '┘')

	for x := x1 + 1; x < x2-1; x++ {
		r.setRune(grid, x, y1, '─')
		r.setRune(grid, x, y2-1, '─')
	}
	for y := y1 + 1; y < y2-1; y++ {
		r.setRune(grid, x1, y, '│')
		r.setRune(grid, x2-1, y, '│')
	}
}

func (r *renderer) setRune(grid [][]rune, x, y int, ch rune) {
	if y >= 0 && y < r.height && x >= 0 && x < r.width {
		grid[y][x] = ch
	}
}

func gridToString(grid [][]rune) string {
	lines := make([]string, len(grid))
	for i, row := range grid {
		lines[i] = string(row)
	}
	return strings.Join(lines, "\r\n")
}

func progressBar(captured uint32) string {
	filled := int(captured)
	if filled > maxProgressBoxes {
		filled = maxProgressBoxes
	}
	empty := maxProgressBoxes - filled
	return fmt.Sprintf("[%s%s]", strings.Repeat("■", filled), strings.Repeat("□", empty))
}

func scaleCoord(v, dim float32, target int) int {
	if dim <= 0 {
		return 0
	}
	scaled := int((v / dim) * float32(target))
	return clampInt(scaled, 0, target)
}

func saturatingSub(a, b int) int {
	if b > a {
		return 0
	}
	return a - b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
