package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/stat"

	"slitdrift/pkg/slitdrift"
)

// Summary is the content of a summary card. Star and Slit may be nil.
type Summary struct {
	Title string
	Star  *slitdrift.Result
	Slit  *slitdrift.Result
}

// RenderSummary draws the summary card and writes it as a JPEG file.
func RenderSummary(s Summary, outputPath string) error {
	img, err := renderSummaryImage(s)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// RenderSummaryBytes draws the summary card and returns it as JPEG bytes.
func RenderSummaryBytes(s Summary) ([]byte, error) {
	img, err := renderSummaryImage(s)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type cardPoint struct {
	index  int
	value  float64
	seeing float64
	nod    slitdrift.Nod
}

// renderSummaryImage plots the star offsets (or the slit x shifts when no
// star result is given) in acquisition order above a text block.
func renderSummaryImage(s Summary) (*image.RGBA, error) {
	if s.Star == nil && s.Slit == nil {
		return nil, fmt.Errorf("no drift results")
	}

	const (
		imgW     = 800
		panelH   = 300
		summaryH = 80
		margin   = 40
	)
	totalH := panelH + summaryH
	img := image.NewRGBA(image.Rect(0, 0, imgW, totalH))
	for y := 0; y < totalH; y++ {
		for x := 0; x < imgW; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	var pts []cardPoint
	unit := "arcsec"
	if s.Star != nil {
		pts = cardPoints(*s.Star, func(p slitdrift.DriftPoint) float64 { return p.Offset })
	} else {
		pts = cardPoints(*s.Slit, func(p slitdrift.DriftPoint) float64 { return p.Shift.X })
		unit = "px"
	}

	lo, hi := -1.0, 1.0
	for _, p := range pts {
		lo = math.Min(lo, p.value)
		hi = math.Max(hi, p.value)
	}
	n := 1
	for _, p := range pts {
		n = max(n, p.index+1)
	}
	px := func(i int) int {
		if n == 1 {
			return imgW / 2
		}
		return margin + i*(imgW-2*margin)/(n-1)
	}
	py := func(v float64) int {
		return margin + int((hi-v)/(hi-lo)*float64(panelH-2*margin))
	}

	axisColor := color.RGBA{255, 255, 255, 180}
	drawLine(img, margin, py(0), imgW-margin, py(0), axisColor)

	medSeeing := medianFinite(seeingValues(pts))
	face := basicfont.Face7x13
	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		lineColor := color.RGBA{80, 160, 255, 255}
		if nod == slitdrift.NodB {
			lineColor = color.RGBA{255, 110, 90, 255}
		}
		prevX, prevY := -1, -1
		for _, p := range pts {
			if p.nod != nod {
				continue
			}
			x, y := px(p.index), py(p.value)
			if prevX >= 0 {
				drawLine(img, prevX, prevY, x, y, lineColor)
			}
			drawCircle(img, x, y, 4, seeingColor(p.seeing, medSeeing))
			prevX, prevY = x, y
		}
	}
	textColor := color.RGBA{255, 255, 255, 255}
	drawText(img, face, fmt.Sprintf("%+.2f %s", hi, unit), 4, margin-4, textColor)
	drawText(img, face, fmt.Sprintf("%+.2f %s", lo, unit), 4, panelH-margin+14, textColor)
	drawCenteredText(img, face, s.Title, imgW/2, 16, textColor)

	summaryColor := color.RGBA{220, 220, 220, 255}
	summaryY := panelH + 15
	if s.Star != nil {
		drawText(img, face, fmt.Sprintf("Star drift: A %s  B %s  (arcsec)",
			rangeString(s.Star.A.Offsets()), rangeString(s.Star.B.Offsets())), 10, summaryY, summaryColor)
		drawText(img, face, fmt.Sprintf("Seeing: median %.2f\"  (frames failed: %d)",
			medSeeing, s.Star.A.Failed()+s.Star.B.Failed()), 10, summaryY+18, summaryColor)
		summaryY += 36
	}
	if s.Slit != nil {
		drawText(img, face, fmt.Sprintf("Slit drift x: A %s  B %s  (px)",
			rangeString(s.Slit.A.XShifts()), rangeString(s.Slit.B.XShifts())), 10, summaryY, summaryColor)
	}
	return img, nil
}

func cardPoints(res slitdrift.Result, value func(slitdrift.DriftPoint) float64) []cardPoint {
	var pts []cardPoint
	for _, s := range []slitdrift.DriftSeries{res.A, res.B} {
		for _, p := range s.Points {
			v := value(p)
			if math.IsNaN(v) {
				continue
			}
			pts = append(pts, cardPoint{value: v, seeing: p.Seeing, nod: p.Nod, index: p.Frame.Number})
		}
	}
	// Frame numbers are mapped to their rank so gaps do not stretch the plot.
	sort.Slice(pts, func(i, j int) bool { return pts[i].index < pts[j].index })
	for i := range pts {
		pts[i].index = i
	}
	return pts
}

func seeingValues(pts []cardPoint) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.seeing
	}
	return out
}

// medianFinite is the median of the finite values, NaN if there are none.
func medianFinite(values []float64) float64 {
	f := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			f = append(f, v)
		}
	}
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	return stat.Quantile(0.5, stat.Empirical, f, nil)
}

func rangeString(values []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo > hi {
		return "n/a"
	}
	return fmt.Sprintf("[%+.2f, %+.2f]", lo, hi)
}

// seeingColor returns a color based on the seeing ratio to the median.
func seeingColor(seeing, median float64) color.RGBA {
	if math.IsNaN(seeing) || !(median > 0) {
		return color.RGBA{200, 200, 200, 255}
	}
	ratio := seeing / median

	var r, g, b uint8
	switch {
	case ratio <= 1.1:
		// Green
		t := ratio / 1.1
		g = uint8(160 + math.Min(t, 1)*60)
		r = uint8(math.Min(t, 1) * 30)
		b = 40
	case ratio <= 1.3:
		// Green -> Yellow
		t := (ratio - 1.1) / 0.2
		r = uint8(30 + t*200)
		g = uint8(220 - t*20)
		b = 40
	default:
		// Yellow -> Red
		t := math.Min((ratio-1.3)/0.3, 1.0)
		r = uint8(230 + t*25)
		g = uint8(200 - t*160)
		b = uint8(40 - t*20)
	}
	return color.RGBA{r, g, b, 255}
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCenteredText draws a string centered at (cx, cy).
func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	advance := font.MeasureString(face, s)
	x := cx - advance.Round()/2
	drawText(img, face, s, x, cy, c)
}

// drawCircle draws a circle outline using midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
