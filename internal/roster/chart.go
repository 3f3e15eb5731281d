package roster

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/passapraela/fantasy-engine/internal/model"
)

const (
	chartWidth  = 800 // px
	chartHeight = 480 // px
	chartDPI    = 96

	simulatedMatches = 50
	spread           = 0.2 // ±20% around the real totals
)

var (
	backgroundColor = color.RGBA{R: 0xF9, G: 0xFA, B: 0xFB, A: 0xFF}
	pointColor      = color.RGBA{R: 139, G: 92, B: 246, A: 153}
	trendColor      = color.RGBA{R: 236, G: 72, B: 153, A: 255}
)

// PerformanceChart renders the player's tracker totals as a PNG scatter of
// simulated matches plus the real one, with a least-squares trend line.
func (s *Service) PerformanceChart(ctx context.Context, id int64) ([]byte, error) {
	p, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	xs, ys := simulate(p.Physical, simulatedMatches, s.rnd)
	return renderChart(p.Name, xs, ys)
}

// simulate draws n points at ±spread of the real totals and appends the
// real point last.
func simulate(phys model.Physical, n int, rnd func() float64) (xs, ys []float64) {
	steps := float64(phys.TotalSteps)
	km := phys.DistanceKm.InexactFloat64()

	xs = make([]float64, 0, n+1)
	ys = make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		xs = append(xs, steps*(1-spread+rnd()*2*spread))
		ys = append(ys, km*(1-spread+rnd()*2*spread))
	}
	xs = append(xs, steps)
	ys = append(ys, km)
	return xs, ys
}

// trend fits y = alpha + beta*x. ok is false when the fit is undefined
// (all x equal).
func trend(xs, ys []float64) (alpha, beta float64, ok bool) {
	alpha, beta = stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, 0, false
	}
	return alpha, beta, true
}

func renderChart(name string, xs, ys []float64) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Physical performance (IoT): %s", name)
	p.X.Label.Text = "Total steps per match"
	p.Y.Label.Text = "Distance covered (km)"
	p.BackgroundColor = backgroundColor
	p.Legend.Top = false

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("build scatter: %w", err)
	}
	scatter.GlyphStyle.Color = pointColor
	scatter.GlyphStyle.Radius = vg.Points(3)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)
	p.Legend.Add("Simulated per match", scatter)

	if alpha, beta, ok := trend(xs, ys); ok {
		sorted := append([]float64(nil), xs...)
		sort.Float64s(sorted)
		linePts := make(plotter.XYs, len(sorted))
		for i, x := range sorted {
			linePts[i].X = x
			linePts[i].Y = alpha + beta*x
		}
		line, err := plotter.NewLine(linePts)
		if err != nil {
			return nil, fmt.Errorf("build trend line: %w", err)
		}
		line.LineStyle.Color = trendColor
		line.LineStyle.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("Trend (linear regression)", line)
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(chartWidth)*vg.Inch/chartDPI, vg.Length(chartHeight)*vg.Inch/chartDPI),
		vgimg.UseDPI(chartDPI),
	)
	p.Draw(draw.New(c))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
