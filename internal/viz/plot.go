package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
)

// Plot draws a series as an ASCII line chart. Non-finite values are dropped
// so a diverged tail does not flatten the rest of the chart.
func Plot(series []float64, caption string, width, height int) string {
	data := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return caption + ": no data"
	}
	if len(data) == 1 {
		data = append(data, data[0])
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
