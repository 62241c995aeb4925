// Package indicator computes derived series over ordered bar data.
package indicator

import "emax/internal/domain/model"

const (
	SpanShort = 10
	SpanLong  = 20
)

// WithIndicators annotates an ordered bar series with EMA(10) and EMA(20)
// over the close price. Both averages are seeded with the first close and
// smoothed left-to-right with alpha = 2/(span+1). Pure: the input slice is
// not modified and an empty input yields an empty output.
func WithIndicators(bars []model.Bar) []model.IndicatorBar {
	if len(bars) == 0 {
		return nil
	}

	out := make([]model.IndicatorBar, len(bars))
	emaShort := bars[0].Close
	emaLong := bars[0].Close
	alphaShort := 2.0 / float64(SpanShort+1)
	alphaLong := 2.0 / float64(SpanLong+1)

	for i, b := range bars {
		if i > 0 {
			emaShort = b.Close*alphaShort + emaShort*(1-alphaShort)
			emaLong = b.Close*alphaLong + emaLong*(1-alphaLong)
		}
		out[i] = model.IndicatorBar{Bar: b, EMAShort: emaShort, EMALong: emaLong}
	}
	return out
}
