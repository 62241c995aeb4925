package model

import "time"

// Bar is one minute-aggregated OHLCV observation for a symbol.
// Bars are unique per (symbol, timestamp); the store enforces this with
// upsert semantics, so re-ingesting the same bar overwrites rather than
// duplicates.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"` // normalized to 4 decimal places
	Volume    int64     `json:"volume"`
}

// IndicatorBar is a Bar annotated with the derived EMA series. Indicator
// values are recomputed on every read and never persisted.
type IndicatorBar struct {
	Bar
	EMAShort float64 `json:"ema10"`
	EMALong  float64 `json:"ema20"`
}
