package polygon

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"emax/internal/domain/model"
)

// barRaw is one upstream aggregate row. Price fields are pointers so a row
// with a missing field can be detected and dropped instead of defaulting
// to zero.
type barRaw struct {
	Timestamp *int64         `json:"t"` // unix ms
	Open      *float64       `json:"o"`
	High      *float64       `json:"h"`
	Low       *float64       `json:"l"`
	Close     *float64       `json:"c"`
	Volume    *flexibleInt64 `json:"v"`
}

// valid reports whether every required field is present.
func (br barRaw) valid() bool {
	return br.Timestamp != nil && br.Open != nil && br.High != nil &&
		br.Low != nil && br.Close != nil && br.Volume != nil
}

// toBar converts a valid row into the canonical bar, normalizing close to
// 4 decimal places.
func (br barRaw) toBar(symbol string) model.Bar {
	return model.Bar{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(*br.Timestamp).UTC(),
		Open:      *br.Open,
		High:      *br.High,
		Low:       *br.Low,
		Close:     roundClose(*br.Close),
		Volume:    br.Volume.Int64(),
	}
}

func roundClose(c float64) float64 {
	return math.Round(c*10000) / 10000
}

// aggregatesResponse is the upstream aggregates envelope. A non-empty
// NextURL means the response was truncated by the row limit.
type aggregatesResponse struct {
	Ticker       string   `json:"ticker"`
	QueryCount   int      `json:"queryCount"`
	ResultsCount int      `json:"resultsCount"`
	Results      []barRaw `json:"results"`
	Status       string   `json:"status"`
	NextURL      string   `json:"next_url,omitempty"`
}

// flexibleInt64 parses int, float, or numeric string (the vendor emits
// scientific notation for large volumes).
type flexibleInt64 int64

func (f *flexibleInt64) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		*f = flexibleInt64(int64(val))
		return nil
	}

	var floatVal float64
	if err := json.Unmarshal(data, &floatVal); err == nil {
		*f = flexibleInt64(int64(floatVal))
		return nil
	}

	var intVal int64
	if err := json.Unmarshal(data, &intVal); err == nil {
		*f = flexibleInt64(intVal)
		return nil
	}

	return fmt.Errorf("cannot parse as int64: %s", string(data))
}

func (f flexibleInt64) Int64() int64 { return int64(f) }
