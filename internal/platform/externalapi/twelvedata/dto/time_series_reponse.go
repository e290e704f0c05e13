// Package dto defines data transfer objects for the Twelve Data API responses.
package dto

// TimeSeriesValue は time_series の1行です。数値はすべて文字列で返ります。
type TimeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// TimeSeriesResponse represents the JSON response from the Twelve Data time_series endpoint.
// エラー時も HTTP 200 で status="error" と code が返ることがあります。
type TimeSeriesResponse struct {
	Status   string            `json:"status"`
	Code     int               `json:"code,omitempty"`
	Message  string            `json:"message,omitempty"`
	Symbol   string            `json:"symbol"`
	Interval string            `json:"interval"`
	Values   []TimeSeriesValue `json:"values"`
}
