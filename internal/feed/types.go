package feed

import "time"

// BarRequest is the subscription payload for the bars route.
type BarRequest struct {
	Symbol     string `json:"symbol" validate:"required"`
	Resolution string `json:"resolution" validate:"required"`
}

// BookRequest is the subscription payload for the books route. Depth limits
// how many price levels each snapshot carries.
type BookRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Depth  int    `json:"depth,omitempty" validate:"omitempty,min=1,max=50"`
}

// Bar is one OHLCV data point.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Resolution string    `json:"resolution"`
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
}

// BookLevel is one side entry of an order book snapshot.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is a top-of-book view published per refresh.
type BookSnapshot struct {
	Symbol string      `json:"symbol"`
	Time   time.Time   `json:"time"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}
