// Package derivative handles option ticker parsing and validation.
package derivative

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

// tickerRegex matches: ELC-{underlying}-{kind}-{strike}-{YYYYMMDD}
// Example: ELC-XRD-CALL-100-20260915
var tickerRegex = regexp.MustCompile(
	`^ELC-([A-Z0-9]+)-([A-Z]+)-([0-9]+(?:\.[0-9]+)?)-(\d{8})$`,
)

var (
	ErrInvalidTicker = errors.New("derivative: invalid ticker format")
	ErrInvalidKind   = errors.New("derivative: unsupported option kind")
	ErrExpired       = errors.New("derivative: contract past expiry")
)

// Ticker represents a parsed option ticker.
type Ticker struct {
	Symbol     string           `json:"symbol"`
	Underlying model.Asset      `json:"underlying"`
	Kind       model.OptionKind `json:"kind"`
	Strike     decimal.Decimal  `json:"strike"`
	ExpiryDate time.Time        `json:"expiry_date"`
}

// ParseTicker parses and validates an option ticker string.
// Format: ELC-{underlying}-{kind}-{strike}-{YYYYMMDD}
func ParseTicker(ticker string) (*Ticker, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected ELC-{underlying}-{kind}-{strike}-{YYYYMMDD})",
			ErrInvalidTicker, ticker)
	}

	underlying := matches[1]
	kind := model.OptionKind(matches[2])
	strikeStr := matches[3]
	dateStr := matches[4]

	if kind != model.Call && kind != model.Put {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	strike, err := decimal.NewFromString(strikeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidTicker, strikeStr)
	}
	if strike.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: strike must be positive", ErrInvalidTicker)
	}

	expiry, err := time.Parse("20060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, dateStr)
	}

	return &Ticker{
		Symbol:     ticker,
		Underlying: model.Asset(underlying),
		Kind:       kind,
		Strike:     strike,
		ExpiryDate: expiry,
	}, nil
}

// CheckExpiry returns ErrExpired when now is on or after the ticker's
// expiry date. Expiry is compared at day granularity in UTC.
func (tk *Ticker) CheckExpiry(now time.Time) error {
	if !now.UTC().Truncate(24 * time.Hour).Before(tk.ExpiryDate) {
		return fmt.Errorf("%w: %s expired %s", ErrExpired, tk.Symbol,
			tk.ExpiryDate.Format("2006-01-02"))
	}
	return nil
}
