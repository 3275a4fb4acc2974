package oracle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afrifutures/marketd/internal/domain"
)

// minorUnitExp is the exponent of the ledger's minor unit (cents).
const minorUnitExp = 2

// APIPriceFeed is the price feed payload returned by the oracle service.
// Price is a fixed-point integer with Decimals implied decimal places.
type APIPriceFeed struct {
	Commodity  string `json:"commodity"`
	Price      int64  `json:"price"`
	Decimals   int32  `json:"decimals"`
	Confidence int    `json:"confidence"`
	Timestamp  int64  `json:"timestamp"`
	Source     string `json:"source,omitempty"`
}

// ToDomainQuote converts the feed to a quote in ledger minor units. Digits
// finer than a cent are truncated.
func (f APIPriceFeed) ToDomainQuote(c domain.Commodity) (domain.PriceQuote, error) {
	if f.Price <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("non-positive price %d", f.Price)
	}
	if f.Decimals < 0 || f.Decimals > 18 {
		return domain.PriceQuote{}, fmt.Errorf("decimals out of range: %d", f.Decimals)
	}
	if f.Confidence < 0 || f.Confidence > 100 {
		return domain.PriceQuote{}, fmt.Errorf("confidence out of range: %d", f.Confidence)
	}
	if f.Commodity != "" && domain.Commodity(f.Commodity) != c {
		return domain.PriceQuote{}, fmt.Errorf("feed returned %s for %s", f.Commodity, c)
	}
	minor := decimal.New(f.Price, -f.Decimals).Shift(minorUnitExp).Truncate(0).IntPart()
	if minor <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("price %d/1e%d is below one minor unit", f.Price, f.Decimals)
	}
	return domain.PriceQuote{
		Commodity:  c,
		Price:      minor,
		Confidence: f.Confidence,
		Timestamp:  time.Unix(f.Timestamp, 0).UTC(),
		Source:     f.Source,
	}, nil
}
