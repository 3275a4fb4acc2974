package domain

import (
	"fmt"
	"strings"
)

// Commodity is the underlying asset a market is written on. The set is closed.
type Commodity string

const (
	CommodityCoffee    Commodity = "COFFEE"
	CommodityCocoa     Commodity = "COCOA"
	CommodityTea       Commodity = "TEA"
	CommodityGold      Commodity = "GOLD"
	CommodityWheat     Commodity = "WHEAT"
	CommodityMaize     Commodity = "MAIZE"
	CommodityAvocado   Commodity = "AVOCADO"
	CommodityMacadamia Commodity = "MACADAMIA"
	CommodityCotton    Commodity = "COTTON"
	CommodityCashew    Commodity = "CASHEW"
	CommodityRubber    Commodity = "RUBBER"
)

var commodities = []Commodity{
	CommodityCoffee,
	CommodityCocoa,
	CommodityTea,
	CommodityGold,
	CommodityWheat,
	CommodityMaize,
	CommodityAvocado,
	CommodityMacadamia,
	CommodityCotton,
	CommodityCashew,
	CommodityRubber,
}

// Commodities returns every supported commodity in display order.
func Commodities() []Commodity {
	out := make([]Commodity, len(commodities))
	copy(out, commodities)
	return out
}

// Valid reports whether c is one of the supported commodities.
func (c Commodity) Valid() bool {
	for _, known := range commodities {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCommodity parses a commodity name case-insensitively.
func ParseCommodity(s string) (Commodity, error) {
	c := Commodity(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", InvalidParam("commodity", fmt.Sprintf("unsupported commodity %q", s))
	}
	return c, nil
}
