package market

import (
	"regexp"
	"slices"
)

// Number of newest base candles inspected by FilterDead and the number of
// zero-volume candles tolerated among them.
const (
	deadWindow      = 50
	deadZeroVolumes = 3
)

var leveragedPattern = regexp.MustCompile(`^[A-Z0-9]{2,}(UP|DOWN|BULL|BEAR)$|^[A-Z]+\d+[LS]$`)

func keep(markets []*Market, pred func(*Market) bool) []*Market {
	out := make([]*Market, 0, len(markets))
	for _, m := range markets {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

// FilterByOrigin keeps markets quoted in one of the given assets.
func FilterByOrigin(markets []*Market, origins []string) []*Market {
	return keep(markets, func(m *Market) bool {
		return slices.Contains(origins, m.Origin)
	})
}

// FilterBySymbols drops denied symbols and, when allow is non-empty, keeps
// only allowed ones.
func FilterBySymbols(markets []*Market, deny, allow []string) []*Market {
	return keep(markets, func(m *Market) bool {
		if slices.Contains(deny, m.Symbol) {
			return false
		}
		return len(allow) == 0 || slices.Contains(allow, m.Symbol)
	})
}

// FilterByVolume keeps markets whose recent origin-asset volume reaches min.
func FilterByVolume(markets []*Market, min float64) []*Market {
	return keep(markets, func(m *Market) bool {
		return m.OriginVolume >= min
	})
}

// FilterByCandleCount keeps markets with at least min candles on the interval.
func FilterByCandleCount(markets []*Market, interval Interval, min int) []*Market {
	return keep(markets, func(m *Market) bool {
		return len(m.Candles[interval]) >= min
	})
}

// FilterLeveraged drops leveraged tokens such as BTCUP or ETH3L.
func FilterLeveraged(markets []*Market) []*Market {
	return keep(markets, func(m *Market) bool {
		return !IsLeveraged(m.Target)
	})
}

// IsLeveraged reports whether an asset name follows a leveraged-token pattern.
func IsLeveraged(asset string) bool {
	return leveragedPattern.MatchString(asset)
}

// FilterByPrecision keeps markets whose amount precision is at least min
// decimal places.
func FilterByPrecision(markets []*Market, min int) []*Market {
	return keep(markets, func(m *Market) bool {
		return m.AmountPrecision >= min
	})
}

// FilterDead drops markets with more than three zero-volume candles among
// their newest fifty base candles.
func FilterDead(markets []*Market) []*Market {
	return keep(markets, func(m *Market) bool {
		return !IsDead(m.Candles[BaseInterval])
	})
}

// IsDead reports whether the newest base candles show a stalled market.
func IsDead(candles []Candle) bool {
	if len(candles) > deadWindow {
		candles = candles[len(candles)-deadWindow:]
	}
	zero := 0
	for _, c := range candles {
		if c.Volume == 0 {
			zero++
		}
	}
	return zero > deadZeroVolumes
}
