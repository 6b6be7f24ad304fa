package currency

import (
	"errors"
	"fmt"
	"strings"
)

// Currency is the closed set of cryptocurrencies the platform custodies.
// Adding a currency means adding a constant here and covering it in the
// exhaustive switches below; unknown symbols are a configuration error,
// not a runtime condition to recover from.
type Currency string

const (
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
	LTC  Currency = "LTC"
	BCH  Currency = "BCH"
	DOGE Currency = "DOGE"
	USDT Currency = "USDT"
	TRX  Currency = "TRX"
)

var ErrUnsupportedCurrency = errors.New("currency: unsupported")

// Supported returns the closed set in a stable order.
func Supported() []Currency {
	return []Currency{BTC, ETH, LTC, BCH, DOGE, USDT, TRX}
}

// Parse validates a currency symbol against the closed set.
func Parse(symbol string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(symbol))) {
	case BTC:
		return BTC, nil
	case ETH:
		return ETH, nil
	case LTC:
		return LTC, nil
	case BCH:
		return BCH, nil
	case DOGE:
		return DOGE, nil
	case USDT:
		return USDT, nil
	case TRX:
		return TRX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, symbol)
	}
}

func (c Currency) String() string { return string(c) }
