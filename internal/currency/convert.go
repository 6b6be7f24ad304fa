package currency

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("currency: unit price must be positive")

// UsdToCrypto converts a USD amount into crypto units at the given unit price.
// No rounding policy is applied here; precision handling belongs to the
// ledger debit path.
func UsdToCrypto(usdAmount, unitPriceUSD decimal.Decimal) (decimal.Decimal, error) {
	if unitPriceUSD.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPrice
	}
	return usdAmount.Div(unitPriceUSD), nil
}

// CryptoToUsd converts a crypto amount into USD at the given unit price.
func CryptoToUsd(cryptoAmount, unitPriceUSD decimal.Decimal) decimal.Decimal {
	return cryptoAmount.Mul(unitPriceUSD)
}
