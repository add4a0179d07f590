package core

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type (
	// SignedPrice is one signed data package carrying a single price.
	SignedPrice struct {
		Symbol    string          `json:"symbol"`
		Value     decimal.Decimal `json:"value"`
		Timestamp int64           `json:"timestamp"` // unix millis
		Signer    common.Address  `json:"signer"`
		Signature []byte          `json:"signature"`
	}

	PriceOracle interface {
		// Attestations returns the latest signed prices for symbols, possibly
		// several per symbol from different signers.
		Attestations(ctx context.Context, symbols []string) ([]*SignedPrice, error)
		// Payload serializes attestations into the calldata suffix the loan
		// contract verifies.
		Payload(attestations []*SignedPrice) ([]byte, error)
	}
)

// MedianPrices reduces attestations to one price per symbol.
func MedianPrices(attestations []*SignedPrice) Prices {
	grouped := map[string][]decimal.Decimal{}
	for _, a := range attestations {
		grouped[a.Symbol] = append(grouped[a.Symbol], a.Value)
	}
	prices := make(Prices, len(grouped))
	for symbol, values := range grouped {
		prices[symbol] = median(values)
	}
	return prices
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return decimal.Avg(sorted[n/2-1], sorted[n/2])
}
