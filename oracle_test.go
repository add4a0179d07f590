package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianPrices(t *testing.T) {
	attestations := []*SignedPrice{
		{Symbol: "ETH", Value: d("2001")},
		{Symbol: "ETH", Value: d("1999")},
		{Symbol: "ETH", Value: d("2500")},
		{Symbol: "USDC", Value: d("1")},
		{Symbol: "USDC", Value: d("0.998")},
	}

	prices := MedianPrices(attestations)

	assert.Len(t, prices, 2)
	assert.True(t, prices["ETH"].Equal(d("2001")), "got %s", prices["ETH"])
	assert.True(t, prices["USDC"].Equal(d("0.999")), "got %s", prices["USDC"])
	assert.Equal(t, []string{"ETH", "USDC"}, prices.Symbols())
}
