package oracle

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	packages map[string][]*core.SignedPrice
	sets     int
}

func (c *memoryCache) Get(ctx context.Context, symbols []string) (map[string][]*core.SignedPrice, error) {
	out := map[string][]*core.SignedPrice{}
	for _, s := range symbols {
		if ps, ok := c.packages[s]; ok {
			out[s] = ps
		}
	}
	return out, nil
}

func (c *memoryCache) Set(ctx context.Context, packages map[string][]*core.SignedPrice, ttl time.Duration) error {
	c.sets++
	for s, ps := range packages {
		c.packages[s] = ps
	}
	return nil
}

func toDataPackage(p *core.SignedPrice) *DataPackage {
	return &DataPackage{
		DataPoints:            []DataPoint{{DataFeedId: p.Symbol, Value: p.Value}},
		TimestampMilliseconds: p.Timestamp,
		Signature:             base64.StdEncoding.EncodeToString(p.Signature),
		SignerAddress:         p.Signer.Hex(),
		DataPackageId:         p.Symbol,
	}
}

func gatewayServer(t *testing.T, body LatestResponse, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/data-packages/latest/redstone-primary-prod" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"unknown service"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func testKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
	}
	return keys
}

func TestOracleAttestations(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(1700000010000 * time.Millisecond)
	ts := int64(1700000000000)

	keys := testKeys(t, 3)
	authorized := []common.Address{crypto.PubkeyToAddress(keys[0].PublicKey), crypto.PubkeyToAddress(keys[1].PublicKey)}

	body := LatestResponse{
		"ETH": {
			toDataPackage(signedPrice(t, keys[0], "ETH", "2000", ts)),
			toDataPackage(signedPrice(t, keys[1], "ETH", "2002", ts)),
			toDataPackage(signedPrice(t, keys[2], "ETH", "9999", ts)),
		},
		"USDC": {
			toDataPackage(signedPrice(t, keys[0], "USDC", "1", ts)),
			toDataPackage(signedPrice(t, keys[1], "USDC", "0.998", ts)),
		},
	}
	var hits int32
	srv := gatewayServer(t, body, &hits)
	defer srv.Close()

	cache := &memoryCache{packages: map[string][]*core.SignedPrice{}}
	o := New(
		[]*Gateway{NewGateway(srv.URL, "redstone-primary-prod", time.Second)},
		cache,
		Config{UniqueSigners: 2, AuthorizedSigners: authorized, MaxDelay: time.Minute, CacheTTL: time.Second},
		clk,
		core.NopLog(),
	)

	attestations, err := o.Attestations(context.Background(), []string{"ETH", "USDC", "ETH"})
	require.NoError(t, err)
	require.Len(t, attestations, 4)

	prices := core.MedianPrices(attestations)
	assert.Equal(t, "2001", prices["ETH"].String())
	assert.Equal(t, "0.999", prices["USDC"].String())
	assert.Equal(t, 1, cache.sets)

	_, err = o.Attestations(context.Background(), []string{"USDC"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	payload, err := o.Payload(attestations)
	require.NoError(t, err)
	assert.Equal(t, redstoneMarker, payload[len(payload)-len(redstoneMarker):])
}

func TestOracleAttestationsErrors(t *testing.T) {
	clk := clock.NewMock()
	ts := int64(1700000000000)
	clk.Add(time.Duration(ts)*time.Millisecond + time.Hour)

	keys := testKeys(t, 1)
	body := LatestResponse{
		"ETH": {toDataPackage(signedPrice(t, keys[0], "ETH", "2000", ts))},
	}
	var hits int32
	srv := gatewayServer(t, body, &hits)
	defer srv.Close()

	t.Run("stale package", func(t *testing.T) {
		o := New([]*Gateway{NewGateway(srv.URL, "redstone-primary-prod", time.Second)}, nil,
			Config{UniqueSigners: 1, MaxDelay: time.Minute}, clk, core.NopLog())
		_, err := o.Attestations(context.Background(), []string{"ETH"})
		assert.Error(t, err)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		o := New([]*Gateway{NewGateway(srv.URL, "redstone-primary-prod", time.Second)}, nil,
			Config{UniqueSigners: 1}, clk, core.NopLog())
		_, err := o.Attestations(context.Background(), []string{"BTC"})
		assert.Error(t, err)
	})

	t.Run("falls back to next gateway", func(t *testing.T) {
		o := New([]*Gateway{
			NewGateway(srv.URL, "unknown-service", time.Second),
			NewGateway(srv.URL, "redstone-primary-prod", time.Second),
		}, nil, Config{UniqueSigners: 1}, clk, core.NopLog())
		attestations, err := o.Attestations(context.Background(), []string{"ETH"})
		require.NoError(t, err)
		assert.Len(t, attestations, 1)
	})

	t.Run("gateway error", func(t *testing.T) {
		_, err := NewGateway(srv.URL, "unknown-service", time.Second).Latest(context.Background())
		var apiErr *GatewayAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "unknown service", apiErr.Description)
	})
}

func TestPackageCodec(t *testing.T) {
	keys := testKeys(t, 1)
	p := signedPrice(t, keys[0], "ETH", "2000.5", 1700000000000)

	raw, err := encodePackages([]*core.SignedPrice{p})
	require.NoError(t, err)
	decoded, err := decodePackages(raw)
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	signer, err := RecoverSigner(decoded[0])
	require.NoError(t, err)
	assert.Equal(t, p.Signer, signer)

	_, err = decodePackages("not json")
	assert.Error(t, err)
}
