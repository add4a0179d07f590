package oracle

import (
	"encoding/base64"
	"fmt"
	"strings"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	DataPoint struct {
		DataFeedId string          `json:"dataFeedId"`
		Value      decimal.Decimal `json:"value"`
	}

	DataPackage struct {
		DataPoints            []DataPoint `json:"dataPoints"`
		TimestampMilliseconds int64       `json:"timestampMilliseconds"`
		Signature             string      `json:"signature"`
		SignerAddress         string      `json:"signerAddress"`
		DataPackageId         string      `json:"dataPackageId"`
	}

	// LatestResponse maps a feed id to the packages of every signer.
	LatestResponse map[string][]*DataPackage

	ErrorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	GatewayAPIError struct {
		StatusCode  int
		Description string
		RawBody     string
	}
)

func (e *GatewayAPIError) Error() string {
	return fmt.Sprintf("gateway error: status=%d, description=%s", e.StatusCode, e.Description)
}

// SignedPrice converts a single-point package. Multi-point packages are not
// produced for per-feed requests and are rejected.
func (p *DataPackage) SignedPrice() (*core.SignedPrice, error) {
	if len(p.DataPoints) != 1 {
		return nil, errors.Errorf("package %s has %d data points", p.DataPackageId, len(p.DataPoints))
	}
	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return nil, errors.Wrapf(err, "decode signature of %s", p.DataPackageId)
	}
	point := p.DataPoints[0]
	return &core.SignedPrice{
		Symbol:    strings.TrimSpace(point.DataFeedId),
		Value:     point.Value,
		Timestamp: p.TimestampMilliseconds,
		Signer:    common.HexToAddress(p.SignerAddress),
		Signature: sig,
	}, nil
}
