package oracle

import (
	"math/big"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	feedIdBytes         = 32
	valueBytes          = 32
	timestampBytes      = 6
	valueSizeBytes      = 4
	dataPointsCountSize = 3
	signatureBytes      = 65
	metadataSizeBytes   = 3
	packagesCountBytes  = 2
)

// redstoneMarker closes every payload so the contract can find its start.
var redstoneMarker = common.FromHex("0x000002ed57011e0000")

// feedId is the symbol left-aligned in 32 bytes.
func feedId(symbol string) []byte {
	return common.RightPadBytes([]byte(symbol), feedIdBytes)
}

func encodeValue(value decimal.Decimal) []byte {
	scaled := value.Shift(core.ORACLE_VALUE_DECIMALS).Round(0).BigInt()
	return common.LeftPadBytes(scaled.Bytes(), valueBytes)
}

func uintBytes(v uint64, size int) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), size)
}

// signableBytes serializes a single-point data package without its signature.
func signableBytes(p *core.SignedPrice) []byte {
	out := make([]byte, 0, feedIdBytes+valueBytes+timestampBytes+valueSizeBytes+dataPointsCountSize)
	out = append(out, feedId(p.Symbol)...)
	out = append(out, encodeValue(p.Value)...)
	out = append(out, uintBytes(uint64(p.Timestamp), timestampBytes)...)
	out = append(out, uintBytes(valueBytes, valueSizeBytes)...)
	out = append(out, uintBytes(1, dataPointsCountSize)...)
	return out
}

func packageDigest(p *core.SignedPrice) []byte {
	return crypto.Keccak256(signableBytes(p))
}

// RecoverSigner returns the address that signed the package.
func RecoverSigner(p *core.SignedPrice) (common.Address, error) {
	if len(p.Signature) != signatureBytes {
		return common.Address{}, errors.Errorf("signature of %s has %d bytes", p.Symbol, len(p.Signature))
	}
	sig := make([]byte, signatureBytes)
	copy(sig, p.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(packageDigest(p), sig)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "recover signer of %s", p.Symbol)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func serializePackage(p *core.SignedPrice) ([]byte, error) {
	if len(p.Signature) != signatureBytes {
		return nil, errors.Errorf("signature of %s has %d bytes", p.Symbol, len(p.Signature))
	}
	if p.Value.IsNegative() {
		return nil, errors.Errorf("negative value for %s", p.Symbol)
	}
	return append(signableBytes(p), p.Signature...), nil
}

// Serialize builds the calldata suffix for the given packages.
func Serialize(attestations []*core.SignedPrice, unsignedMetadata []byte) ([]byte, error) {
	if len(attestations) == 0 {
		return nil, errors.New("no data packages")
	}
	if len(attestations) >= 1<<(8*packagesCountBytes) {
		return nil, errors.Errorf("too many data packages: %d", len(attestations))
	}

	var out []byte
	for _, p := range attestations {
		b, err := serializePackage(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	out = append(out, unsignedMetadata...)
	out = append(out, uintBytes(uint64(len(unsignedMetadata)), metadataSizeBytes)...)
	out = append(out, uintBytes(uint64(len(attestations)), packagesCountBytes)...)
	out = append(out, redstoneMarker...)
	return out, nil
}
