package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Backend is the part of an RPC client the collaborators need.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

var _ Backend = (*ethclient.Client)(nil)

func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "chain: dial %s", url)
	}
	return client, nil
}

// call packs method, appends suffix and unpacks the single return value.
func call(ctx context.Context, backend Backend, from, to common.Address, contract abi.ABI, method string, suffix []byte, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "chain: pack %s", method)
	}
	data = append(data, suffix...)

	res, err := backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "chain: call %s on %s", method, to.Hex())
	}
	out, err := contract.Unpack(method, res)
	if err != nil {
		return nil, errors.Wrapf(err, "chain: unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("chain: %s returned nothing", method)
	}
	return out, nil
}
