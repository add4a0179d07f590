package chain

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type callHandler func(data []byte) ([]byte, error)

type fakeBackend struct {
	mu       sync.Mutex
	handlers map[string]callHandler
	calls    []ethereum.CallMsg
	nonce    uint64
	sent     []*types.Transaction
	// receipt status of sent transactions, nil leaves them pending
	status *uint64
	// nonce of the latest mined block
	mined     uint64
	forgotten map[common.Hash]bool
}

func newFakeBackend() *fakeBackend {
	ok := types.ReceiptStatusSuccessful
	return &fakeBackend{handlers: map[string]callHandler{}, nonce: 7, mined: 7, status: &ok, forgotten: map[common.Hash]bool{}}
}

func handlerKey(to common.Address, selector []byte) string {
	return to.Hex() + ":" + hex.EncodeToString(selector[:4])
}

func (b *fakeBackend) handle(to common.Address, selector []byte, fn callHandler) {
	b.handlers[handlerKey(to, selector)] = fn
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(43114), nil
}

func (b *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, msg)
	fn, ok := b.handlers[handlerKey(*msg.To, msg.Data)]
	b.mu.Unlock()
	if !ok {
		return nil, ethereum.NotFound
	}
	return fn(msg.Data)
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeBackend) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mined, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(25_000_000_000), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == nil {
		return nil, ethereum.NotFound
	}
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: *b.status, TxHash: hash, BlockNumber: big.NewInt(101), GasUsed: 21000}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash && !b.forgotten[hash] {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (b *fakeBackend) forget(hash common.Hash, mined uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgotten[hash] = true
	b.mined = mined
}

func (b *fakeBackend) sentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

type dataError struct {
	msg  string
	data string
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }
