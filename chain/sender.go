package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type SenderConfig struct {
	GasLimit uint64
	// Zero asks the node.
	GasPrice            *big.Int
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// Sender signs and submits legacy transactions from one key. Nonces are taken
// from the pending state under a mutex so concurrent sends do not collide.
type Sender struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainId *big.Int
	cfg     SenderConfig
	clk     clock.Clock
	log     core.Log

	mu sync.Mutex
	// nonces of transactions sent by this process
	nonces map[common.Hash]uint64
}

func NewSender(ctx context.Context, backend Backend, privateKeyHex string, cfg SenderConfig, clk clock.Clock, log core.Log) (*Sender, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "chain/sender: invalid private key")
	}
	chainId, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chain/sender: chain id")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Sender{
		backend: backend,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainId: chainId,
		cfg:     cfg,
		clk:     clk,
		log:     log,
		nonces:  map[common.Hash]uint64{},
	}, nil
}

func (s *Sender) Address() common.Address {
	return s.from
}

func (s *Sender) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "chain/sender: nonce")
	}
	gasPrice := s.cfg.GasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		if gasPrice, err = s.backend.SuggestGasPrice(ctx); err != nil {
			return common.Hash{}, errors.Wrap(err, "chain/sender: gas price")
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      s.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainId), s.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "chain/sender: sign")
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "chain/sender: send")
	}

	s.nonces[signed.Hash()] = nonce
	s.log.Debug().Str("tx", signed.Hash().Hex()).Uint64("nonce", nonce).Str("to", to.Hex()).Msg("transaction sent")
	return signed.Hash(), nil
}

func (s *Sender) Receipt(ctx context.Context, hash common.Hash) (*core.TxReceipt, error) {
	receipt, err := s.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, core.ErrNotFound
		}
		return nil, errors.Wrapf(err, "chain/sender: receipt %s", hash.Hex())
	}
	return &core.TxReceipt{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// Dropped reports whether hash can no longer be mined. The node must have
// forgotten the transaction and either its nonce was consumed by another one
// or the account has nothing in flight.
func (s *Sender) Dropped(ctx context.Context, hash common.Hash) (bool, error) {
	_, _, err := s.backend.TransactionByHash(ctx, hash)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return false, errors.Wrapf(err, "chain/sender: tx %s", hash.Hex())
	}

	mined, err := s.backend.NonceAt(ctx, s.from, nil)
	if err != nil {
		return false, errors.Wrap(err, "chain/sender: nonce")
	}
	pending, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return false, errors.Wrap(err, "chain/sender: pending nonce")
	}

	s.mu.Lock()
	nonce, known := s.nonces[hash]
	s.mu.Unlock()
	if known && mined > nonce {
		return true, nil
	}
	return pending == mined, nil
}

// WaitMined polls for the receipt until ConfirmationTimeout elapses.
func (s *Sender) WaitMined(ctx context.Context, hash common.Hash) (*core.TxReceipt, error) {
	return WaitReceipt(ctx, s, s.clk, s.cfg.ConfirmationTimeout, s.cfg.PollInterval, hash)
}

// WaitReceipt polls watcher until the receipt shows up or timeout elapses on clk.
// A timeout returns core.ErrConfirmationTimed.
func WaitReceipt(ctx context.Context, watcher core.TxWatcher, clk clock.Clock, timeout, poll time.Duration, hash common.Hash) (*core.TxReceipt, error) {
	deadline := clk.Now().Add(timeout)
	for {
		receipt, err := watcher.Receipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		if !clk.Now().Before(deadline) {
			return nil, errors.Wrapf(core.ErrConfirmationTimed, "tx %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clk.After(poll):
		}
	}
}

// RevertReason replays the transaction at the block it was mined in.
func (s *Sender) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	tx, _, err := s.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return "", errors.Wrapf(err, "chain/sender: tx %s", hash.Hex())
	}
	receipt, err := s.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return "", errors.Wrapf(err, "chain/sender: receipt %s", hash.Hex())
	}

	msg := ethereum.CallMsg{
		From:     s.from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	_, callErr := s.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		return "", nil
	}
	return revertReason(callErr), nil
}
