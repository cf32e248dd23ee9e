package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goliatone/go-escrow-pipeline/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Contract is the subset of *bind.BoundContract the escrow client drives.
type Contract interface {
	Call(opts *bind.CallOpts, results *[]any, method string, params ...any) error
	Transact(opts *bind.TransactOpts, method string, params ...any) (*types.Transaction, error)
}

// Backend is what an escrow client needs from a chain connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type ContractFactory func(address common.Address) Contract

type MinedWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

type EscrowClientOption func(*EscrowClient)

func WithContractFactory(factory ContractFactory) EscrowClientOption {
	return func(c *EscrowClient) {
		if factory != nil {
			c.contracts = factory
		}
	}
}

func WithMinedWaiter(wait MinedWaiter) EscrowClientOption {
	return func(c *EscrowClient) {
		if wait != nil {
			c.waitMined = wait
		}
	}
}

func WithGasPriceSuggester(suggest func(ctx context.Context) (*big.Int, error)) EscrowClientOption {
	return func(c *EscrowClient) {
		if suggest != nil {
			c.suggestGasPrice = suggest
		}
	}
}

func WithLogger(logger core.Logger) EscrowClientOption {
	return func(c *EscrowClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// EscrowClient implements core.EscrowClient for one chain. Writes are signed
// with the operator key and wait for the receipt.
type EscrowClient struct {
	chainID         *big.Int
	key             *ecdsa.PrivateKey
	contracts       ContractFactory
	waitMined       MinedWaiter
	suggestGasPrice func(ctx context.Context) (*big.Int, error)
	logger          core.Logger
}

func NewEscrowClient(chainID int64, backend Backend, key *ecdsa.PrivateKey, opts ...EscrowClientOption) (*EscrowClient, error) {
	if chainID <= 0 {
		return nil, fmt.Errorf("chain: chain id must be positive")
	}
	if key == nil {
		return nil, fmt.Errorf("chain: operator key is required")
	}
	client := &EscrowClient{
		chainID: big.NewInt(chainID),
		key:     key,
	}
	if backend != nil {
		parsed, err := parseEscrowABI()
		if err != nil {
			return nil, fmt.Errorf("chain: parse escrow abi: %w", err)
		}
		client.contracts = func(address common.Address) Contract {
			return bind.NewBoundContract(address, parsed, backend, backend, backend)
		}
		client.waitMined = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
			return bind.WaitMined(ctx, backend, tx)
		}
		client.suggestGasPrice = backend.SuggestGasPrice
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.contracts == nil || client.waitMined == nil {
		return nil, fmt.Errorf("chain: backend is required")
	}
	if client.logger == nil {
		_, client.logger = glog.Resolve("pipeline.chain", nil, nil)
	}
	return client, nil
}

func (c *EscrowClient) GetStatus(ctx context.Context, escrowAddress string) (core.EscrowStatus, error) {
	ordinal, err := callTyped[uint8](ctx, c, escrowAddress, methodStatus)
	if err != nil {
		return "", err
	}
	status, ok := statusFromOrdinal(ordinal)
	if !ok {
		return "", core.InvariantError("unknown escrow status", map[string]any{
			"escrow_address": escrowAddress,
			"status":         ordinal,
		})
	}
	return status, nil
}

func (c *EscrowClient) GetJobLauncherAddress(ctx context.Context, escrowAddress string) (string, error) {
	return c.callAddress(ctx, escrowAddress, methodLauncher)
}

func (c *EscrowClient) GetExchangeOracleAddress(ctx context.Context, escrowAddress string) (string, error) {
	return c.callAddress(ctx, escrowAddress, methodExchangeOracle)
}

func (c *EscrowClient) GetRecordingOracleAddress(ctx context.Context, escrowAddress string) (string, error) {
	return c.callAddress(ctx, escrowAddress, methodRecordingOracle)
}

func (c *EscrowClient) GetManifestURL(ctx context.Context, escrowAddress string) (string, error) {
	return callTyped[string](ctx, c, escrowAddress, methodManifestURL)
}

func (c *EscrowClient) GetIntermediateResultsURL(ctx context.Context, escrowAddress string) (string, error) {
	return callTyped[string](ctx, c, escrowAddress, methodIntermediateResultsURL)
}

func (c *EscrowClient) Complete(ctx context.Context, escrowAddress string, opts core.TxOptions) error {
	return c.transact(ctx, escrowAddress, opts, methodComplete)
}

func (c *EscrowClient) BulkPayOut(
	ctx context.Context,
	escrowAddress string,
	payouts []core.Payout,
	resultsURL string,
	resultsHash string,
	opts core.TxOptions,
) error {
	if len(payouts) == 0 {
		return core.InvariantError("bulk payout requires at least one recipient", map[string]any{
			"escrow_address": escrowAddress,
		})
	}
	recipients := make([]common.Address, 0, len(payouts))
	amounts := make([]*big.Int, 0, len(payouts))
	for _, payout := range payouts {
		if !common.IsHexAddress(payout.Recipient) {
			return core.InvariantError("payout recipient is not an address", map[string]any{
				"escrow_address": escrowAddress,
				"recipient":      payout.Recipient,
			})
		}
		if payout.Amount == nil || payout.Amount.Sign() <= 0 {
			return core.InvariantError("payout amount must be positive", map[string]any{
				"escrow_address": escrowAddress,
				"recipient":      payout.Recipient,
			})
		}
		recipients = append(recipients, common.HexToAddress(payout.Recipient))
		amounts = append(amounts, new(big.Int).Set(payout.Amount))
	}
	return c.transact(ctx, escrowAddress, opts, methodBulkPayOut, recipients, amounts, resultsURL, resultsHash, big.NewInt(0))
}

func (c *EscrowClient) callAddress(ctx context.Context, escrowAddress string, method string) (string, error) {
	address, err := callTyped[common.Address](ctx, c, escrowAddress, method)
	if err != nil {
		return "", err
	}
	return strings.ToLower(address.Hex()), nil
}

func callTyped[T any](ctx context.Context, c *EscrowClient, escrowAddress string, method string) (T, error) {
	var zero T
	contract, err := c.contract(escrowAddress)
	if err != nil {
		return zero, err
	}
	results := []any{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, method); err != nil {
		return zero, c.chainError(err, escrowAddress, method)
	}
	if len(results) == 0 {
		return zero, c.chainError(fmt.Errorf("empty result"), escrowAddress, method)
	}
	value, ok := results[0].(T)
	if !ok {
		return zero, c.chainError(fmt.Errorf("unexpected result type %T", results[0]), escrowAddress, method)
	}
	return value, nil
}

func (c *EscrowClient) transact(ctx context.Context, escrowAddress string, opts core.TxOptions, method string, params ...any) error {
	contract, err := c.contract(escrowAddress)
	if err != nil {
		return err
	}
	txOpts, err := c.transactOpts(ctx, opts)
	if err != nil {
		return c.chainError(err, escrowAddress, method)
	}
	tx, err := contract.Transact(txOpts, method, params...)
	if err != nil {
		return c.chainError(err, escrowAddress, method)
	}
	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return c.chainError(err, escrowAddress, method)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return c.chainError(fmt.Errorf("transaction %s reverted", tx.Hash().Hex()), escrowAddress, method)
	}
	c.logger.Info("escrow transaction mined",
		"chain_id", c.chainID.Int64(),
		"escrow_address", escrowAddress,
		"method", method,
		"tx_hash", tx.Hash().Hex(),
	)
	return nil
}

func (c *EscrowClient) transactOpts(ctx context.Context, opts core.TxOptions) (*bind.TransactOpts, error) {
	txOpts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	txOpts.Context = ctx
	if opts.GasLimit > 0 {
		txOpts.GasLimit = opts.GasLimit
	}
	if opts.GasPriceMultiplier > 0 && c.suggestGasPrice != nil {
		suggested, err := c.suggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		txOpts.GasPrice = ScaleGasPrice(suggested, opts.GasPriceMultiplier)
	}
	return txOpts, nil
}

func (c *EscrowClient) contract(escrowAddress string) (Contract, error) {
	if !common.IsHexAddress(escrowAddress) {
		return nil, core.BadInputError("escrow address is not a hex address", map[string]any{
			"escrow_address": escrowAddress,
		})
	}
	return c.contracts(common.HexToAddress(escrowAddress)), nil
}

func (c *EscrowClient) chainError(err error, escrowAddress string, method string) error {
	return core.ExternalError(err, core.PipelineErrorChainCallFailed, "escrow contract call failed", map[string]any{
		"chain_id":       c.chainID.Int64(),
		"escrow_address": escrowAddress,
		"method":         method,
	})
}

// ScaleGasPrice multiplies a suggested gas price, rounding down to wei.
func ScaleGasPrice(price *big.Int, multiplier float64) *big.Int {
	if price == nil {
		return nil
	}
	if multiplier <= 0 {
		return new(big.Int).Set(price)
	}
	scaled, _ := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier)).Int(nil)
	return scaled
}

var _ core.EscrowClient = (*EscrowClient)(nil)
