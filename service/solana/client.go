package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// RPCClient is the subset of Solana JSON-RPC the adapter needs.
// It lets tests swap the network for a fake.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client is the SOL balance and transaction adapter.
// It never returns errors: failures become unavailable readings.
type Client struct {
	rpc     RPCClient
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a Solana adapter. limiter paces GetTransaction calls to
// stay under public RPC rate limits; nil disables pacing.
func NewClient(rpcClient RPCClient, limiter *rate.Limiter, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:     rpcClient,
		limiter: limiter,
		logger:  logger.With("component", "solana"),
		metrics: m,
	}
}

// Balance returns the SOL balance of address.
func (c *Client) Balance(ctx context.Context, address string) chain.BalanceReading {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid solana address", "address", address, "error", err)
		return chain.UnavailableBalance(fmt.Errorf("invalid address: %w", err))
	}

	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
	c.record("balance", err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get balance", "address", address, "error", err)
		return chain.UnavailableBalance(err)
	}
	if out == nil {
		return chain.UnavailableBalance(fmt.Errorf("empty balance response"))
	}

	return chain.BalanceReading{
		Amount: lamportsToSOL(out.Value),
		Status: chain.StatusLive,
	}
}

// Transactions returns up to limit recent native transfers touching address,
// newest first. Signatures whose details cannot be fetched or parsed are
// skipped. If pacing or the context stops the loop midway, the records fetched
// so far are kept and the reading is marked partial.
func (c *Client) Transactions(ctx context.Context, address string, limit int) chain.TransactionsReading {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid solana address", "address", address, "error", err)
		return chain.UnavailableTransactions(fmt.Errorf("invalid address: %w", err))
	}

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	c.record("signatures", err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures", "address", address, "error", err)
		return chain.UnavailableTransactions(err)
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"address", address,
		"count", len(signatures),
	)

	reading := chain.TransactionsReading{
		Transactions: make([]chain.TransactionRecord, 0, len(signatures)),
		Status:       chain.StatusLive,
	}

	maxVersion := uint64(0)
	for _, sig := range signatures {
		if sig.Err != nil {
			// Failed transactions moved no funds.
			continue
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				reading.Status = chain.StatusPartial
				reading.Err = fmt.Sprintf("truncated: %v", err)
				break
			}
		}

		txStart := time.Now()
		result, err := c.rpc.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		c.record("transaction", err, txStart)
		if err != nil {
			if ctx.Err() != nil {
				reading.Status = chain.StatusPartial
				reading.Err = fmt.Sprintf("truncated: %v", ctx.Err())
				break
			}
			c.logger.WarnContext(ctx, "failed to get transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}

		rec, err := toRecord(pubkey, sig, result, time.Now())
		if err != nil {
			c.logger.DebugContext(ctx, "could not parse transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}
		reading.Transactions = append(reading.Transactions, rec)
	}

	if reading.Status == chain.StatusPartial {
		c.logger.WarnContext(ctx, "transaction history truncated",
			"address", address,
			"requested", len(signatures),
			"count", len(reading.Transactions),
			"error", reading.Err,
		)
	}
	c.logger.DebugContext(ctx, "fetched and parsed transactions",
		"address", address,
		"count", len(reading.Transactions),
	)

	return reading
}

// PacingBudget is how long the limiter needs to admit calls GetTransaction
// requests. It is zero when pacing is disabled.
func (c *Client) PacingBudget(calls int) time.Duration {
	if c.limiter == nil || c.limiter.Limit() == rate.Inf || c.limiter.Limit() <= 0 {
		return 0
	}
	return time.Duration(float64(calls) / float64(c.limiter.Limit()) * float64(time.Second))
}

func (c *Client) record(operation string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAdapterCall(string(chain.SOL), operation, status, time.Since(start).Seconds())
}
