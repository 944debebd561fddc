package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// SystemProgramTransferInstruction is the System Program instruction index for Transfer.
const SystemProgramTransferInstruction = uint32(2)

var errNoTransfer = errors.New("no system transfer instruction")

// transfer is a native SOL movement extracted from a transaction.
type transfer struct {
	from     solana.PublicKey
	to       solana.PublicKey
	lamports uint64
}

// lamportsToSOL converts lamports to SOL without float accumulation.
func lamportsToSOL(lamports uint64) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).InexactFloat64()
}

// parseSystemTransfer decodes a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (transfer, error) {
	// [0..4]  = instruction type (u32, 2 = Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return transfer{}, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return transfer{}, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	// Transfer accounts: [from, to]
	if len(instruction.Accounts) < 2 {
		return transfer{}, fmt.Errorf("transfer instruction has %d accounts", len(instruction.Accounts))
	}
	fromIdx, toIdx := int(instruction.Accounts[0]), int(instruction.Accounts[1])
	if fromIdx >= len(accountKeys) || toIdx >= len(accountKeys) {
		return transfer{}, fmt.Errorf("account index out of bounds")
	}

	return transfer{
		from:     accountKeys[fromIdx],
		to:       accountKeys[toIdx],
		lamports: binary.LittleEndian.Uint64(instruction.Data[4:12]),
	}, nil
}

// findSystemTransfer returns the first System Program transfer in tx that
// moves funds from or to wallet. Batched transactions can carry transfers
// between other accounts; the first transfer of any kind is used only when
// none involves wallet.
func findSystemTransfer(wallet solana.PublicKey, tx *solana.Transaction) (transfer, error) {
	keys := tx.Message.AccountKeys
	var (
		first transfer
		found bool
	)
	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(keys) {
			continue
		}
		if !keys[instruction.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		tr, err := parseSystemTransfer(instruction, keys)
		if err != nil {
			continue
		}
		if tr.from.Equals(wallet) || tr.to.Equals(wallet) {
			return tr, nil
		}
		if !found {
			first, found = tr, true
		}
	}
	if found {
		return first, nil
	}
	return transfer{}, errNoTransfer
}

// transferFromBalances infers a transfer from the pre/post balances of the
// queried wallet. The counterparty is the first other account whose balance
// moved in the opposite direction.
func transferFromBalances(wallet solana.PublicKey, keys []solana.PublicKey, meta *rpc.TransactionMeta) (transfer, error) {
	if meta == nil {
		return transfer{}, errors.New("transaction meta missing")
	}
	idx := -1
	for i, k := range keys {
		if k.Equals(wallet) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
		return transfer{}, errors.New("wallet not found in account keys")
	}

	pre, post := meta.PreBalances[idx], meta.PostBalances[idx]
	tr := transfer{from: wallet}
	outgoing := pre >= post
	if outgoing {
		tr.lamports = pre - post
	} else {
		tr.lamports = post - pre
		tr.to = wallet
	}

	for i, k := range keys {
		if i == idx || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		gained := meta.PostBalances[i] > meta.PreBalances[i]
		if outgoing && gained {
			tr.to = k
			break
		}
		if !outgoing && meta.PostBalances[i] < meta.PreBalances[i] {
			tr.from = k
			break
		}
	}
	return tr, nil
}

// toRecord converts one fetched transaction into a TransactionRecord.
// fetchedAt is used when neither the signature nor the result carries a block time.
func toRecord(
	wallet solana.PublicKey,
	sig *rpc.TransactionSignature,
	result *rpc.GetTransactionResult,
	fetchedAt time.Time,
) (chain.TransactionRecord, error) {
	if result == nil || result.Transaction == nil {
		return chain.TransactionRecord{}, errors.New("transaction not available")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return chain.TransactionRecord{}, fmt.Errorf("failed to decode transaction: %w", err)
	}

	tr, err := findSystemTransfer(wallet, tx)
	if err != nil {
		tr, err = transferFromBalances(wallet, tx.Message.AccountKeys, result.Meta)
		if err != nil {
			return chain.TransactionRecord{}, err
		}
	}

	ts := fetchedAt
	switch {
	case result.BlockTime != nil:
		ts = result.BlockTime.Time()
	case sig.BlockTime != nil:
		ts = sig.BlockTime.Time()
	}

	rec := chain.TransactionRecord{
		Hash:      sig.Signature.String(),
		From:      tr.from.String(),
		Amount:    lamportsToSOL(tr.lamports),
		Timestamp: ts.UTC(),
		Chain:     chain.SOL,
	}
	if !tr.to.IsZero() {
		rec.To = tr.to.String()
	}
	return rec, nil
}
