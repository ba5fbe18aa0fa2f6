package channel

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StatementsStore persists the live statements and nonce of channel ledgers.
// Save, Remove and Commit are atomic.
type StatementsStore interface {
	Load(ctx context.Context, channelID common.Hash, ids []common.Hash) ([]SerializedStatement, error)
	Remove(ctx context.Context, channelID common.Hash, ids []common.Hash, nonce uint64) error
	Save(ctx context.Context, channelID common.Hash, stmts []*Statement, nonce uint64) error
	// Commit saves added and removes removed in one transaction.
	Commit(ctx context.Context, channelID common.Hash, added []*Statement, removed []common.Hash, nonce uint64) error
	// Each calls fn for every stored statement until fn returns true.
	Each(ctx context.Context, channelID common.Hash, fn func(SerializedStatement) (bool, error)) error
	Has(ctx context.Context, channelID common.Hash, ids []common.Hash) (bool, error)
	Nonce(ctx context.Context, channelID common.Hash) (uint64, error)
}

// RestoreStatement rebuilds a statement read back from local storage. The
// attached source is kept as is without asking the verifier again.
func RestoreStatement(data SerializedStatement, cc *ChainContext) (*Statement, error) {
	if err := validate.Struct(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatementCreation, err)
	}

	from, err := ParseRecord(data.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrStatementCreation, err)
	}
	to, err := ParseRecord(data.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrStatementCreation, err)
	}
	nonce, err := hexutil.DecodeUint64(data.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrStatementCreation, err)
	}
	cond, err := ParseCondition(data.ConditionParams, cc.ChainID, cc.verifiers())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatementCreation, err)
	}

	stmt, err := NewStatement(from, to, cond, nonce, cc)
	if err != nil {
		return nil, err
	}
	if err := stmt.VerifyIntegrity(); err != nil {
		return nil, err
	}
	if data.Source != "" {
		if stmt.source, err = hexutil.Decode(data.Source); err != nil {
			return nil, fmt.Errorf("%w: source: %v", ErrStatementCreation, err)
		}
	}
	return stmt, nil
}

// LoadState rebuilds the ledger of a channel from store.
func LoadState(ctx context.Context, store StatementsStore, channelID common.Hash, cc *ChainContext) (*State, error) {
	nonce, err := store.Nonce(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	var stmts []*Statement
	err = store.Each(ctx, channelID, func(data SerializedStatement) (bool, error) {
		stmt, err := RestoreStatement(data, cc)
		if err != nil {
			return true, err
		}
		stmts = append(stmts, stmt)
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load statements: %w", err)
	}
	return RestoreState(stmts, nonce)
}

// PersistInstructions commits the net effect of a batch: statements added
// and disposed within the batch are never written.
func PersistInstructions(ctx context.Context, store StatementsStore, channelID common.Hash, instructions []Instruction, nonce uint64) error {
	var (
		order   []common.Hash
		added   = make(map[common.Hash]*Statement)
		removed []common.Hash
	)
	for _, in := range instructions {
		id := in.Statement.id
		switch in.Op {
		case OpAdd:
			if _, ok := added[id]; !ok {
				order = append(order, id)
			}
			added[id] = in.Statement
		case OpDispose:
			if _, ok := added[id]; ok {
				delete(added, id)
				continue
			}
			removed = append(removed, id)
		}
	}

	out := make([]*Statement, 0, len(added))
	for _, id := range order {
		if stmt, ok := added[id]; ok {
			out = append(out, stmt)
		}
	}
	return store.Commit(ctx, channelID, out, removed, nonce)
}
