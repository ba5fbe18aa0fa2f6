package channel

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentVerifierCalls bounds the verifier calls in flight during consolidation.
const maxConcurrentVerifierCalls = 8

// Consolidate folds every statement that can be settled into one
// unconditional statement.
//
// Scanning the ledger in commit order, an unconditional statement is disposed
// and its `to` folded in; a conditional statement that has not expired is
// disposed and its `to` folded in when proofs holds a source the verifier
// accepts; an expired conditional statement is disposed and its `from` folded
// in. Anything else stays pending. Finally a single statement from (0,0) to
// the folded record is added at the then-current nonce.
//
// The returned instructions are the disposals followed by that addition,
// which is also returned on its own. Hashes are not recomputed.
func (s *State) Consolidate(ctx context.Context, proofs map[common.Hash][]byte, cc *ChainContext) ([]Instruction, *Statement, error) {
	stmts := s.Statements()

	resolved := make([]bool, len(stmts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentVerifierCalls)
	for i, stmt := range stmts {
		if !stmt.pending(cc) {
			continue
		}
		proof, ok := proofs[stmt.id]
		if !ok && RequiresProof(stmt.condition.Type()) {
			continue
		}
		g.Go(func() error {
			resolved[i] = stmt.ApplySource(gctx, cc, proof)
			return nil
		})
	}
	// verifier failures resolve to false, never to an error
	_ = g.Wait()

	var (
		disposals []*Statement
		aggregate Record
	)
	for i, stmt := range stmts {
		switch {
		case isNone(stmt.condition), resolved[i]:
			aggregate = aggregate.Add(stmt.to)
		case stmt.expired(cc):
			aggregate = aggregate.Add(stmt.from)
		default:
			continue
		}
		disposals = append(disposals, stmt)
	}

	consolidated, err := NewStatement(Record{}, aggregate, None{}, s.nonce+uint64(len(disposals)), cc)
	if err != nil {
		return nil, nil, err
	}

	instructions := make([]Instruction, 0, len(disposals)+1)
	for _, stmt := range disposals {
		in, err := s.Dispose(stmt, false)
		if err != nil {
			return nil, nil, err
		}
		instructions = append(instructions, in)
	}
	in, err := s.Add(consolidated, false)
	if err != nil {
		return nil, nil, err
	}
	instructions = append(instructions, in)

	cc.logger().Debug("ledger consolidated",
		"disposed", len(disposals),
		"aggregate", aggregate.String(),
		"nonce", s.nonce,
	)
	return instructions, consolidated, nil
}
