package channel

import (
	"fmt"
	"math/big"
)

// ApplyInstructions replays a batch received from the peer onto the local
// ledger. onchainTotal is the amount the custody contract holds for the
// channel.
//
// On a fresh ledger the batch must be exactly the coinbase: one ADD of an
// unconditional volume expansion. Afterwards every ADD must not take value
// away from the local party, and the resulting total must be covered by
// onchainTotal unless the batch adds a CDTLC volume expansion, in which case the
// total must exceed it. The batch is applied to a copy and only becomes
// visible if every check passes.
func (c *Channel) ApplyInstructions(instructions []Instruction, onchainTotal *big.Int) error {
	state, err := c.State()
	if err != nil {
		return err
	}
	if onchainTotal == nil {
		onchainTotal = new(big.Int)
	}

	coinbase := state.nonce == 0
	if coinbase && !isCoinbaseBatch(instructions) {
		return ErrInvalidCoinbaseInstruction
	}

	self := c.SelfSide()
	staged := state.Clone()
	expanded := false
	for i, in := range instructions {
		switch in.Op {
		case OpDispose:
			if !staged.Has(in.Statement.id) {
				return fmt.Errorf("instruction %d: %w: %s", i, ErrUnknownStatement, in.Statement.id)
			}
			if _, err := staged.Dispose(in.Statement, false); err != nil {
				return err
			}
		case OpAdd:
			stmt := in.Statement
			if stmt.IsCDTLC() {
				expanded = true
			}
			if stmt.from.Balance(self).Cmp(stmt.to.Balance(self)) > 0 {
				return fmt.Errorf("instruction %d: %w", i, ErrNegativeValueTransfer)
			}
			if _, err := staged.Add(stmt, false); err != nil {
				return err
			}
		default:
			return fmt.Errorf("instruction %d: %w: unknown op %q", i, ErrStatementCreation, in.Op)
		}
	}

	total := staged.TotalBalance()
	switch {
	case !expanded && !coinbase && onchainTotal.Cmp(total) < 0:
		return fmt.Errorf("%w: onchain %s, ledger %s", ErrInconsistentTotalBalances, onchainTotal, total)
	case expanded && onchainTotal.Cmp(total) >= 0:
		return fmt.Errorf("%w: onchain %s, ledger %s", ErrInconsistentTotalBalancesAfterExpansion, onchainTotal, total)
	}

	if err := staged.Recompute(); err != nil {
		return err
	}
	state.replace(staged)

	c.cc.logger().Debug("instructions applied",
		"channel", c.id,
		"count", len(instructions),
		"nonce", state.nonce,
		"expanded", expanded,
	)
	return nil
}

func isCoinbaseBatch(instructions []Instruction) bool {
	return len(instructions) == 1 &&
		instructions[0].Op == OpAdd &&
		instructions[0].Statement.IsUnconditionalVolumeExpand()
}
