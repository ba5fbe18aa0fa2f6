package channel

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CoinbaseInstruction returns the ADD of the ledger's first statement while
// it is the only mutation so far, so it can be replayed to a peer that
// missed it.
func (c *Channel) CoinbaseInstruction() (Instruction, bool) {
	if c.state == nil || c.state.nonce != 1 {
		return Instruction{}, false
	}
	stmts := c.state.Statements()
	if len(stmts) != 1 {
		return Instruction{}, false
	}
	return Instruction{Op: OpAdd, Statement: stmts[0]}, true
}

// CraftVolumeExpand adds balance to the channel: an unconditional
// expansion, or a CDTLC one that resolves once the deposit is confirmed.
func (c *Channel) CraftVolumeExpand(selfDelta, peerDelta *big.Int, cond Condition) ([]Instruction, error) {
	state, err := c.State()
	if err != nil {
		return nil, err
	}
	if cond == nil {
		cond = None{}
	}
	if t := cond.Type(); t != ConditionNone && t != ConditionCDTLC {
		return nil, fmt.Errorf("%w: volume expansion under %s", ErrInvalidConditionType, t)
	}
	if selfDelta == nil || peerDelta == nil || selfDelta.Sign() < 0 || peerDelta.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	stmt, err := NewStatement(Record{}, orientedRecord(c.SelfSide(), selfDelta, peerDelta), cond, state.nonce, c.cc)
	if err != nil {
		return nil, err
	}
	if err := stmt.VerifyIntegrity(); err != nil {
		return nil, err
	}

	in, err := state.Add(stmt, true)
	if err != nil {
		return nil, err
	}

	c.cc.logger().Info("volume expansion crafted",
		"channel", c.id,
		"condition", string(cond.Type()),
		"nonce", state.nonce,
	)
	return []Instruction{in}, nil
}

// CraftTransfer moves amount from the local party to the peer under cond.
//
// The ledger is consolidated first, using proofs to resolve conditional
// statements. A zero amount stops there. Otherwise the consolidated
// statement is replaced by an unconditional remainder and the transfer
// statement itself. The batch is crafted on a copy of the ledger, so on any
// error the ledger is left untouched; ErrBalanceNotEnough is returned if
// amount exceeds the local settled balance.
func (c *Channel) CraftTransfer(ctx context.Context, amount *big.Int, cond Condition, proofs map[common.Hash][]byte) ([]Instruction, error) {
	state, err := c.State()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	self := c.SelfSide()
	if settled := state.SettledBalances().Balance(self); settled.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: settled %s, requested %s", ErrBalanceNotEnough, settled, amount)
	}

	staged := state.Clone()
	instructions, consolidated, err := staged.Consolidate(ctx, proofs, c.cc)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		if err := staged.Recompute(); err != nil {
			return nil, err
		}
		state.replace(staged)
		return instructions, nil
	}

	in, err := staged.Dispose(consolidated, false)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, in)

	remaining := new(big.Int).Sub(consolidated.to.Balance(self), amount)
	remainder, err := NewStatement(
		Record{},
		orientedRecord(self, remaining, consolidated.to.Balance(self.Other())),
		None{},
		staged.nonce,
		c.cc,
	)
	if err != nil {
		return nil, err
	}
	if in, err = staged.Add(remainder, false); err != nil {
		return nil, err
	}
	instructions = append(instructions, in)

	transfer, err := NewStatement(
		orientedRecord(self, amount, new(big.Int)),
		orientedRecord(self, new(big.Int), amount),
		cond,
		staged.nonce,
		c.cc,
	)
	if err != nil {
		return nil, err
	}
	if in, err = staged.Add(transfer, false); err != nil {
		return nil, err
	}
	instructions = append(instructions, in)

	if err := staged.Recompute(); err != nil {
		return nil, err
	}
	state.replace(staged)

	c.cc.logger().Info("transfer crafted",
		"channel", c.id,
		"amount", amount,
		"condition", string(transfer.ConditionType()),
		"instructions", len(instructions),
		"nonce", state.nonce,
	)
	return instructions, nil
}
