package channel

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"
)

// Op is the kind of ledger mutation an Instruction performs.
type Op string

const (
	OpAdd     Op = "ADD"
	OpDispose Op = "DISPOSE"
)

// DefaultMaxConditionTimeout bounds how far in the future a received
// conditional statement may expire, in seconds (30 days).
const DefaultMaxConditionTimeout = 2_592_000

// Instruction is one ADD or DISPOSE of a Statement. A batch of instructions
// replayed in order takes the peer's ledger to the same state as the sender's.
type Instruction struct {
	Op        Op
	Statement *Statement
}

// SerializedInstruction is the wire form of an Instruction.
type SerializedInstruction struct {
	Op    Op                  `json:"op" validate:"required,oneof=ADD DISPOSE"`
	Value SerializedStatement `json:"value"`
}

func (i Instruction) Serialize() SerializedInstruction {
	return SerializedInstruction{Op: i.Op, Value: i.Statement.Serialize()}
}

// SerializeInstructions converts a batch to its wire form.
func SerializeInstructions(instructions []Instruction) []SerializedInstruction {
	out := make([]SerializedInstruction, len(instructions))
	for i, in := range instructions {
		out[i] = in.Serialize()
	}
	return out
}

// ParseInstructions rebuilds a received batch through StatementOf. Statements
// are reconstructed concurrently, at most maxConcurrentVerifierCalls at a
// time; the first failure aborts the batch.
func ParseInstructions(ctx context.Context, batch []SerializedInstruction, cc *ChainContext) ([]Instruction, error) {
	out := make([]Instruction, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentVerifierCalls)
	for i, in := range batch {
		g.Go(func() error {
			if err := validate.Struct(in); err != nil {
				return fmt.Errorf("instruction %d: %w: %v", i, ErrStatementCreation, err)
			}
			stmt, err := StatementOf(gctx, in.Value, cc)
			if err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			out[i] = Instruction{Op: in.Op, Statement: stmt}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateTimeouts reports whether every conditional ADD expires less than
// maxTimeout seconds after now.
func ValidateTimeouts(instructions []Instruction, now *big.Int, maxTimeout uint64) bool {
	limit := new(big.Int).SetUint64(maxTimeout)
	for _, in := range instructions {
		if in.Op != OpAdd {
			continue
		}
		deadline, ok := ConditionDeadline(in.Statement.condition)
		if !ok {
			continue
		}
		if new(big.Int).Sub(deadline, now).Cmp(limit) >= 0 {
			return false
		}
	}
	return true
}
