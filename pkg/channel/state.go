package channel

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flankk/node/flankk"
)

// State is the live ledger of a channel: the set of statements that have
// been added and not yet disposed, the count of mutations applied so far,
// and the hashes committing to both.
//
// Every Add and Dispose increments the nonce. The hashes only change on
// Recompute, so a batch of mutations can be committed at once. A State is
// owned by a single goroutine.
type State struct {
	statements     map[common.Hash]*Statement
	nonce          uint64
	statementsHash common.Hash
	stateHash      common.Hash
	dirty          bool
}

// NewState returns the empty ledger: nonce 0 and zero hashes.
func NewState() *State {
	return &State{statements: make(map[common.Hash]*Statement)}
}

// RestoreState rebuilds a ledger from persisted statements. A non-zero nonce
// recomputes the hashes immediately.
func RestoreState(stmts []*Statement, nonce uint64) (*State, error) {
	s := NewState()
	for _, stmt := range stmts {
		s.statements[stmt.id] = stmt
	}
	s.nonce = nonce

	if nonce != 0 {
		if err := s.Recompute(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *State) Nonce() uint64               { return s.nonce }
func (s *State) StatementsHash() common.Hash { return s.statementsHash }
func (s *State) StateHash() common.Hash      { return s.stateHash }

// Dirty reports mutations not yet reflected in the hashes.
func (s *State) Dirty() bool { return s.dirty }

func (s *State) Len() int { return len(s.statements) }

// Statement returns the live statement with the given id.
func (s *State) Statement(id common.Hash) (*Statement, bool) {
	stmt, ok := s.statements[id]
	return stmt, ok
}

func (s *State) Has(id common.Hash) bool {
	_, ok := s.statements[id]
	return ok
}

// Statements returns the live statements ordered by descending id, the order
// they are committed in.
func (s *State) Statements() []*Statement {
	out := make([]*Statement, 0, len(s.statements))
	for _, stmt := range s.statements {
		out = append(out, stmt)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].id[:], out[j].id[:]) > 0
	})
	return out
}

// Add inserts stmt and returns the equivalent instruction.
func (s *State) Add(stmt *Statement, recompute bool) (Instruction, error) {
	s.statements[stmt.id] = stmt
	s.bump()

	if recompute {
		if err := s.Recompute(); err != nil {
			return Instruction{}, err
		}
	}
	return Instruction{Op: OpAdd, Statement: stmt}, nil
}

// Dispose removes stmt and returns the equivalent instruction.
func (s *State) Dispose(stmt *Statement, recompute bool) (Instruction, error) {
	delete(s.statements, stmt.id)
	s.bump()

	if recompute {
		if err := s.Recompute(); err != nil {
			return Instruction{}, err
		}
	}
	return Instruction{Op: OpDispose, Statement: stmt}, nil
}

func (s *State) bump() {
	s.nonce++
	s.dirty = true
}

// Recompute refreshes statementsHash and stateHash from the live set and nonce.
func (s *State) Recompute() error {
	list := make([]flankk.IdentifiedStatement, 0, len(s.statements))
	for _, stmt := range s.statements {
		list = append(list, stmt.identified())
	}

	statementsHash, err := flankk.StatementsHash(list)
	if err != nil {
		return fmt.Errorf("failed to hash statements: %w", err)
	}
	stateHash, err := flankk.StateHash(statementsHash, s.nonce)
	if err != nil {
		return fmt.Errorf("failed to hash state: %w", err)
	}

	s.statementsHash = statementsHash
	s.stateHash = stateHash
	s.dirty = false
	return nil
}

func (s *State) sumTo(filter func(*Statement) bool) Record {
	balA, balB := new(big.Int), new(big.Int)
	for _, stmt := range s.statements {
		if filter(stmt) {
			balA.Add(balA, stmt.to.BalA())
			balB.Add(balB, stmt.to.BalB())
		}
	}
	return Record{balA: balA, balB: balB}
}

// SettledBalances sums the `to` records of unconditional statements.
func (s *State) SettledBalances() Record {
	return s.sumTo(func(stmt *Statement) bool { return isNone(stmt.condition) })
}

// PendingBalances sums the `to` records of conditional statements.
func (s *State) PendingBalances() Record {
	return s.sumTo(func(stmt *Statement) bool { return !isNone(stmt.condition) })
}

// TotalBalance is the sum of every live `to` record.
func (s *State) TotalBalance() *big.Int {
	return s.sumTo(func(*Statement) bool { return true }).Sum()
}

// Clone returns a ledger that can be mutated without affecting s. Statements
// themselves are shared.
func (s *State) Clone() *State {
	cp := &State{
		statements:     make(map[common.Hash]*Statement, len(s.statements)),
		nonce:          s.nonce,
		statementsHash: s.statementsHash,
		stateHash:      s.stateHash,
		dirty:          s.dirty,
	}
	for id, stmt := range s.statements {
		cp.statements[id] = stmt
	}
	return cp
}

// replace swaps the contents of o into s.
func (s *State) replace(o *State) {
	s.statements = o.statements
	s.nonce = o.nonce
	s.statementsHash = o.statementsHash
	s.stateHash = o.stateHash
	s.dirty = o.dirty
}
