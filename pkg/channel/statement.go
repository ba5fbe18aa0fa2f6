package channel

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/flankk/node/flankk"
)

// Statement is an atomic balance transition from one Record to another,
// gated by a Condition. It is identified by the hash of its on-chain encoding
// and its nonce. Everything except the attached source is fixed at creation.
type Statement struct {
	from          Record
	to            Record
	condition     Condition
	nonce         uint64
	verifier      common.Address
	encodedParams []byte
	id            common.Hash
	source        []byte
}

// NewStatement builds a statement and derives its verifier, encoded condition and id.
func NewStatement(from, to Record, cond Condition, nonce uint64, cc *ChainContext) (*Statement, error) {
	if cond == nil {
		cond = None{}
	}
	cond = CloneCondition(cond)
	if v, ok := cond.(CDTLC); ok {
		logAddress, err := cc.verifiers().LogAddress(cc.ChainID)
		if err != nil {
			return nil, err
		}
		v.LogAddress = logAddress
		cond = v
	}

	verifier, err := cc.verifiers().Address(cc.ChainID, cond.Type())
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeCondition(cond)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition: %w", err)
	}

	s := &Statement{
		from:          from,
		to:            to,
		condition:     cond,
		nonce:         nonce,
		verifier:      verifier,
		encodedParams: encoded,
	}

	s.id, err = flankk.StatementID(s.Onchain(), nonce)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Statement) ID() common.Hash              { return s.id }
func (s *Statement) From() Record                 { return s.from }
func (s *Statement) To() Record                   { return s.to }
func (s *Statement) Nonce() uint64                { return s.nonce }
func (s *Statement) Verifier() common.Address     { return s.verifier }
func (s *Statement) Condition() Condition         { return CloneCondition(s.condition) }
func (s *Statement) ConditionType() ConditionType { return s.condition.Type() }

func (s *Statement) EncodedConditionParams() []byte {
	return append([]byte(nil), s.encodedParams...)
}

// Source returns the attached disposal proof, or nil.
func (s *Statement) Source() []byte {
	if s.source == nil {
		return nil
	}
	return append([]byte(nil), s.source...)
}

// Onchain returns the struct the verifier contracts receive.
func (s *Statement) Onchain() flankk.Statement {
	return flankk.Statement{
		From:            s.from.onchain(),
		To:              s.to.onchain(),
		Condition:       s.verifier,
		ConditionParams: s.EncodedConditionParams(),
	}
}

func (s *Statement) identified() flankk.IdentifiedStatement {
	return flankk.IdentifiedStatement{ID: s.id, Statement: s.Onchain()}
}

// IsUnconditionalVolumeExpand reports an unconditional statement that creates
// balance out of nothing: from (0,0) to a record with a positive balance.
func (s *Statement) IsUnconditionalVolumeExpand() bool {
	return isNone(s.condition) && s.createsVolume()
}

// IsCDTLC reports a deposit-gated volume expansion.
func (s *Statement) IsCDTLC() bool {
	return s.condition.Type() == ConditionCDTLC && s.createsVolume()
}

func (s *Statement) IsVolumeExpand() bool {
	return s.IsCDTLC() || s.IsUnconditionalVolumeExpand()
}

func (s *Statement) createsVolume() bool {
	return s.from.IsZero() && (s.to.BalA().Sign() > 0 || s.to.BalB().Sign() > 0)
}

// VerifyIntegrity checks the record invariants. It returns ErrInvalidRecords
// for negative or oversized balances and ErrImbalancedRecords when a
// statement that is not a volume expansion changes the total.
func (s *Statement) VerifyIntegrity() error {
	if !s.from.valid() || !s.to.valid() {
		return ErrInvalidRecords
	}
	if !s.IsVolumeExpand() && s.from.Sum().Cmp(s.to.Sum()) != 0 {
		return ErrImbalancedRecords
	}
	return nil
}

// expired reports a conditional statement whose deadline has passed.
func (s *Statement) expired(cc *ChainContext) bool {
	deadline, ok := ConditionDeadline(s.condition)
	return ok && deadline.Cmp(cc.Now()) < 0
}

// pending reports a conditional statement whose deadline is still ahead.
func (s *Statement) pending(cc *ChainContext) bool {
	deadline, ok := ConditionDeadline(s.condition)
	return ok && deadline.Cmp(cc.Now()) > 0
}

// VerifyDisposing reports whether the statement may be removed from the
// ledger given proof. Unconditional and expired statements always may;
// statements that need a proof never may without one; otherwise the
// verifier contract decides. Any failure to reach the verifier is a rejection.
func (s *Statement) VerifyDisposing(ctx context.Context, cc *ChainContext, proof []byte) bool {
	if isNone(s.condition) || s.expired(cc) {
		return true
	}
	if RequiresProof(s.condition.Type()) && len(proof) == 0 {
		return false
	}
	if cc.Reader == nil {
		return false
	}

	ok, err := cc.Reader.ValidateCondition(ctx, s.verifier, s.Onchain(), proof)
	if err != nil {
		cc.logger().Warn("verifier call failed", "statement", s.id, "verifier", s.verifier, "error", err)
		return false
	}
	return ok
}

// ApplySource attaches proof if it makes the statement disposable.
func (s *Statement) ApplySource(ctx context.Context, cc *ChainContext, proof []byte) bool {
	if !s.VerifyDisposing(ctx, cc, proof) {
		return false
	}
	if len(proof) > 0 {
		s.source = append([]byte(nil), proof...)
	}
	return true
}

// SerializedStatement is the wire form of a Statement.
type SerializedStatement struct {
	From            SerializedRecord    `json:"from"`
	To              SerializedRecord    `json:"to"`
	ConditionParams SerializedCondition `json:"conditionParams"`
	Nonce           string              `json:"nonce" validate:"required,hexint"`
	Source          string              `json:"source,omitempty" validate:"omitempty,hexbytes"`
}

func (s *Statement) Serialize() SerializedStatement {
	out := SerializedStatement{
		From:            s.from.Serialize(),
		To:              s.to.Serialize(),
		ConditionParams: SerializeCondition(s.condition),
		Nonce:           hexutil.EncodeUint64(s.nonce),
	}
	if len(s.source) > 0 {
		out.Source = hexutil.Encode(s.source)
	}
	return out
}

// StatementOf is the only way statements received from a peer enter the
// ledger. It rebuilds the statement, checks its integrity and, when a source
// is attached, re-validates it against the verifier.
func StatementOf(ctx context.Context, data SerializedStatement, cc *ChainContext) (*Statement, error) {
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
	if !from.valid() || !to.valid() {
		return nil, ErrInvalidRecords
	}

	nonce, err := parseHexInt(data.Nonce)
	if err != nil || nonce.Sign() < 0 || !nonce.IsUint64() {
		return nil, fmt.Errorf("%w: invalid nonce %q", ErrStatementCreation, data.Nonce)
	}

	cond, err := ParseCondition(data.ConditionParams, cc.ChainID, cc.verifiers())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatementCreation, err)
	}

	stmt, err := NewStatement(from, to, cond, nonce.Uint64(), cc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatementCreation, err)
	}
	if err := stmt.VerifyIntegrity(); err != nil {
		return nil, err
	}

	if data.Source != "" {
		source, err := hexutil.Decode(data.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStatementCreation, err)
		}
		if !stmt.ApplySource(ctx, cc, source) {
			return nil, ErrInvalidSource
		}
	}
	return stmt, nil
}
