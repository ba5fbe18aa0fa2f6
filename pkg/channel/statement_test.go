package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatement(t *testing.T) {
	cc := newTestChainContext(newFakeChain(), &testClock{now: testNow})

	t.Run("id is stable", func(t *testing.T) {
		s1 := mustStatement(t, Record{}, NewRecordInt64(100, 50), None{}, 0, cc)
		s2 := mustStatement(t, Record{}, NewRecordInt64(100, 50), None{}, 0, cc)
		s3 := mustStatement(t, Record{}, NewRecordInt64(100, 50), None{}, 1, cc)

		assert.Equal(t, s1.ID(), s2.ID())
		assert.NotEqual(t, s1.ID(), s3.ID())
		assert.Equal(t, common.Address{}, s1.Verifier())
		assert.Equal(t, []byte{0x00}, s1.EncodedConditionParams())
	})

	t.Run("verifier from table", func(t *testing.T) {
		stmt := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), TLC{Deadline: deadlineIn(time.Hour)}, 3, cc)
		expected, err := DefaultVerifiers().Address(OptimismSepoliaChainID, ConditionTLC)
		require.NoError(t, err)
		assert.Equal(t, expected, stmt.Verifier())
		assert.NotEmpty(t, stmt.EncodedConditionParams())
	})

	t.Run("unknown chain", func(t *testing.T) {
		other := *cc
		other.ChainID = 1
		_, err := NewStatement(Record{}, NewRecordInt64(1, 0), TLC{Deadline: deadlineIn(time.Hour)}, 0, &other)
		assert.ErrorIs(t, err, ErrInvalidConditionType)
	})
}

func TestStatementVerifyIntegrity(t *testing.T) {
	cc := newTestChainContext(newFakeChain(), &testClock{now: testNow})
	cdtlc := CDTLC{Deadline: deadlineIn(time.Hour), Proof: common.HexToHash("0x01")}

	tests := []struct {
		name    string
		from    Record
		to      Record
		cond    Condition
		want    error
		expand  bool
		cdtlc   bool
		uncondX bool
	}{
		{"balanced transfer", NewRecordInt64(100, 0), NewRecordInt64(90, 10), None{}, nil, false, false, false},
		{"unconditional expansion", Record{}, NewRecordInt64(100, 50), None{}, nil, true, false, true},
		{"cdtlc expansion", Record{}, NewRecordInt64(10, 0), cdtlc, nil, true, true, false},
		{"imbalanced", NewRecordInt64(100, 0), NewRecordInt64(100, 10), None{}, ErrImbalancedRecords, false, false, false},
		{"empty to is not an expansion", Record{}, Record{}, None{}, nil, false, false, false},
		{"negative", NewRecordInt64(10, 0), NewRecordInt64(20, -10), None{}, ErrInvalidRecords, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := mustStatement(t, tt.from, tt.to, tt.cond, 0, cc)
			if tt.want == nil {
				assert.NoError(t, stmt.VerifyIntegrity())
			} else {
				assert.ErrorIs(t, stmt.VerifyIntegrity(), tt.want)
			}
			assert.Equal(t, tt.expand, stmt.IsVolumeExpand())
			assert.Equal(t, tt.cdtlc, stmt.IsCDTLC())
			assert.Equal(t, tt.uncondX, stmt.IsUnconditionalVolumeExpand())
		})
	}
}

func TestVerifyDisposing(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	clock := &testClock{now: testNow}
	cc := newTestChainContext(chain, clock)

	proof := []byte("secret")
	chain.accept(proof)

	transfer := func(cond Condition) *Statement {
		return mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), cond, 1, cc)
	}

	t.Run("unconditional", func(t *testing.T) {
		assert.True(t, transfer(None{}).VerifyDisposing(ctx, cc, nil))
	})

	t.Run("proof required", func(t *testing.T) {
		calls := chain.callCount()
		assert.False(t, transfer(TLC{Deadline: deadlineIn(time.Hour)}).VerifyDisposing(ctx, cc, nil))
		assert.Equal(t, calls, chain.callCount())
	})

	t.Run("verifier decides", func(t *testing.T) {
		stmt := transfer(SSTLC{Deadline: deadlineIn(time.Hour), StealthUser: common.HexToAddress("0x01")})
		assert.True(t, stmt.VerifyDisposing(ctx, cc, proof))
		assert.False(t, stmt.VerifyDisposing(ctx, cc, []byte("wrong")))
	})

	t.Run("cdtlc asks the verifier without a proof", func(t *testing.T) {
		calls := chain.callCount()
		stmt := transfer(CDTLC{Deadline: deadlineIn(time.Hour), Proof: common.HexToHash("0x01")})
		assert.False(t, stmt.VerifyDisposing(ctx, cc, nil))
		assert.Equal(t, calls+1, chain.callCount())
	})

	t.Run("verifier failure rejects", func(t *testing.T) {
		failing := newFakeChain()
		failing.accept(proof)
		failing.err = errors.New("rpc unavailable")
		fcc := newTestChainContext(failing, clock)

		stmt := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), TLC{Deadline: deadlineIn(time.Hour)}, 1, fcc)
		assert.False(t, stmt.VerifyDisposing(ctx, fcc, proof))
		assert.False(t, stmt.ApplySource(ctx, fcc, proof))
		assert.Nil(t, stmt.Source())
	})

	t.Run("expired", func(t *testing.T) {
		stmt := transfer(TLC{Deadline: deadlineIn(time.Minute)})
		clock.Advance(2 * time.Minute)
		defer clock.Advance(-2 * time.Minute)

		assert.True(t, stmt.VerifyDisposing(ctx, cc, nil))
	})

	t.Run("apply source attaches the proof", func(t *testing.T) {
		stmt := transfer(CTLC{Deadline: deadlineIn(time.Hour), Roothash: common.HexToHash("0x01"), AltRoothash: common.HexToHash("0x02")})
		require.True(t, stmt.ApplySource(ctx, cc, proof))
		assert.Equal(t, proof, stmt.Source())
	})
}

func TestStatementOf(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	cc := newTestChainContext(chain, &testClock{now: testNow})

	proof := []byte{0xca, 0xfe}
	chain.accept(proof)

	t.Run("round trip", func(t *testing.T) {
		stmt := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), TLC{Deadline: deadlineIn(time.Hour)}, 4, cc)
		require.True(t, stmt.ApplySource(ctx, cc, proof))

		parsed, err := StatementOf(ctx, stmt.Serialize(), cc)
		require.NoError(t, err)
		assert.Equal(t, stmt.ID(), parsed.ID())
		assert.Equal(t, uint64(4), parsed.Nonce())
		assert.Equal(t, proof, parsed.Source())
	})

	t.Run("invalid source", func(t *testing.T) {
		stmt := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), TLC{Deadline: deadlineIn(time.Hour)}, 4, cc)
		data := stmt.Serialize()
		data.Source = "0xbeef"

		_, err := StatementOf(ctx, data, cc)
		assert.ErrorIs(t, err, ErrInvalidSource)
	})

	t.Run("negative balance", func(t *testing.T) {
		data := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), None{}, 1, cc).Serialize()
		data.To.BalA = "-0x5"

		_, err := StatementOf(ctx, data, cc)
		assert.ErrorIs(t, err, ErrInvalidRecords)
	})

	t.Run("imbalanced", func(t *testing.T) {
		data := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), None{}, 1, cc).Serialize()
		data.To.BalB = "0xb"

		_, err := StatementOf(ctx, data, cc)
		assert.ErrorIs(t, err, ErrImbalancedRecords)
	})

	t.Run("malformed", func(t *testing.T) {
		data := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), None{}, 1, cc).Serialize()
		data.Nonce = "one"

		_, err := StatementOf(ctx, data, cc)
		assert.ErrorIs(t, err, ErrStatementCreation)
	})

	t.Run("unknown condition", func(t *testing.T) {
		data := mustStatement(t, NewRecordInt64(10, 0), NewRecordInt64(0, 10), None{}, 1, cc).Serialize()
		data.ConditionParams = SerializedCondition{Type: "HTLC", Params: map[string]string{"deadline": "0x1"}}

		_, err := StatementOf(ctx, data, cc)
		assert.ErrorIs(t, err, ErrStatementCreation)
	})
}
