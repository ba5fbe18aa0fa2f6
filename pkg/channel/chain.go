package channel

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/log"
)

// ChainReader is the read-only view of the settlement chain a channel needs.
type ChainReader interface {
	// ValidateCondition performs the verifier's `validate(statement, source)` view call.
	ValidateCondition(ctx context.Context, verifier common.Address, stmt flankk.Statement, source []byte) (bool, error)
	// BlockTime returns the timestamp of the latest block, in seconds.
	BlockTime(ctx context.Context) (uint64, error)
}

// PermitReader is optionally implemented by a ChainReader that can serve the
// ERC-2612 data needed to sign token permits.
type PermitReader interface {
	TokenDomain(ctx context.Context, token common.Address) (flankk.Domain, error)
	PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// ChainContext carries everything chain specific a channel depends on.
type ChainContext struct {
	ChainID   uint64
	Reader    ChainReader
	Verifiers *Verifiers
	Clock     func() time.Time // defaults to time.Now
	Logger    log.Logger       // defaults to a NoopLogger
}

// Now returns the current time in whole seconds, rounded up.
func (cc *ChainContext) Now() *big.Int {
	clock := cc.Clock
	if clock == nil {
		clock = time.Now
	}
	t := clock()
	secs := t.Unix()
	if t.Nanosecond() > 0 {
		secs++
	}
	return big.NewInt(secs)
}

func (cc *ChainContext) logger() log.Logger {
	if cc.Logger == nil {
		return log.NewNoopLogger()
	}
	return cc.Logger
}

func (cc *ChainContext) verifiers() *Verifiers {
	if cc.Verifiers == nil {
		return DefaultVerifiers()
	}
	return cc.Verifiers
}
