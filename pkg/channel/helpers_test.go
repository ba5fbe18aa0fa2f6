package channel

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/sign"
)

const (
	keyA = "3a74512f5ddf74d1803727dbef1972d5b199be69213ff5270bced64c66169323"
	keyB = "b80bfbfb69e567170bd4bccf53f871544deef10c7b5f4405986f280f5adca536"
)

var (
	testToken  = common.HexToAddress("0x25eC837C325C3f6c7D7772CD737CBca962329621")
	testDomain = flankk.Domain{
		ChainID:           OptimismSepoliaChainID,
		Name:              "Flankk",
		VerifyingContract: common.HexToAddress("0x427fF03f452B28ebc90D9AB51db014D0B28eA0AA"),
		Version:           "0.0.5",
	}
	testNow = time.Unix(1_700_000_000, 0)
)

// fakeChain accepts the proofs registered with accept and fails every call
// while err is set.
type fakeChain struct {
	mu          sync.Mutex
	accepted    map[string]bool
	err         error
	calls       int
	blockTime   uint64
	tokenDomain flankk.Domain
	permitNonce *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accepted:  make(map[string]bool),
		blockTime: uint64(testNow.Unix()),
		tokenDomain: flankk.Domain{
			ChainID:           OptimismSepoliaChainID,
			Name:              "Test Token",
			VerifyingContract: testToken,
			Version:           "1",
		},
		permitNonce: big.NewInt(3),
	}
}

func (f *fakeChain) accept(proof []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[hexutil.Encode(proof)] = true
}

func (f *fakeChain) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeChain) ValidateCondition(_ context.Context, _ common.Address, _ flankk.Statement, source []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.accepted[hexutil.Encode(source)], nil
}

func (f *fakeChain) BlockTime(context.Context) (uint64, error) {
	return f.blockTime, nil
}

func (f *fakeChain) TokenDomain(context.Context, common.Address) (flankk.Domain, error) {
	return f.tokenDomain, nil
}

func (f *fakeChain) PermitNonce(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.permitNonce), nil
}

// testClock is a settable clock shared by the channels of a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestChainContext(chain *fakeChain, clock *testClock) *ChainContext {
	return &ChainContext{
		ChainID:   OptimismSepoliaChainID,
		Reader:    chain,
		Verifiers: DefaultVerifiers(),
		Clock:     clock.Now,
	}
}

func newTestSigner(t *testing.T, key string) *sign.EthereumSigner {
	t.Helper()
	signer, err := sign.NewEthereumSigner(key)
	require.NoError(t, err)
	return signer
}

// testPair is one channel seen from both parties, each with its own ledger.
type testPair struct {
	a     *Channel
	b     *Channel
	chain *fakeChain
	clock *testClock
	cc    *ChainContext
}

func newTestPair(t *testing.T) *testPair {
	t.Helper()

	chain := newFakeChain()
	clock := &testClock{now: testNow}
	cc := newTestChainContext(chain, clock)

	signerA := newTestSigner(t, keyA)
	signerB := newTestSigner(t, keyB)

	a, err := NewChannel(testToken, testDomain, signerA.Address(), signerB.Address(), signerA, cc)
	require.NoError(t, err)
	b, err := NewChannel(testToken, testDomain, signerA.Address(), signerB.Address(), signerB, cc)
	require.NoError(t, err)

	return &testPair{
		a:     a.Attach(NewState()),
		b:     b.Attach(NewState()),
		chain: chain,
		clock: clock,
		cc:    cc,
	}
}

// relay sends instructions over the wire and parses them on the other side.
func relay(t *testing.T, instructions []Instruction, cc *ChainContext) []Instruction {
	t.Helper()

	data, err := json.Marshal(SerializeInstructions(instructions))
	require.NoError(t, err)

	var batch []SerializedInstruction
	require.NoError(t, json.Unmarshal(data, &batch))

	parsed, err := ParseInstructions(context.Background(), batch, cc)
	require.NoError(t, err)
	return parsed
}

// fund runs a coinbase of (balA, balB) crafted by a and applied by b.
func (p *testPair) fund(t *testing.T, balA, balB int64) {
	t.Helper()

	instructions, err := p.a.CraftVolumeExpand(big.NewInt(balA), big.NewInt(balB), None{})
	require.NoError(t, err)
	require.NoError(t, p.b.ApplyInstructions(relay(t, instructions, p.cc), big.NewInt(balA+balB)))
}

// cosign exchanges update signatures over the current state.
func (p *testPair) cosign(t *testing.T) {
	t.Helper()

	sigA, err := p.a.SignUpdate()
	require.NoError(t, err)
	sigB, err := p.b.SignUpdate()
	require.NoError(t, err)

	require.NoError(t, p.b.AcceptPeerSignature(sigA))
	require.NoError(t, p.a.AcceptPeerSignature(sigB))
}

func mustState(t *testing.T, c *Channel) *State {
	t.Helper()
	state, err := c.State()
	require.NoError(t, err)
	return state
}

func mustBalances(t *testing.T, c *Channel) Balances {
	t.Helper()
	balances, err := c.Balances()
	require.NoError(t, err)
	return balances
}

func deadlineIn(d time.Duration) *big.Int {
	return big.NewInt(testNow.Add(d).Unix())
}

func mustStatement(t *testing.T, from, to Record, cond Condition, nonce uint64, cc *ChainContext) *Statement {
	t.Helper()
	stmt, err := NewStatement(from, to, cond, nonce, cc)
	require.NoError(t, err)
	return stmt
}
