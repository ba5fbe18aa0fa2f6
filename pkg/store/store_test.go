package store

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	container "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/channel"
	"github.com/flankk/node/pkg/sign"
)

const (
	keyA = "3a74512f5ddf74d1803727dbef1972d5b199be69213ff5270bced64c66169323"
	keyB = "b80bfbfb69e567170bd4bccf53f871544deef10c7b5f4405986f280f5adca536"
)

var (
	testToken  = common.HexToAddress("0x25eC837C325C3f6c7D7772CD737CBca962329621")
	testDomain = flankk.Domain{
		ChainID:           channel.OptimismSepoliaChainID,
		Name:              "Flankk",
		VerifyingContract: common.HexToAddress("0x427fF03f452B28ebc90D9AB51db014D0B28eA0AA"),
		Version:           "0.0.5",
	}
	testNow = time.Unix(1_700_000_000, 0)
)

func setupTestSqlite(t testing.TB) *gorm.DB {
	t.Helper()

	uniqueDSN := fmt.Sprintf("file::memory:test%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(uniqueDSN), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	return db
}

// setupTestPostgres creates a PostgreSQL database using testcontainers
func setupTestPostgres(ctx context.Context, t testing.TB) (*gorm.DB, testcontainers.Container) {
	t.Helper()

	postgresContainer, err := container.Run(ctx,
		"postgres:16-alpine",
		container.WithDatabase("postgres"),
		container.WithUsername("postgres"),
		container.WithPassword("postgres"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections"),
				wait.ForListeningPort("5432/tcp"),
			)))
	require.NoError(t, err)
	log.Println("Started container:", postgresContainer.GetContainerID())

	url, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	return db, postgresContainer
}

// setupTestDB chooses SQLite or Postgres based on TEST_DB_DRIVER
func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_DB_DRIVER") != "postgres" {
		return setupTestSqlite(t)
	}

	ctx := context.Background()
	db, c := setupTestPostgres(ctx, t)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate PostgreSQL container: %v", err)
		}
	})
	return db
}

// staticChain rejects every proof.
type staticChain struct{}

func (staticChain) ValidateCondition(context.Context, common.Address, flankk.Statement, []byte) (bool, error) {
	return false, nil
}

func (staticChain) BlockTime(context.Context) (uint64, error) {
	return uint64(testNow.Unix()), nil
}

func newTestChannel(t *testing.T) (*channel.Channel, *channel.ChainContext) {
	t.Helper()

	cc := &channel.ChainContext{
		ChainID:   channel.OptimismSepoliaChainID,
		Reader:    staticChain{},
		Verifiers: channel.DefaultVerifiers(),
		Clock:     func() time.Time { return testNow },
	}
	signerA, err := sign.NewEthereumSigner(keyA)
	require.NoError(t, err)
	signerB, err := sign.NewEthereumSigner(keyB)
	require.NoError(t, err)

	ch, err := channel.NewChannel(testToken, testDomain, signerA.Address(), signerB.Address(), signerA, cc)
	require.NoError(t, err)
	return ch, cc
}

func mustState(t *testing.T, ch *channel.Channel) *channel.State {
	t.Helper()
	state, err := ch.State()
	require.NoError(t, err)
	return state
}

func TestStoreLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(setupTestDB(t))
	ch, cc := newTestChannel(t)

	instructions, err := ch.CraftVolumeExpand(big.NewInt(100), big.NewInt(50), channel.None{})
	require.NoError(t, err)
	require.NoError(t, channel.PersistInstructions(ctx, store, ch.ID(), instructions, mustState(t, ch).Nonce()))

	deadline := big.NewInt(testNow.Add(time.Hour).Unix())
	instructions, err = ch.CraftTransfer(ctx, big.NewInt(10), channel.TLC{Deadline: deadline}, nil)
	require.NoError(t, err)
	require.NoError(t, channel.PersistInstructions(ctx, store, ch.ID(), instructions, mustState(t, ch).Nonce()))

	nonce, err := store.Nonce(ctx, ch.ID())
	require.NoError(t, err)
	assert.Equal(t, mustState(t, ch).Nonce(), nonce)

	loaded, err := store.LoadState(ctx, ch.ID(), cc)
	require.NoError(t, err)
	assert.Equal(t, mustState(t, ch).StateHash(), loaded.StateHash())
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 0, mustState(t, ch).TotalBalance().Cmp(loaded.TotalBalance()))

	t.Run("has", func(t *testing.T) {
		live := []common.Hash{instructions[3].Statement.ID(), instructions[4].Statement.ID()}
		has, err := store.Has(ctx, ch.ID(), append(live, live[0]))
		require.NoError(t, err)
		assert.True(t, has)

		has, err = store.Has(ctx, ch.ID(), []common.Hash{instructions[0].Statement.ID()})
		require.NoError(t, err)
		assert.False(t, has, "disposed statement is gone")
	})

	t.Run("load keeps requested order", func(t *testing.T) {
		ids := []common.Hash{instructions[4].Statement.ID(), common.HexToHash("0x01"), instructions[3].Statement.ID()}
		stmts, err := store.Load(ctx, ch.ID(), ids)
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, instructions[4].Statement.Serialize(), stmts[0])
		assert.Equal(t, instructions[3].Statement.Serialize(), stmts[1])
	})

	t.Run("each stops early", func(t *testing.T) {
		var seen int
		err := store.Each(ctx, ch.ID(), func(channel.SerializedStatement) (bool, error) {
			seen++
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, seen)
	})

	t.Run("ledgers are per channel", func(t *testing.T) {
		other := common.HexToHash("0xbeef")
		nonce, err := store.Nonce(ctx, other)
		require.NoError(t, err)
		assert.Zero(t, nonce)

		state, err := store.LoadState(ctx, other, cc)
		require.NoError(t, err)
		assert.Zero(t, state.Len())
	})
}

func TestStoreCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := New(setupTestDB(t))
	ch, _ := newTestChannel(t)

	instructions, err := ch.CraftVolumeExpand(big.NewInt(100), big.NewInt(50), channel.None{})
	require.NoError(t, err)
	genesis := instructions[0].Statement
	require.NoError(t, store.Save(ctx, ch.ID(), []*channel.Statement{genesis}, 1))

	// Saving the same statement again violates the primary key.
	err = store.Commit(ctx, ch.ID(), []*channel.Statement{genesis}, []common.Hash{genesis.ID()}, 5)
	require.Error(t, err)

	has, err := store.Has(ctx, ch.ID(), []common.Hash{genesis.ID()})
	require.NoError(t, err)
	assert.True(t, has)

	nonce, err := store.Nonce(ctx, ch.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	require.NoError(t, store.Remove(ctx, ch.ID(), []common.Hash{genesis.ID()}, 2))
	has, err = store.Has(ctx, ch.ID(), []common.Hash{genesis.ID()})
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStoreKeepsSource(t *testing.T) {
	ctx := context.Background()
	store := New(setupTestDB(t))
	ch, cc := newTestChannel(t)

	deadline := big.NewInt(testNow.Add(time.Hour).Unix())
	data := channel.SerializedStatement{
		From:            channel.NewRecordInt64(10, 0).Serialize(),
		To:              channel.NewRecordInt64(0, 10).Serialize(),
		ConditionParams: channel.SerializeCondition(channel.TLC{Deadline: deadline}),
		Nonce:           "0x2",
		Source:          "0xdeadbeef",
	}
	stmt, err := channel.RestoreStatement(data, cc)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, ch.ID(), []*channel.Statement{stmt}, 3))

	stored, err := store.Load(ctx, ch.ID(), []common.Hash{stmt.ID()})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, data, stored[0])
}

func TestStoreBackup(t *testing.T) {
	ctx := context.Background()
	store := New(setupTestDB(t))
	ch, cc := newTestChannel(t)

	_, err := store.LoadBackup(ctx, ch.ID())
	assert.ErrorIs(t, err, ErrChannelNotFound)

	instructions, err := ch.CraftVolumeExpand(big.NewInt(100), big.NewInt(50), channel.None{})
	require.NoError(t, err)
	require.NoError(t, channel.PersistInstructions(ctx, store, ch.ID(), instructions, 1))
	_, err = ch.SignUpdate()
	require.NoError(t, err)
	require.NoError(t, store.SaveBackup(ctx, ch))

	nonce, err := store.Nonce(ctx, ch.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce, "saving a backup keeps the nonce")

	backup, err := store.LoadBackup(ctx, ch.ID())
	require.NoError(t, err)
	assert.Equal(t, ch.Backup(), backup)

	signer, err := sign.NewEthereumSigner(keyA)
	require.NoError(t, err)
	state, err := store.LoadState(ctx, ch.ID(), cc)
	require.NoError(t, err)
	restored, err := channel.Restore(backup, signer, cc, state, true)
	require.NoError(t, err)
	assert.Equal(t, ch.ID(), restored.ID())
	assert.Equal(t, ch.SelfSignature(), restored.SelfSignature())
}

func TestStoreBatches(t *testing.T) {
	ctx := context.Background()
	store := New(setupTestDB(t))
	ch, _ := newTestChannel(t)

	first, err := ch.CraftVolumeExpand(big.NewInt(100), big.NewInt(50), channel.None{})
	require.NoError(t, err)
	firstID, err := store.RecordBatch(ctx, ch.ID(), first, 1)
	require.NoError(t, err)

	deadline := big.NewInt(testNow.Add(time.Hour).Unix())
	second, err := ch.CraftTransfer(ctx, big.NewInt(10), channel.TLC{Deadline: deadline}, nil)
	require.NoError(t, err)
	_, err = store.RecordBatch(ctx, ch.ID(), second, mustState(t, ch).Nonce())
	require.NoError(t, err)

	batches, err := store.Batches(ctx, ch.ID())
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, firstID, batches[0].ID)
	assert.Equal(t, []string{first[0].Statement.ID().Hex()}, []string(batches[0].Added))
	assert.Empty(t, batches[0].Disposed)

	assert.Len(t, batches[1].Added, 3)
	assert.Len(t, batches[1].Disposed, 2)
	assert.Equal(t, second[0].Statement.ID().Hex(), batches[1].Disposed[0])
}
