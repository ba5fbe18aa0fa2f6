package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/flankk/node/pkg/channel"
)

// ErrChannelNotFound is returned when no backup was saved for a channel.
var ErrChannelNotFound = errors.New("channel not found")

var _ channel.StatementsStore = (*Store)(nil)

// Store keeps channel ledgers in a SQL database.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the store tables. Postgres deployments use the SQL migrations instead.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (s *Store) Load(ctx context.Context, channelID common.Hash, ids []common.Hash) ([]channel.SerializedStatement, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var records []StatementRecord
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND statement_id IN ?", channelID.Hex(), hexes(ids)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load statements: %w", err)
	}

	byID := make(map[string]StatementRecord, len(records))
	for _, r := range records {
		byID[r.StatementID] = r
	}

	out := make([]channel.SerializedStatement, 0, len(records))
	for _, id := range ids {
		r, ok := byID[id.Hex()]
		if !ok {
			continue
		}
		stmt, err := r.serialized()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func (s *Store) Remove(ctx context.Context, channelID common.Hash, ids []common.Hash, nonce uint64) error {
	return s.Commit(ctx, channelID, nil, ids, nonce)
}

func (s *Store) Save(ctx context.Context, channelID common.Hash, stmts []*channel.Statement, nonce uint64) error {
	return s.Commit(ctx, channelID, stmts, nil, nonce)
}

func (s *Store) Commit(ctx context.Context, channelID common.Hash, added []*channel.Statement, removed []common.Hash, nonce uint64) error {
	records := make([]StatementRecord, 0, len(added))
	for _, stmt := range added {
		r, err := newStatementRecord(channelID, stmt)
		if err != nil {
			return err
		}
		records = append(records, r)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(removed) > 0 {
			err := tx.Where("channel_id = ? AND statement_id IN ?", channelID.Hex(), hexes(removed)).
				Delete(&StatementRecord{}).Error
			if err != nil {
				return fmt.Errorf("failed to remove statements: %w", err)
			}
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("failed to save statements: %w", err)
			}
		}
		return setNonce(tx, channelID, nonce)
	})
}

func (s *Store) Each(ctx context.Context, channelID common.Hash, fn func(channel.SerializedStatement) (bool, error)) error {
	rows, err := s.db.WithContext(ctx).Model(&StatementRecord{}).
		Where("channel_id = ?", channelID.Hex()).
		Order("nonce, statement_id").
		Rows()
	if err != nil {
		return fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r StatementRecord
		if err := s.db.ScanRows(rows, &r); err != nil {
			return fmt.Errorf("failed to scan statement: %w", err)
		}
		stmt, err := r.serialized()
		if err != nil {
			return err
		}
		stop, err := fn(stmt)
		if err != nil || stop {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) Has(ctx context.Context, channelID common.Hash, ids []common.Hash) (bool, error) {
	unique := make(map[common.Hash]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return true, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&StatementRecord{}).
		Where("channel_id = ? AND statement_id IN ?", channelID.Hex(), hexes(ids)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count statements: %w", err)
	}
	return count == int64(len(unique)), nil
}

// Nonce returns the stored ledger nonce, 0 for unknown channels.
func (s *Store) Nonce(ctx context.Context, channelID common.Hash) (uint64, error) {
	var record ChannelRecord
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load nonce: %w", err)
	}
	return record.Nonce, nil
}

// LoadState rebuilds the stored ledger of a channel.
func (s *Store) LoadState(ctx context.Context, channelID common.Hash, cc *channel.ChainContext) (*channel.State, error) {
	return channel.LoadState(ctx, s, channelID, cc)
}

// SaveBackup stores the backup of ch without touching its ledger nonce.
func (s *Store) SaveBackup(ctx context.Context, ch *channel.Channel) error {
	data, err := json.Marshal(ch.Backup())
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := channelRecord(tx, ch.ID())
		if err != nil {
			return err
		}
		record.Backup = data
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save backup: %w", err)
		}
		return nil
	})
}

// LoadBackup returns the last backup saved for channelID.
func (s *Store) LoadBackup(ctx context.Context, channelID common.Hash) (channel.ChannelBackup, error) {
	var record ChannelRecord
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && len(record.Backup) == 0) {
		return channel.ChannelBackup{}, ErrChannelNotFound
	}
	if err != nil {
		return channel.ChannelBackup{}, fmt.Errorf("failed to load backup: %w", err)
	}

	var backup channel.ChannelBackup
	if err := json.Unmarshal(record.Backup, &backup); err != nil {
		return channel.ChannelBackup{}, fmt.Errorf("unmarshal backup: %w", err)
	}
	return backup, nil
}

// RecordBatch journals a batch applied at nonce.
func (s *Store) RecordBatch(ctx context.Context, channelID common.Hash, instructions []channel.Instruction, nonce uint64) (uuid.UUID, error) {
	data, err := json.Marshal(channel.SerializeInstructions(instructions))
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal instructions: %w", err)
	}

	batch := InstructionBatch{
		ID:           uuid.New(),
		ChannelID:    channelID.Hex(),
		Nonce:        nonce,
		Added:        []string{},
		Disposed:     []string{},
		Instructions: data,
	}
	for _, in := range instructions {
		switch in.Op {
		case channel.OpAdd:
			batch.Added = append(batch.Added, in.Statement.ID().Hex())
		case channel.OpDispose:
			batch.Disposed = append(batch.Disposed, in.Statement.ID().Hex())
		}
	}

	if err := s.db.WithContext(ctx).Create(&batch).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to record batch: %w", err)
	}
	return batch.ID, nil
}

// Batches returns the journal of a channel, oldest first.
func (s *Store) Batches(ctx context.Context, channelID common.Hash) ([]InstructionBatch, error) {
	var batches []InstructionBatch
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID.Hex()).
		Order("nonce, created_at").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	return batches, nil
}

func channelRecord(tx *gorm.DB, channelID common.Hash) (ChannelRecord, error) {
	var record ChannelRecord
	err := tx.Where("channel_id = ?", channelID.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChannelRecord{ChannelID: channelID.Hex()}, nil
	}
	if err != nil {
		return ChannelRecord{}, fmt.Errorf("failed to load channel: %w", err)
	}
	return record, nil
}

func setNonce(tx *gorm.DB, channelID common.Hash, nonce uint64) error {
	record, err := channelRecord(tx, channelID)
	if err != nil {
		return err
	}
	record.Nonce = nonce
	if err := tx.Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

func newStatementRecord(channelID common.Hash, stmt *channel.Statement) (StatementRecord, error) {
	cond, err := json.Marshal(channel.SerializeCondition(stmt.Condition()))
	if err != nil {
		return StatementRecord{}, fmt.Errorf("marshal condition: %w", err)
	}

	r := StatementRecord{
		ChannelID:   channelID.Hex(),
		StatementID: stmt.ID().Hex(),
		FromBalA:    decimal.NewFromBigInt(stmt.From().BalA(), 0),
		FromBalB:    decimal.NewFromBigInt(stmt.From().BalB(), 0),
		ToBalA:      decimal.NewFromBigInt(stmt.To().BalA(), 0),
		ToBalB:      decimal.NewFromBigInt(stmt.To().BalB(), 0),
		Condition:   cond,
		Nonce:       stmt.Nonce(),
	}
	if source := stmt.Source(); len(source) > 0 {
		r.Source = hexutil.Encode(source)
	}
	return r, nil
}

func (r StatementRecord) serialized() (channel.SerializedStatement, error) {
	var cond channel.SerializedCondition
	if err := json.Unmarshal(r.Condition, &cond); err != nil {
		return channel.SerializedStatement{}, fmt.Errorf("unmarshal condition of %s: %w", r.StatementID, err)
	}

	return channel.SerializedStatement{
		From:            serializedRecord(r.FromBalA, r.FromBalB),
		To:              serializedRecord(r.ToBalA, r.ToBalB),
		ConditionParams: cond,
		Nonce:           hexutil.EncodeUint64(r.Nonce),
		Source:          r.Source,
	}, nil
}

func serializedRecord(balA, balB decimal.Decimal) channel.SerializedRecord {
	return channel.NewRecord(balA.BigInt(), balB.BigInt()).Serialize()
}

func hexes(ids []common.Hash) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}
