package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StatementRecord is a live statement of a channel ledger.
type StatementRecord struct {
	ChannelID   string `gorm:"column:channel_id;primaryKey"`
	StatementID string `gorm:"column:statement_id;primaryKey"`
	// Balances are token amounts in wei.
	// type:varchar(78) is set for sqlite which has no big decimals
	FromBalA  decimal.Decimal `gorm:"column:from_bal_a;type:varchar(78);not null"`
	FromBalB  decimal.Decimal `gorm:"column:from_bal_b;type:varchar(78);not null"`
	ToBalA    decimal.Decimal `gorm:"column:to_bal_a;type:varchar(78);not null"`
	ToBalB    decimal.Decimal `gorm:"column:to_bal_b;type:varchar(78);not null"`
	Condition datatypes.JSON  `gorm:"column:condition;type:text;not null"`
	Nonce     uint64          `gorm:"column:nonce;not null"`
	Source    string          `gorm:"column:source;type:text"`
	CreatedAt time.Time
}

func (StatementRecord) TableName() string {
	return "statements"
}

// ChannelRecord holds the ledger nonce and the last exported backup of a channel.
type ChannelRecord struct {
	ChannelID string         `gorm:"column:channel_id;primaryKey"`
	Nonce     uint64         `gorm:"column:nonce;default:0"`
	Backup    datatypes.JSON `gorm:"column:backup;type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ChannelRecord) TableName() string {
	return "channels"
}

// InstructionBatch is the journal entry of a batch applied to a ledger.
type InstructionBatch struct {
	ID           uuid.UUID      `gorm:"column:id;primaryKey;type:text"`
	ChannelID    string         `gorm:"column:channel_id;not null;index"`
	Nonce        uint64         `gorm:"column:nonce;not null"`
	Added        pq.StringArray `gorm:"column:added;type:text[]"`
	Disposed     pq.StringArray `gorm:"column:disposed;type:text[]"`
	Instructions datatypes.JSON `gorm:"column:instructions;type:text;not null"`
	CreatedAt    time.Time
}

func (InstructionBatch) TableName() string {
	return "instruction_batches"
}

// Models lists every model of the store, in migration order.
func Models() []any {
	return []any{&StatementRecord{}, &ChannelRecord{}, &InstructionBatch{}}
}
