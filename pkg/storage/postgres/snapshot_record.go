package postgres

import "time"

// SnapshotRecord is one flushed CVD snapshot in the archive table. Rows are
// append-only; the unique index deduplicates a re-delivered batch rather
// than updating anything in place.
type SnapshotRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_snapshot_symbol;index:idx_symbol_timestamp,unique"`
	Timestamp time.Time `gorm:"not null;index:idx_symbol_timestamp,unique"`

	Price        float64 `gorm:"type:numeric;not null"`
	CVD          float64 `gorm:"type:numeric;not null"`
	PeriodVolume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (SnapshotRecord) TableName() string {
	return "cvd_snapshot"
}
