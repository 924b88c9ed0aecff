package postgres

import (
	"context"
	"time"

	"cvdcollector/internal/binance/memorystore"

	"gorm.io/gorm/clause"
)

// InsertSnapshots appends a flush batch to the archive table. Rows already
// present (same symbol and timestamp) are skipped, so a retried batch never
// rewrites history.
func (p *PostgresClient) InsertSnapshots(ctx context.Context, batch []memorystore.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}

	records := make([]SnapshotRecord, len(batch))
	for i, snap := range batch {
		records[i] = ToSnapshotRecord(snap)
	}

	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "timestamp"},
		},
		DoNothing: true,
	}).Create(&records).Error
}

// LastSnapshot returns the most recent archived row for a symbol.
func (p *PostgresClient) LastSnapshot(ctx context.Context, symbol string) (*SnapshotRecord, error) {
	var record SnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&record).Error

	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteOldSnapshots prunes archive rows older than the cutoff.
func (p *PostgresClient) DeleteOldSnapshots(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&SnapshotRecord{}).Error
}

// ToSnapshotRecord converts a flush snapshot into its archive row.
func ToSnapshotRecord(snap memorystore.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		Symbol:       snap.Symbol,
		Timestamp:    snap.Timestamp,
		Price:        snap.Price,
		CVD:          snap.CVD,
		PeriodVolume: snap.PeriodVolume,
	}
}
