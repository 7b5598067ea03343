package store

import (
	"context"
	"time"
)

// InsertRecord persists one telemetry record and returns its row id,
// the correlation handle for command responses.
func (s *Store) InsertRecord(ctx context.Context, rec *TelemetryRecord) (uint, error) {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// InsertRecordTx is the guard-scoped variant of InsertRecord.
func (s *Store) InsertRecordTx(ctx context.Context, g *TxGuard, rec *TelemetryRecord) (uint, error) {
	tx, err := g.Tx()
	if err != nil {
		return 0, err
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// GetRecord returns one record by id.
func (s *Store) GetRecord(ctx context.Context, id uint) (*TelemetryRecord, error) {
	var rec TelemetryRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrRecordNotFound)
	}
	return &rec, nil
}

// RecordFilter scopes ListRecords.
type RecordFilter struct {
	DeviceID string
	LinkID   string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// ListRecords returns records newest-first, filtered and capped.
func (s *Store) ListRecords(ctx context.Context, filter RecordFilter) ([]*TelemetryRecord, error) {
	q := s.db.WithContext(ctx).Order("id DESC")

	if filter.DeviceID != "" {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.LinkID != "" {
		q = q.Where("link_id = ?", filter.LinkID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("report_time >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("report_time < ?", filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q = q.Limit(limit)

	var records []*TelemetryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountRecords returns the record count for one device.
func (s *Store) CountRecords(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&TelemetryRecord{}).
		Where("device_id = ?", deviceID).Count(&count).Error
	return count, err
}
