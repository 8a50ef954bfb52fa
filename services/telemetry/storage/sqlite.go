package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/multiversx/mx-chain-logger-go"
)

var log = logger.GetOrCreate("storage")

// sqliteStorage is the sqlite implementation of the durable store
type sqliteStorage struct {
	db               *sql.DB
	retentionSeconds int
	cancelFunc       context.CancelFunc
	wg               sync.WaitGroup
}

// NewSQLiteStorage creates the database, schema, and starts the retention cleaner
func NewSQLiteStorage(dbPath string, retentionSeconds int) (*sqliteStorage, error) {
	err := prepareDirectories(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create initial empty DB file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = createSchema(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &sqliteStorage{
		db:               db,
		retentionSeconds: retentionSeconds,
		cancelFunc:       cancel,
	}

	s.startRetentionCleaner(ctx)

	return s, nil
}

func prepareDirectories(dbPath string) error {
	return os.MkdirAll(filepath.Dir(dbPath), os.ModePerm)
}

func createSchema(db *sql.DB) error {

	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		device_id     TEXT    NOT NULL PRIMARY KEY,
		rack_id       TEXT    NOT NULL,
		last_sequence INTEGER NOT NULL DEFAULT 0,
		last_seen_at  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS readings (
		device_id       TEXT    NOT NULL,
		rack_id         TEXT    NOT NULL,
		metric_type     TEXT    NOT NULL,
		value           REAL    NOT NULL,
		payload         TEXT    NOT NULL DEFAULT '',
		sequence_number INTEGER NOT NULL,
		recorded_at     INTEGER NOT NULL,
		PRIMARY KEY (device_id, sequence_number)
	);

	CREATE TABLE IF NOT EXISTS rack_summaries (
		rack_id         TEXT    NOT NULL PRIMARY KEY,
		cycle_timestamp INTEGER NOT NULL,
		summary         TEXT    NOT NULL
	);

	CREATE TABLE IF NOT EXISTS open_conditions (
		rack_id          TEXT    NOT NULL,
		device_id        TEXT    NOT NULL,
		kind             TEXT    NOT NULL,
		severity         TEXT    NOT NULL,
		opened_at        INTEGER NOT NULL,
		last_notified_at INTEGER NOT NULL,
		PRIMARY KEY (rack_id, device_id, kind)
	);

	CREATE TABLE IF NOT EXISTS leases (
		lock_name   TEXT    NOT NULL PRIMARY KEY,
		holder_id   TEXT    NOT NULL,
		acquired_at INTEGER NOT NULL,
		expires_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		event_id               TEXT    NOT NULL PRIMARY KEY,
		rack_id                TEXT    NOT NULL,
		device_id              TEXT    NOT NULL DEFAULT '',
		kind                   TEXT    NOT NULL,
		severity               TEXT    NOT NULL,
		detected_at            INTEGER NOT NULL,
		source_cycle_timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS failed_publishes (
		event_id   TEXT    NOT NULL PRIMARY KEY,
		event      TEXT    NOT NULL,
		failed_at  INTEGER NOT NULL,
		attempts   INTEGER NOT NULL,
		last_error TEXT    NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_rack ON devices(rack_id);
	CREATE INDEX IF NOT EXISTS idx_readings_recorded_at ON readings(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_readings_rack ON readings(rack_id, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_events_detected_at ON events(detected_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, _ = db.Exec("PRAGMA foreign_keys = ON;")

	return nil
}

// SaveReading performs the per-device sequence compare-and-set and persists the reading in a single
// transaction. The reading is durable once this returns nil, never before.
func (s *sqliteStorage) SaveReading(ctx context.Context, reading core.TelemetryReading, recordedAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// CAS on last_sequence: the update applies only for a strictly greater sequence number
	res, err := tx.ExecContext(ctx, `
		INSERT INTO devices (device_id, rack_id, last_sequence, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			last_sequence=excluded.last_sequence,
			last_seen_at=excluded.last_seen_at,
			rack_id=excluded.rack_id
		WHERE excluded.last_sequence > devices.last_sequence
	`, reading.DeviceID, reading.RackID, reading.SequenceNumber, recordedAt)
	if err != nil {
		return fmt.Errorf("failed to update device sequence: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return core.ErrStaleOrDuplicate
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO readings (device_id, rack_id, metric_type, value, payload, sequence_number, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, reading.DeviceID, reading.RackID, reading.MetricType, reading.Value, reading.Payload, reading.SequenceNumber, recordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return tx.Commit()
}

// GetReadingsInRange returns all readings recorded in (from, to], oldest first
func (s *sqliteStorage) GetReadingsInRange(ctx context.Context, from int64, to int64) ([]core.TelemetryReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, rack_id, metric_type, value, payload, sequence_number, recorded_at
		FROM readings
		WHERE recorded_at > ? AND recorded_at <= ?
		ORDER BY recorded_at, sequence_number
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []core.TelemetryReading
	for rows.Next() {
		var r core.TelemetryReading
		err = rows.Scan(&r.DeviceID, &r.RackID, &r.MetricType, &r.Value, &r.Payload, &r.SequenceNumber, &r.Timestamp)
		if err != nil {
			return nil, err
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// GetKnownDevices returns every device that ever reported within the retention window, grouped by rack.
// The returned map also carries the last time each device was seen.
func (s *sqliteStorage) GetKnownDevices(ctx context.Context) (map[string]map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT device_id, rack_id, last_seen_at FROM devices")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	results := make(map[string]map[string]int64)
	for rows.Next() {
		var deviceID, rackID string
		var lastSeenAt int64
		err = rows.Scan(&deviceID, &rackID, &lastSeenAt)
		if err != nil {
			return nil, err
		}

		if results[rackID] == nil {
			results[rackID] = make(map[string]int64)
		}
		results[rackID][deviceID] = lastSeenAt
	}

	return results, rows.Err()
}

// SaveRackSummary atomically replaces the summary for one rack. A failure while writing another
// rack leaves this rack's previous summary authoritative.
func (s *sqliteStorage) SaveRackSummary(ctx context.Context, summary core.RackHealthSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rack_summaries (rack_id, cycle_timestamp, summary)
		VALUES (?, ?, ?)
		ON CONFLICT(rack_id) DO UPDATE SET
			cycle_timestamp=excluded.cycle_timestamp,
			summary=excluded.summary
	`, summary.RackID, summary.CycleTimestamp, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save rack summary: %w", err)
	}

	return nil
}

// GetRackSummary returns the latest summary for one rack
func (s *sqliteStorage) GetRackSummary(ctx context.Context, rackID string) (*core.RackHealthSummary, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, "SELECT summary FROM rack_summaries WHERE rack_id = ?", rackID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSummaryNotFound
	}
	if err != nil {
		return nil, err
	}

	var summary core.RackHealthSummary
	err = json.Unmarshal([]byte(blob), &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}

// GetAllRackSummaries returns the latest summary of every rack
func (s *sqliteStorage) GetAllRackSummaries(ctx context.Context) ([]core.RackHealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT summary FROM rack_summaries ORDER BY rack_id")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []core.RackHealthSummary
	for rows.Next() {
		var blob string
		err = rows.Scan(&blob)
		if err != nil {
			return nil, err
		}

		var summary core.RackHealthSummary
		err = json.Unmarshal([]byte(blob), &summary)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}

		results = append(results, summary)
	}

	return results, rows.Err()
}

// GetOpenConditions returns all currently open abnormality conditions
func (s *sqliteStorage) GetOpenConditions(ctx context.Context) ([]core.OpenCondition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rack_id, device_id, kind, severity, opened_at, last_notified_at
		FROM open_conditions
	`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []core.OpenCondition
	for rows.Next() {
		var c core.OpenCondition
		err = rows.Scan(&c.RackID, &c.DeviceID, &c.Kind, &c.Severity, &c.OpenedAt, &c.LastNotifiedAt)
		if err != nil {
			return nil, err
		}

		results = append(results, c)
	}

	return results, rows.Err()
}

// UpsertOpenCondition creates or refreshes an open abnormality condition
func (s *sqliteStorage) UpsertOpenCondition(ctx context.Context, condition core.OpenCondition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_conditions (rack_id, device_id, kind, severity, opened_at, last_notified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rack_id, device_id, kind) DO UPDATE SET
			severity=excluded.severity,
			last_notified_at=excluded.last_notified_at
	`, condition.RackID, condition.DeviceID, condition.Kind, condition.Severity, condition.OpenedAt, condition.LastNotifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert open condition: %w", err)
	}

	return nil
}

// CloseCondition removes an open condition once it no longer holds
func (s *sqliteStorage) CloseCondition(ctx context.Context, rackID string, deviceID string, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM open_conditions WHERE rack_id = ? AND device_id = ? AND kind = ?
	`, rackID, deviceID, kind)
	return err
}

// TryAcquireLease attempts a conditional write on the lease row: it succeeds only if no unexpired
// lease exists for lockName or the existing lease already belongs to holderID
func (s *sqliteStorage) TryAcquireLease(ctx context.Context, lockName string, holderID string, ttlSeconds int64) (*core.SchedulerLease, bool, error) {
	now := time.Now().Unix()
	lease := &core.SchedulerLease{
		LockName:   lockName,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now + ttlSeconds,
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (lock_name, holder_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lock_name) DO UPDATE SET
			holder_id=excluded.holder_id,
			acquired_at=excluded.acquired_at,
			expires_at=excluded.expires_at
		WHERE leases.expires_at <= ? OR leases.holder_id = excluded.holder_id
	`, lockName, holderID, lease.AcquiredAt, lease.ExpiresAt, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	return lease, true, nil
}

// RenewLease extends a held lease. It errors with core.ErrLeaseNotHeld if the lease expired or
// was taken over by another holder in the meantime.
func (s *sqliteStorage) RenewLease(ctx context.Context, lease *core.SchedulerLease, ttlSeconds int64) (*core.SchedulerLease, error) {
	now := time.Now().Unix()
	newExpiry := now + ttlSeconds

	res, err := s.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ?
		WHERE lock_name = ? AND holder_id = ? AND expires_at > ?
	`, newExpiry, lease.LockName, lease.HolderID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to renew lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, core.ErrLeaseNotHeld
	}

	renewed := *lease
	renewed.ExpiresAt = newExpiry
	return &renewed, nil
}

// ReleaseLease drops the lease row if still owned by the holder. Releasing a lease that already
// expired or changed hands is not an error.
func (s *sqliteStorage) ReleaseLease(ctx context.Context, lease *core.SchedulerLease) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM leases WHERE lock_name = ? AND holder_id = ?
	`, lease.LockName, lease.HolderID)
	return err
}

// SaveEvents persists the abnormality events for audit
func (s *sqliteStorage) SaveEvents(ctx context.Context, events []core.AbnormalityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, event := range events {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, rack_id, device_id, kind, severity, detected_at, source_cycle_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, event.EventID, event.RackID, event.DeviceID, event.Kind, event.Severity, event.DetectedAt, event.SourceCycleTimestamp)
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", event.EventID, err)
		}
	}

	return tx.Commit()
}

// GetRecentEvents returns the most recent abnormality events, newest first
func (s *sqliteStorage) GetRecentEvents(ctx context.Context, limit int) ([]core.AbnormalityEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, rack_id, device_id, kind, severity, detected_at, source_cycle_timestamp
		FROM events
		ORDER BY detected_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []core.AbnormalityEvent
	for rows.Next() {
		var e core.AbnormalityEvent
		err = rows.Scan(&e.EventID, &e.RackID, &e.DeviceID, &e.Kind, &e.Severity, &e.DetectedAt, &e.SourceCycleTimestamp)
		if err != nil {
			return nil, err
		}

		results = append(results, e)
	}

	return results, rows.Err()
}

// SaveFailedPublish records an event that exhausted all delivery attempts
func (s *sqliteStorage) SaveFailedPublish(ctx context.Context, failed core.FailedPublish) error {
	blob, err := json.Marshal(failed.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO failed_publishes (event_id, event, failed_at, attempts, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			failed_at=excluded.failed_at,
			attempts=excluded.attempts,
			last_error=excluded.last_error
	`, failed.Event.EventID, string(blob), failed.FailedAt, failed.Attempts, failed.LastError)
	if err != nil {
		return fmt.Errorf("failed to save failed publish: %w", err)
	}

	return nil
}

// GetFailedPublishes returns the recorded permanently failed publishes, newest first
func (s *sqliteStorage) GetFailedPublishes(ctx context.Context, limit int) ([]core.FailedPublish, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event, failed_at, attempts, last_error
		FROM failed_publishes
		ORDER BY failed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []core.FailedPublish
	for rows.Next() {
		var blob string
		var f core.FailedPublish
		err = rows.Scan(&blob, &f.FailedAt, &f.Attempts, &f.LastError)
		if err != nil {
			return nil, err
		}

		err = json.Unmarshal([]byte(blob), &f.Event)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		results = append(results, f)
	}

	return results, rows.Err()
}

func (s *sqliteStorage) cleanRetainedData(ctx context.Context) error {
	nowSec := time.Now().Unix()
	cutoff := nowSec - int64(s.retentionSeconds)

	_, err := s.db.ExecContext(ctx, "DELETE FROM readings WHERE recorded_at < ?", cutoff)
	if err != nil {
		return err
	}

	// A device that fell out of the retention window is no longer part of the known universe,
	// otherwise faulted sets could reference devices with no retained reading
	_, err = s.db.ExecContext(ctx, "DELETE FROM devices WHERE last_seen_at < ?", cutoff)
	return err
}

func (s *sqliteStorage) startRetentionCleaner(ctx context.Context) {
	s.wg.Add(1)

	// max(RetentionSeconds/10, 60)
	intervalSec := s.retentionSeconds / 10
	if intervalSec < 60 {
		intervalSec = 60
	}

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)

	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Debug("running retention cleanup")

				err := s.cleanRetainedData(ctx)
				if err != nil {
					log.Warn("failed to cleanup retained data", "error", err)
				}
			}
		}
	}()
}

// Close closes the database and stops background routines
func (s *sqliteStorage) Close() error {
	s.cancelFunc()
	s.wg.Wait()
	return s.db.Close()
}

// IsInterfaceNil returns true if the value under the interface is nil
func (s *sqliteStorage) IsInterfaceNil() bool {
	return s == nil
}
