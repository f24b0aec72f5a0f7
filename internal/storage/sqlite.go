package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

// timestamps are stored as UTC text so they sort lexically
const timeFormat = "2006-01-02 15:04:05.000"

// Store defines the interface for persisted sensor data and device status
type Store interface {
	Close() error
	Migrate() error
	InsertSensorData(record *models.SensorRecord) error
	InsertBatch(records []*models.SensorRecord) error
	GetSensorDataInRange(start, end time.Time, limit int) ([]*models.SensorRecord, error)
	GetRecentSensorData(limit int) ([]*models.SensorRecord, error)
	GetLatestSensorData() (*models.SensorRecord, error)
	GetDailyStats(start, end time.Time) ([]DailyStat, error)
	GetDeviceStatus() (*models.DeviceStatusRecord, error)
	UpsertDeviceStatus(record *models.DeviceStatusRecord) error
	DeleteBefore(cutoff time.Time) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists sensor reports and the device status row
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// DailyStat represents aggregated statistics for a single day
type DailyStat struct {
	Date           time.Time `json:"date"`
	MinTemperature float64   `json:"min_temperature"`
	MaxTemperature float64   `json:"max_temperature"`
	AvgTemperature float64   `json:"avg_temperature"`
	MinHumidity    float64   `json:"min_humidity"`
	MaxHumidity    float64   `json:"max_humidity"`
	AvgHumidity    float64   `json:"avg_humidity"`
	RecordCount    int       `json:"record_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalRecords   int64     `json:"total_records"`
	OldestRecord   time.Time `json:"oldest_record,omitempty"`
	NewestRecord   time.Time `json:"newest_record,omitempty"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite").Logger(),
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sensor_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sensor_data_updated ON sensor_data(updated_at);

	CREATE TABLE IF NOT EXISTS device_status (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		is_on INTEGER NOT NULL,
		wifi_connected INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// A zero ID lets SQLite pick one; the live store assigns IDs before records
// reach the writer so both agree.
const insertSensorData = "INSERT INTO sensor_data (id, temperature, humidity, updated_at) VALUES (?, ?, ?, ?)"

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// InsertSensorData inserts a single record and sets its ID
func (s *SQLiteStore) InsertSensorData(record *models.SensorRecord) error {
	result, err := s.db.Exec(insertSensorData,
		nullableID(record.ID),
		record.Temperature,
		record.Humidity,
		record.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor data: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// InsertBatch inserts multiple records in a single transaction
func (s *SQLiteStore) InsertBatch(records []*models.SensorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSensorData)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		_, err := stmt.Exec(
			nullableID(record.ID),
			record.Temperature,
			record.Humidity,
			record.UpdatedAt.UTC().Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("failed to insert sensor data in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("Batch insert completed")
	return nil
}

// GetSensorDataInRange returns records within a time range, oldest first
func (s *SQLiteStore) GetSensorDataInRange(start, end time.Time, limit int) ([]*models.SensorRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, temperature, humidity, updated_at
		FROM sensor_data
		WHERE updated_at BETWEEN ? AND ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor data: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// GetRecentSensorData returns the newest limit records, oldest first
func (s *SQLiteStore) GetRecentSensorData(limit int) ([]*models.SensorRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, temperature, humidity, updated_at
		FROM sensor_data
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor data: %w", err)
	}
	defer rows.Close()

	records, err := s.scanRecords(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// GetLatestSensorData returns the most recent record, or nil if there is none
func (s *SQLiteStore) GetLatestSensorData() (*models.SensorRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, temperature, humidity, updated_at
		FROM sensor_data
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`)

	record, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sensor data: %w", err)
	}
	return record, nil
}

// GetDailyStats returns aggregated daily statistics for a time range, newest day first
func (s *SQLiteStore) GetDailyStats(start, end time.Time) ([]DailyStat, error) {
	rows, err := s.db.Query(`
		SELECT
			date(updated_at) as day,
			MIN(temperature), MAX(temperature), AVG(temperature),
			MIN(humidity), MAX(humidity), AVG(humidity),
			COUNT(*)
		FROM sensor_data
		WHERE updated_at BETWEEN ? AND ?
		GROUP BY day
		ORDER BY day DESC
	`,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var day string

		err := rows.Scan(
			&day,
			&stat.MinTemperature,
			&stat.MaxTemperature,
			&stat.AvgTemperature,
			&stat.MinHumidity,
			&stat.MaxHumidity,
			&stat.AvgHumidity,
			&stat.RecordCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stat.Date, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// GetDeviceStatus returns the device status row, or nil if none was ever stored
func (s *SQLiteStore) GetDeviceStatus() (*models.DeviceStatusRecord, error) {
	var record models.DeviceStatusRecord
	var updatedAt string

	err := s.db.QueryRow("SELECT is_on, wifi_connected, updated_at FROM device_status WHERE id = 1").
		Scan(&record.IsOn, &record.WifiConnected, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device status: %w", err)
	}

	record.UpdatedAt, err = parseTimestamp(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &record, nil
}

// UpsertDeviceStatus replaces the single device status row
func (s *SQLiteStore) UpsertDeviceStatus(record *models.DeviceStatusRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO device_status (id, is_on, wifi_connected, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_on = excluded.is_on,
			wifi_connected = excluded.wifi_connected,
			updated_at = excluded.updated_at
	`,
		record.IsOn,
		record.WifiConnected,
		record.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device status: %w", err)
	}
	return nil
}

// DeleteBefore removes sensor records stamped before cutoff.
// The device status row is never removed.
func (s *SQLiteStore) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM sensor_data WHERE updated_at < ?",
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sensor data: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM sensor_data").Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("failed to count sensor data: %w", err)
	}

	if stats.TotalRecords > 0 {
		var oldest, newest string
		err := s.db.QueryRow("SELECT MIN(updated_at), MAX(updated_at) FROM sensor_data").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestRecord, _ = parseTimestamp(oldest)
		stats.NewestRecord, _ = parseTimestamp(newest)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

func (s *SQLiteStore) scanRecord(row interface{ Scan(...any) error }) (*models.SensorRecord, error) {
	var r models.SensorRecord
	var updatedAt string

	if err := row.Scan(&r.ID, &r.Temperature, &r.Humidity, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	r.UpdatedAt, err = parseTimestamp(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]*models.SensorRecord, error) {
	var records []*models.SensorRecord

	for rows.Next() {
		r, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor data: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// parseTimestamp tries the formats SQLite and older rows may carry
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeFormat,
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
