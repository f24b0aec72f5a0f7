package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

// BatchInserter is the part of a store the writer needs
type BatchInserter interface {
	InsertBatch(records []*models.SensorRecord) error
}

// DBWriter persists sensor records in the background, in batches,
// so the HTTP handlers never wait on the disk.
type DBWriter struct {
	store       BatchInserter
	logger      zerolog.Logger
	writeChan   chan *models.SensorRecord
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // records per write
	FlushPeriod time.Duration // max time a record waits in a partial batch
	ChannelSize int           // queue depth before records are dropped
}

// DefaultDBWriterConfig returns sensible defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   50,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates and starts a new async database writer
func NewDBWriter(store BatchInserter, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger.With().Str("component", "dbwriter").Logger(),
		writeChan:   make(chan *models.SensorRecord, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	w.logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Write queues a record. It returns false if the queue is full and the record was dropped.
func (w *DBWriter) Write(record *models.SensorRecord) bool {
	select {
	case w.writeChan <- record:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Msg("DBWriter queue full, dropping sensor record")
		return false
	}
}

func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]*models.SensorRecord, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case record := <-w.writeChan:
			batch = append(batch, record)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]*models.SensorRecord, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]*models.SensorRecord, 0, w.batchSize)
			}

		case <-w.stopChan:
			for draining := true; draining; {
				select {
				case record := <-w.writeChan:
					batch = append(batch, record)
				default:
					draining = false
				}
			}
			w.flush(batch)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

func (w *DBWriter) flush(batch []*models.SensorRecord) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write batch")
		return
	}
	w.totalWritten += int64(len(batch))
	w.totalBatches++
	w.lastWriteTime = time.Now()
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed batch")
}

// Stop flushes whatever is queued and stops the writer. Safe to call twice.
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
