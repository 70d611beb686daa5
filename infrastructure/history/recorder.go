package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domain "bible-study/domain/history"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("searches")

// Recorder implements domain/history.Recorder on a local bbolt file. Records
// are queued on a buffered channel and written by a small worker pool so the
// search path never waits on disk.
type Recorder struct {
	db          *bolt.DB
	recordChan  chan domain.SearchRecord
	workerCount int
	bufferSize  int

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	// Health monitoring
	lastProcessedTime atomic.Value
}

func NewRecorder(path string, workerCount, bufferSize int) (*Recorder, error) {
	if workerCount <= 0 {
		workerCount = 2
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history store: %w", err)
	}

	return &Recorder{
		db:          db,
		recordChan:  make(chan domain.SearchRecord, bufferSize),
		workerCount: workerCount,
		bufferSize:  bufferSize,
	}, nil
}

// Start begins draining the record queue.
func (r *Recorder) Start(ctx context.Context) error {
	if r.isRunning.Load() {
		return fmt.Errorf("history recorder is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.isRunning.Store(true)
	r.lastProcessedTime.Store(time.Now())

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": r.workerCount,
		"buffer_size":  r.bufferSize,
	}).Info("History recorder started")

	return nil
}

// Stop drains in-flight records and closes the store.
func (r *Recorder) Stop() error {
	if !r.isRunning.Load() {
		return nil
	}

	logrus.Info("Stopping history recorder...")

	r.cancel()
	close(r.recordChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("History recorder stopped gracefully")
	case <-time.After(10 * time.Second):
		logrus.Warn("History recorder stop timed out")
	}

	r.isRunning.Store(false)
	return r.db.Close()
}

// Record enqueues a search record without blocking; a full queue drops it.
func (r *Recorder) Record(rec domain.SearchRecord) error {
	if !r.isRunning.Load() {
		return fmt.Errorf("history recorder is not running")
	}

	select {
	case r.recordChan <- rec:
		return nil
	case <-r.ctx.Done():
		return fmt.Errorf("history recorder is shutting down")
	default:
		r.errorCount.Add(1)
		logrus.Warn("History recorder queue is full, dropping record")
		return fmt.Errorf("history recorder queue is full")
	}
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []domain.SearchRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketName).Cursor()
		for k, v := cursor.Last(); k != nil && len(records) < limit; k, v = cursor.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rec domain.SearchRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				logrus.WithError(err).Warn("Skipping undecodable history record")
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Health returns the recorder's processing state for the health endpoint.
func (r *Recorder) Health() domain.HealthStatus {
	last, _ := r.lastProcessedTime.Load().(time.Time)
	return domain.HealthStatus{
		IsRunning:      r.isRunning.Load(),
		QueueSize:      len(r.recordChan),
		ProcessedCount: r.processedCount.Load(),
		ErrorCount:     r.errorCount.Load(),
		LastProcessed:  last,
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for rec := range r.recordChan {
		if err := r.persist(rec); err != nil {
			r.errorCount.Add(1)
			logrus.WithError(err).WithField("worker", id).Error("Failed to persist history record")
			continue
		}
		r.processedCount.Add(1)
		r.lastProcessedTime.Store(time.Now())
	}
}

func (r *Recorder) persist(rec domain.SearchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		// Sequence-ordered keys keep cursor iteration chronological.
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}
