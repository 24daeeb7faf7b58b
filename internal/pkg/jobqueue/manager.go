package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	pruneTicker   *time.Ticker
	archiveTicker *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 2
		if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Marker pruning runs hourly; markers are kept for the webhook
	// redelivery window and removed afterwards.
	m.pruneTicker = time.NewTicker(time.Hour)
	m.wg.Add(1)
	go m.pruneWorker()

	// The ledger archive re-exports the previous month daily. The export is
	// a full overwrite per month, so repeated runs converge.
	m.archiveTicker = time.NewTicker(24 * time.Hour)
	m.wg.Add(1)
	go m.archiveWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.pruneTicker != nil {
		m.pruneTicker.Stop()
	}
	if m.archiveTicker != nil {
		m.archiveTicker.Stop()
	}

	close(m.stopCh)
	m.wg.Wait()
	m.queue.Stop()
	m.running = false

	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) pruneWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.pruneTicker.C:
			payload := MarkerPruneJobPayload{
				Cutoff: time.Now().Add(-models.ProcessedRequestRetention),
			}
			if _, err := m.queue.EnqueueJob(JobTypeMarkerPrune, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue marker prune: %v", err)
			}
		}
	}
}

func (m *Manager) archiveWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.archiveTicker.C:
			now := time.Now().UTC()
			first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			prev := first.AddDate(0, -1, 0)
			payload := LedgerArchiveJobPayload{Year: prev.Year(), Month: int(prev.Month())}
			if _, err := m.queue.EnqueueJob(JobTypeLedgerArchive, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue ledger archive: %v", err)
			}
		}
	}
}
