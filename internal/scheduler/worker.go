package scheduler

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/NiruddeshJatra/Bhara/internal/mailer"
	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// EmailWorker drains the email_jobs outbox with retry and backoff
type EmailWorker struct {
	db           *gorm.DB
	sender       mailer.Sender
	baseURL      string
	stopChan     chan struct{}
	mu           sync.Mutex
	isRunning    bool
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

// NewEmailWorker creates a new email worker
func NewEmailWorker(db *gorm.DB, sender mailer.Sender, baseURL string, pollInterval time.Duration) *EmailWorker {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &EmailWorker{
		db:           db,
		sender:       sender,
		baseURL:      baseURL,
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		batchSize:    20,
		now:          time.Now,
	}
}

// Start starts the email worker
func (w *EmailWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		log.Println("[EmailWorker] Already running")
		return
	}

	w.recoverStuckJobs()

	w.isRunning = true
	log.Printf("[EmailWorker] Started (poll_interval=%v, batch_size=%d)", w.pollInterval, w.batchSize)

	go w.run()
}

// Stop stops the email worker
func (w *EmailWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return
	}

	log.Println("[EmailWorker] Stopping...")
	w.isRunning = false
	close(w.stopChan)
}

// run is the main worker loop
func (w *EmailWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			log.Println("[EmailWorker] Stopped")
			return
		case <-ticker.C:
			w.ProcessBatch()
		}
	}
}

// recoverStuckJobs returns jobs left in processing by a crash to the queue
func (w *EmailWorker) recoverStuckJobs() {
	result := w.db.Model(&models.EmailJob{}).
		Where("status = ?", models.EmailStatusProcessing).
		Update("status", models.EmailStatusPending)
	if result.Error != nil {
		log.Printf("[EmailWorker] Failed to recover stuck jobs: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("[EmailWorker] Recovered %d stuck jobs", result.RowsAffected)
	}
}

// ProcessBatch sends every due job, oldest first, and returns how many were attempted
func (w *EmailWorker) ProcessBatch() int {
	var jobs []models.EmailJob
	now := w.now()

	err := w.db.
		Where("status = ? OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)",
			models.EmailStatusPending, models.EmailStatusFailed, now).
		Order("created_at ASC").
		Limit(w.batchSize).
		Find(&jobs).Error
	if err != nil {
		log.Printf("[EmailWorker] Error fetching due jobs: %v", err)
		return 0
	}

	for i := range jobs {
		if !w.claim(&jobs[i]) {
			continue
		}
		w.processJob(&jobs[i])
	}
	return len(jobs)
}

// claim moves a job to processing unless another worker got there first
func (w *EmailWorker) claim(job *models.EmailJob) bool {
	result := w.db.Model(&models.EmailJob{}).
		Where("id = ? AND status = ?", job.ID, job.Status).
		Updates(map[string]interface{}{
			"status":   models.EmailStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		log.Printf("[EmailWorker] Failed to claim job id=%d: %v", job.ID, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}
	job.Status = models.EmailStatusProcessing
	job.Attempts++
	return true
}

// processJob renders and sends one job
func (w *EmailWorker) processJob(job *models.EmailJob) {
	log.Printf("[EmailWorker] Sending id=%d kind=%s to=%s attempt=%d", job.ID, job.Kind, job.Recipient, job.Attempts)

	msg, err := mailer.Render(job, w.baseURL)
	if err != nil {
		w.markPermanentFail(job, err)
		return
	}

	if err := w.sender.Send(msg); err != nil {
		w.handleSendError(job, err)
		return
	}

	w.handleSendSuccess(job)
}

// handleSendError schedules a retry with exponential backoff
func (w *EmailWorker) handleSendError(job *models.EmailJob, err error) {
	log.Printf("[EmailWorker] Send failed for id=%d: %v", job.ID, err)

	if errors.Is(err, mailer.ErrCircuitOpen) {
		// not the recipient's fault; give the attempt back
		job.Attempts--
	}

	if job.Attempts >= models.MaxEmailAttempts {
		log.Printf("[EmailWorker] Max attempts exceeded for id=%d (%d attempts)", job.ID, job.Attempts)
		w.markPermanentFail(job, fmt.Errorf("max attempts exceeded (%d): %w", job.Attempts, err))
		return
	}

	delay := models.GetNextRetryDelay(job.Attempts - 1)
	nextRetry := w.now().Add(delay)
	job.Status = models.EmailStatusFailed
	job.LastError = err.Error()
	job.NextRetryAt = &nextRetry
	log.Printf("[EmailWorker] Scheduling retry for id=%d in %v (attempt %d/%d)",
		job.ID, delay, job.Attempts, models.MaxEmailAttempts)

	if err := w.db.Save(job).Error; err != nil {
		log.Printf("[EmailWorker] Failed to save retry status: %v", err)
	}
}

func (w *EmailWorker) markPermanentFail(job *models.EmailJob, err error) {
	completedAt := w.now()
	job.Status = models.EmailStatusPermanentFail
	job.LastError = err.Error()
	job.CompletedAt = &completedAt
	job.NextRetryAt = nil

	if err := w.db.Save(job).Error; err != nil {
		log.Printf("[EmailWorker] Failed to save permanent_fail status: %v", err)
	}
}

func (w *EmailWorker) handleSendSuccess(job *models.EmailJob) {
	completedAt := w.now()
	job.Status = models.EmailStatusDone
	job.LastError = ""
	job.CompletedAt = &completedAt
	job.NextRetryAt = nil

	if err := w.db.Save(job).Error; err != nil {
		log.Printf("[EmailWorker] Failed to mark job as done: %v", err)
		return
	}
	log.Printf("[EmailWorker] Completed id=%d", job.ID)
}

// GetQueueStats returns current outbox statistics
func (w *EmailWorker) GetQueueStats() map[string]interface{} {
	statuses := []string{
		models.EmailStatusPending,
		models.EmailStatusProcessing,
		models.EmailStatusDone,
		models.EmailStatusFailed,
		models.EmailStatusPermanentFail,
	}

	stats := make(map[string]interface{}, len(statuses)+1)
	for _, status := range statuses {
		var count int64
		if err := w.db.Model(&models.EmailJob{}).Where("status = ?", status).Count(&count).Error; err != nil {
			log.Printf("[EmailWorker] Failed to count %s jobs: %v", status, err)
		}
		stats[status] = count
	}

	w.mu.Lock()
	stats["is_running"] = w.isRunning
	w.mu.Unlock()

	return stats
}
