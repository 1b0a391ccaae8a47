package renderer

import (
	"context"
	"log"
	"sync"
	"time"

	"shortlinks/internal/db"
)

const queueCapacity = 100

// RenderFunc renders url and returns the page title and HTML.
type RenderFunc func(url string) (title, html string, err error)

// PreviewSink persists preview state. *db.Repo implements it.
type PreviewSink interface {
	CreatePreview(ctx context.Context, linkID uint) error
	UpdatePreviewStatus(linkID uint, status db.PreviewStatus) error
	UpdatePreviewContent(linkID uint, title, html string, status db.PreviewStatus) error
}

// Job is a single preview to render.
type Job struct {
	LinkID      uint
	ShortCode   string
	OriginalURL string
}

// Queue renders link previews on a fixed pool of workers. A link whose URL
// is already being rendered waits for that render instead of starting another.
type Queue struct {
	jobs        chan Job
	inProgress  map[string]bool
	waiting     map[string][]Job // followers of an in-flight URL
	mutex       sync.RWMutex
	closed      bool
	workerCount int
	render      RenderFunc
	sink        PreviewSink
	wg          sync.WaitGroup
}

// NewQueue starts workers goroutines that feed render results into sink.
func NewQueue(workers int, render RenderFunc, sink PreviewSink) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := newQueue(workers, queueCapacity, render, sink)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	log.Printf("Initialized preview queue with %d workers", workers)
	return q
}

func newQueue(workers, capacity int, render RenderFunc, sink PreviewSink) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		inProgress:  make(map[string]bool),
		waiting:     make(map[string][]Job),
		workerCount: workers,
		render:      render,
		sink:        sink,
	}
}

// Schedule registers a pending preview for link and queues it for rendering.
// A preview that cannot be queued is marked failed so it never stays pending.
func (q *Queue) Schedule(ctx context.Context, link *db.Link) {
	if err := q.sink.CreatePreview(ctx, link.ID); err != nil {
		log.Printf("Queue: failed to register preview for %s: %v", link.ShortCode, err)
		return
	}
	if q.Enqueue(Job{LinkID: link.ID, ShortCode: link.ShortCode, OriginalURL: link.OriginalURL}) {
		return
	}
	if err := q.sink.UpdatePreviewStatus(link.ID, db.PreviewFailed); err != nil {
		log.Printf("Queue: failed to mark dropped preview for %s as failed: %v", link.ShortCode, err)
	}
}

// Enqueue adds job to the queue. If its URL is already in flight the job is
// attached to that render and gets the same result. It reports false when
// the job was dropped because the queue is full or shut down.
func (q *Queue) Enqueue(job Job) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		log.Printf("Queue: shut down, dropping preview for %s", job.ShortCode)
		return false
	}
	if q.inProgress[job.OriginalURL] {
		q.waiting[job.OriginalURL] = append(q.waiting[job.OriginalURL], job)
		log.Printf("Queue: URL %s is already being rendered, %s will share the result", job.OriginalURL, job.ShortCode)
		return true
	}

	select {
	case q.jobs <- job:
		q.inProgress[job.OriginalURL] = true
		log.Printf("Queue: queued preview for %s (short code: %s, queue length: %d)", job.OriginalURL, job.ShortCode, len(q.jobs))
		return true
	default:
		log.Printf("Queue: preview queue is full (capacity: %d), dropping job for %s", cap(q.jobs), job.OriginalURL)
		return false
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(id, job)
	}
	log.Printf("Preview worker %d stopped", id)
}

func (q *Queue) process(id int, job Job) {
	start := time.Now()

	if err := q.sink.UpdatePreviewStatus(job.LinkID, db.PreviewRendering); err != nil {
		log.Printf("Worker %d: failed to mark %s as rendering: %v", id, job.ShortCode, err)
	}

	title, html, err := q.render(job.OriginalURL)
	status := db.PreviewCompleted
	if err != nil {
		log.Printf("Worker %d: failed to render %s after %v: %v", id, job.OriginalURL, time.Since(start), err)
		title, html, status = "", "", db.PreviewFailed
	} else {
		log.Printf("Worker %d: rendered %s in %v (HTML length: %d)", id, job.OriginalURL, time.Since(start), len(html))
	}

	// Followers are taken and the URL released under one lock.
	q.mutex.Lock()
	followers := q.waiting[job.OriginalURL]
	delete(q.waiting, job.OriginalURL)
	delete(q.inProgress, job.OriginalURL)
	q.mutex.Unlock()

	for _, j := range append([]Job{job}, followers...) {
		if dbErr := q.sink.UpdatePreviewContent(j.LinkID, title, html, status); dbErr != nil {
			log.Printf("Worker %d: failed to save %s preview for %s: %v", id, status, j.ShortCode, dbErr)
		}
	}
}

// IsInProgress reports whether url is queued or being rendered.
func (q *Queue) IsInProgress(url string) bool {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.inProgress[url]
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() map[string]interface{} {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	urls := make([]string, 0, len(q.inProgress))
	for url := range q.inProgress {
		urls = append(urls, url)
	}
	waitingCount := 0
	for _, jobs := range q.waiting {
		waitingCount += len(jobs)
	}
	return map[string]interface{}{
		"worker_count":      q.workerCount,
		"queue_length":      len(q.jobs),
		"queue_capacity":    cap(q.jobs),
		"in_progress_count": len(q.inProgress),
		"in_progress_urls":  urls,
		"waiting_count":     waitingCount,
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Shutdown() {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mutex.Unlock()

	log.Println("Preview queue shutdown initiated")
	q.wg.Wait()
}
