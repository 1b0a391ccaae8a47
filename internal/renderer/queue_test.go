package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shortlinks/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type previewRecord struct {
	status db.PreviewStatus
	title  string
	html   string
}

// fakeSink stores preview state in memory.
type fakeSink struct {
	mu        sync.Mutex
	previews  map[uint]*previewRecord
	history   map[uint][]db.PreviewStatus
	createErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		previews: make(map[uint]*previewRecord),
		history:  make(map[uint][]db.PreviewStatus),
	}
}

func (f *fakeSink) CreatePreview(_ context.Context, linkID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.previews[linkID] = &previewRecord{status: db.PreviewPending}
	f.history[linkID] = append(f.history[linkID], db.PreviewPending)
	return nil
}

func (f *fakeSink) UpdatePreviewStatus(linkID uint, status db.PreviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.previews[linkID]; ok {
		p.status = status
	}
	f.history[linkID] = append(f.history[linkID], status)
	return nil
}

func (f *fakeSink) UpdatePreviewContent(linkID uint, title, html string, status db.PreviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews[linkID] = &previewRecord{status: status, title: title, html: html}
	f.history[linkID] = append(f.history[linkID], status)
	return nil
}

func (f *fakeSink) get(linkID uint) (previewRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.previews[linkID]
	if !ok {
		return previewRecord{}, false
	}
	return *p, true
}

func mockRender(url string) (string, string, error) {
	time.Sleep(10 * time.Millisecond)
	return "Mock " + url, "<html><body>Mock content for " + url + "</body></html>", nil
}

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name        string
		workerCount int
		want        int
	}{
		{"single worker", 1, 1},
		{"multiple workers", 3, 3},
		{"zero falls back to one", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(tt.workerCount, mockRender, newFakeSink())
			defer q.Shutdown()

			assert.Equal(t, tt.want, q.workerCount)
			assert.Equal(t, queueCapacity, cap(q.jobs))
		})
	}
}

func TestScheduleRendersPreview(t *testing.T) {
	sink := newFakeSink()
	q := NewQueue(2, mockRender, sink)

	q.Schedule(context.Background(), &db.Link{ID: 7, ShortCode: "abc123", OriginalURL: "https://example.com"})
	q.Shutdown()

	p, ok := sink.get(7)
	require.True(t, ok)
	assert.Equal(t, db.PreviewCompleted, p.status)
	assert.Equal(t, "Mock https://example.com", p.title)
	assert.Contains(t, p.html, "Mock content for https://example.com")
	assert.Equal(t, []db.PreviewStatus{db.PreviewPending, db.PreviewRendering, db.PreviewCompleted}, sink.history[7])
	assert.False(t, q.IsInProgress("https://example.com"))
}

func TestScheduleRenderFailure(t *testing.T) {
	sink := newFakeSink()
	failing := func(string) (string, string, error) { return "", "", errors.New("browser crashed") }
	q := NewQueue(1, failing, sink)

	q.Schedule(context.Background(), &db.Link{ID: 3, ShortCode: "fail", OriginalURL: "https://broken.example"})
	q.Shutdown()

	p, ok := sink.get(3)
	require.True(t, ok)
	assert.Equal(t, db.PreviewFailed, p.status)
	assert.Empty(t, p.html)
}

func TestScheduleSinkFailure(t *testing.T) {
	sink := newFakeSink()
	sink.createErr = errors.New("db down")
	q := newQueue(1, 10, mockRender, sink)

	q.Schedule(context.Background(), &db.Link{ID: 1, ShortCode: "x", OriginalURL: "https://x.example"})

	assert.Equal(t, 0, len(q.jobs), "a preview that could not be registered is not queued")
}

func TestEnqueueJoinsInFlightURL(t *testing.T) {
	q := newQueue(1, 10, mockRender, newFakeSink())

	tests := []struct {
		name      string
		job       Job
		queueLen  int
		followers int
	}{
		{"queue new job", Job{LinkID: 1, ShortCode: "ABC123", OriginalURL: "https://example.com"}, 1, 0},
		{"join in-flight URL", Job{LinkID: 2, ShortCode: "DEF456", OriginalURL: "https://example.com"}, 1, 1},
		{"queue other URL", Job{LinkID: 3, ShortCode: "GHI789", OriginalURL: "https://other.example"}, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, q.Enqueue(tt.job))
			assert.Equal(t, tt.queueLen, len(q.jobs))
			assert.True(t, q.IsInProgress(tt.job.OriginalURL))
			assert.Equal(t, tt.followers, q.Status()["waiting_count"])
		})
	}
}

func TestScheduleSameURLSharesRender(t *testing.T) {
	sink := newFakeSink()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var renders atomic.Int32
	render := func(u string) (string, string, error) {
		renders.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "Shared", "<html>" + u + "</html>", nil
	}
	q := NewQueue(2, render, sink)

	q.Schedule(context.Background(), &db.Link{ID: 1, ShortCode: "first", OriginalURL: "https://same.example"})
	<-started
	q.Schedule(context.Background(), &db.Link{ID: 2, ShortCode: "second", OriginalURL: "https://same.example"})
	close(release)
	q.Shutdown()

	for _, id := range []uint{1, 2} {
		p, ok := sink.get(id)
		require.True(t, ok)
		assert.Equal(t, db.PreviewCompleted, p.status, "link %d", id)
		assert.Equal(t, "Shared", p.title, "link %d", id)
	}
	assert.Equal(t, int32(1), renders.Load(), "one render serves both links")
	assert.Equal(t, []db.PreviewStatus{db.PreviewPending, db.PreviewCompleted}, sink.history[2])
	assert.Equal(t, 0, q.Status()["waiting_count"])
}

func TestScheduleSameURLSharesFailure(t *testing.T) {
	sink := newFakeSink()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	render := func(string) (string, string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "", "", errors.New("timeout")
	}
	q := NewQueue(1, render, sink)

	q.Schedule(context.Background(), &db.Link{ID: 1, OriginalURL: "https://slow.example"})
	<-started
	q.Schedule(context.Background(), &db.Link{ID: 2, OriginalURL: "https://slow.example"})
	close(release)
	q.Shutdown()

	for _, id := range []uint{1, 2} {
		p, ok := sink.get(id)
		require.True(t, ok)
		assert.Equal(t, db.PreviewFailed, p.status, "link %d", id)
	}
}

func TestScheduleDroppedPreviewIsFailed(t *testing.T) {
	t.Run("queue full", func(t *testing.T) {
		sink := newFakeSink()
		q := newQueue(1, 1, mockRender, sink)

		q.Schedule(context.Background(), &db.Link{ID: 1, OriginalURL: "https://one.example"})
		q.Schedule(context.Background(), &db.Link{ID: 2, OriginalURL: "https://two.example"})

		p, _ := sink.get(1)
		assert.Equal(t, db.PreviewPending, p.status, "queued job waits for a worker")
		p, _ = sink.get(2)
		assert.Equal(t, db.PreviewFailed, p.status)
	})

	t.Run("queue shut down", func(t *testing.T) {
		sink := newFakeSink()
		q := NewQueue(1, mockRender, sink)
		q.Shutdown()

		q.Schedule(context.Background(), &db.Link{ID: 3, OriginalURL: "https://late.example"})

		p, ok := sink.get(3)
		require.True(t, ok)
		assert.Equal(t, db.PreviewFailed, p.status)
	})
}

func TestQueueCapacity(t *testing.T) {
	q := newQueue(1, 2, mockRender, newFakeSink())

	assert.True(t, q.Enqueue(Job{LinkID: 1, OriginalURL: "https://example1.com"}))
	assert.True(t, q.Enqueue(Job{LinkID: 2, OriginalURL: "https://example2.com"}))
	assert.Equal(t, 2, len(q.jobs))

	assert.False(t, q.Enqueue(Job{LinkID: 3, OriginalURL: "https://example3.com"}))
	assert.Equal(t, 2, len(q.jobs))
	assert.False(t, q.IsInProgress("https://example3.com"), "dropped jobs are not marked in progress")
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(1, mockRender, newFakeSink())
	q.Shutdown()
	q.Shutdown()

	assert.NotPanics(t, func() {
		assert.False(t, q.Enqueue(Job{LinkID: 1, OriginalURL: "https://late.example"}))
	})
}

func TestStatus(t *testing.T) {
	q := newQueue(3, 10, mockRender, newFakeSink())

	q.Enqueue(Job{LinkID: 1, OriginalURL: "https://example1.com"})
	q.Enqueue(Job{LinkID: 2, OriginalURL: "https://example2.com"})

	status := q.Status()
	assert.Equal(t, 3, status["worker_count"])
	assert.Equal(t, 2, status["queue_length"])
	assert.Equal(t, 10, status["queue_capacity"])
	assert.Equal(t, 2, status["in_progress_count"])

	urls, ok := status["in_progress_urls"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"https://example1.com", "https://example2.com"}, urls)
}

func TestConcurrentSchedule(t *testing.T) {
	sink := newFakeSink()
	q := NewQueue(5, mockRender, sink)

	const numGoroutines = 10
	const perGoroutine = 5

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				linkID := uint(id*perGoroutine + j + 1)
				q.Schedule(context.Background(), &db.Link{
					ID:          linkID,
					ShortCode:   fmt.Sprintf("CODE%d_%d", id, j),
					OriginalURL: fmt.Sprintf("https://example%d_%d.com", id, j),
				})
			}
		}(i)
	}
	wg.Wait()
	q.Shutdown()

	for id := uint(1); id <= numGoroutines*perGoroutine; id++ {
		p, ok := sink.get(id)
		require.True(t, ok)
		assert.Equal(t, db.PreviewCompleted, p.status, "link %d", id)
	}
	assert.Equal(t, 0, q.Status()["in_progress_count"])
}

func BenchmarkEnqueue(b *testing.B) {
	q := newQueue(1, b.N+1, mockRender, newFakeSink())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(Job{LinkID: uint(i), OriginalURL: fmt.Sprintf("https://bench%d.com", i)})
	}
}
