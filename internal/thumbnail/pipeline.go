package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"batch-renamer/internal/database"
	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/memory"
	"batch-renamer/internal/metrics"
	"batch-renamer/internal/tasks"
	"batch-renamer/internal/workers"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// DefaultSize is the edge length in pixels artifacts are generated at.
const DefaultSize = 256

// maxWorkers caps the automatic worker count.
const maxWorkers = 8

// ErrStopped is wrapped by the cancelled failure of requests made after Stop.
var ErrStopped = errors.New("thumbnail pipeline stopped")

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Workers is the pool size. Zero sizes it from GOMAXPROCS.
	Workers int
	// Size is the generated artifact size. Zero means DefaultSize.
	Size int
	// Producers maps a media kind to its producer. Nil means DefaultProducers.
	Producers map[mediatypes.Kind]Producer
	// Monitor, if set, holds workers back under memory pressure.
	Monitor *memory.Monitor
}

// PipelineStats is a snapshot of pipeline counters.
type PipelineStats struct {
	Requested  int64 `json:"requested"`
	Merged     int64 `json:"merged"`
	Dispatched int64 `json:"dispatched"`
	Generated  int64 `json:"generated"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Discarded  int64 `json:"discarded"`
	Queued     int   `json:"queued"`
	InFlight   int64 `json:"inFlight"`
	Workers    int   `json:"workers"`
}

// Handle tracks one Request. Its Events channel carries a Started event when
// a worker picks the job up, then exactly one Completed (image.Image result)
// or Failed event, and is then closed.
type Handle struct {
	ID   string
	Path string
	Size int

	events chan tasks.Event
	done   chan struct{}
	once   sync.Once

	img image.Image
	err error
}

func newHandle(path string, size int) *Handle {
	return &Handle{
		ID:     uuid.NewString(),
		Path:   path,
		Size:   size,
		events: make(chan tasks.Event, 2),
		done:   make(chan struct{}),
	}
}

// Events returns the handle's event stream.
func (h *Handle) Events() <-chan tasks.Event {
	return h.events
}

// Done is closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (h *Handle) Result() (image.Image, error) {
	select {
	case <-h.done:
		return h.img, h.err
	default:
		return nil, nil
	}
}

// Wait blocks until the handle finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-h.done:
		return h.img, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) start() {
	tasks.TrySend(h.events, tasks.Started(h.ID))
}

func (h *Handle) finish(img image.Image, err error) {
	h.once.Do(func() {
		h.img, h.err = img, err
		if err != nil {
			tasks.TrySend(h.events, tasks.Failed(h.ID, err))
		} else {
			tasks.TrySend(h.events, tasks.Completed(h.ID, img))
		}
		close(h.events)
		close(h.done)
	})
}

// job is one unit of work shared by every identical pending request.
type job struct {
	key     string
	path    string
	size    int
	started bool
	handles []*Handle
}

// Pipeline generates thumbnails on a bounded worker pool. Identical requests
// that are queued or in progress share a single generation.
type Pipeline struct {
	cache     *ArtifactCache
	producers map[mediatypes.Kind]Producer
	monitor   *memory.Monitor
	size      int
	workers   int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job
	pending  map[string]*job
	started  bool
	stopping atomic.Bool
	wg       sync.WaitGroup

	requested  atomic.Int64
	merged     atomic.Int64
	dispatched atomic.Int64
	generated  atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	discarded  atomic.Int64
	inFlight   atomic.Int64
}

// NewPipeline creates a stopped pipeline writing into c.
func NewPipeline(c *ArtifactCache, cfg PipelineConfig) *Pipeline {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	producers := cfg.Producers
	if producers == nil {
		producers = DefaultProducers()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cache:     c,
		producers: producers,
		monitor:   cfg.Monitor,
		size:      size,
		workers:   workers.ForMixed(cfg.Workers, maxWorkers),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]*job),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. Requests made before Start stay queued.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopping.Load() {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	metrics.ThumbnailWorkers.Set(float64(p.workers))
	logging.Info("Thumbnail pipeline started with %d workers (size %dpx)", p.workers, p.size)
}

func jobKey(path string, size int) string {
	return path + "\x00" + strconv.Itoa(size)
}

// Request asks for a thumbnail of path at sizePx. It never blocks and does
// no I/O. A request identical to one already queued or in progress is
// attached to it.
func (p *Pipeline) Request(path string, sizePx int) *Handle {
	p.requested.Add(1)
	metrics.ThumbnailRequestsTotal.Inc()

	if sizePx <= 0 {
		sizePx = p.size
	}

	norm, err := database.NormalizePath(path)
	if err != nil {
		h := newHandle(path, sizePx)
		p.failed.Add(1)
		h.finish(nil, newGenerationError(FailureUnsupported, path, err))
		return h
	}
	h := newHandle(norm, sizePx)

	p.mu.Lock()
	if p.stopping.Load() {
		p.mu.Unlock()
		p.failed.Add(1)
		h.finish(nil, newGenerationError(FailureCancelled, norm, ErrStopped))
		return h
	}

	key := jobKey(norm, sizePx)
	if j, ok := p.pending[key]; ok {
		j.handles = append(j.handles, h)
		if j.started {
			h.start()
		}
		p.mu.Unlock()
		p.merged.Add(1)
		metrics.ThumbnailRequestsMerged.Inc()
		return h
	}

	j := &job{key: key, path: norm, size: sizePx, handles: []*Handle{h}}
	p.pending[key] = j
	p.queue = append(p.queue, j)
	metrics.ThumbnailQueueDepth.Set(float64(len(p.queue)))
	p.cond.Signal()
	p.mu.Unlock()
	return h
}

// Lookup returns a cached thumbnail for the current version of path without
// queuing any work.
func (p *Pipeline) Lookup(ctx context.Context, path string, sizePx int) (image.Image, bool) {
	facts, ok := filesystem.Facts(path)
	if !ok || facts.IsDir {
		return nil, false
	}
	img, _, ok := p.cache.Get(ctx, path, facts.ModTime, facts.Size)
	if !ok {
		return nil, false
	}
	return p.fit(img, sizePx), true
}

func (p *Pipeline) fit(img image.Image, sizePx int) image.Image {
	if sizePx <= 0 || sizePx >= p.size {
		return img
	}
	return imaging.Fit(img, sizePx, sizePx, imaging.Lanczos)
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopping.Load() {
			p.cond.Wait()
		}
		if p.stopping.Load() {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		j.started = true
		handles := append([]*Handle(nil), j.handles...)
		metrics.ThumbnailQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.dispatched.Add(1)
		for _, h := range handles {
			h.start()
		}

		p.inFlight.Add(1)
		metrics.ThumbnailInFlight.Inc()
		img, err := p.process(j)
		metrics.ThumbnailInFlight.Dec()
		p.inFlight.Add(-1)

		p.complete(j, img, err)
	}
}

// process produces the artifact for j, reusing the cache when this version
// of the file already has one.
func (p *Pipeline) process(j *job) (image.Image, error) {
	if !p.monitor.WaitIfPaused(p.ctx) {
		return nil, newGenerationError(FailureCancelled, j.path, ErrStopped)
	}

	facts, ok := filesystem.Facts(j.path)
	if !ok {
		return nil, newGenerationError(FailureVanished, j.path, nil)
	}
	if facts.IsDir {
		return nil, newGenerationError(FailureUnsupported, j.path, errors.New("is a directory"))
	}

	if img, _, ok := p.cache.Get(p.ctx, j.path, facts.ModTime, facts.Size); ok {
		return img, nil
	}

	kind := mediatypes.KindOf(j.path)
	producer, ok := p.producers[kind]
	if !ok || producer == nil {
		return nil, newGenerationError(FailureUnsupported, j.path, fmt.Errorf("no producer for %s files", kind))
	}

	start := time.Now()
	art, err := producer.Produce(p.ctx, j.path, p.size)
	if err != nil {
		if p.stopping.Load() {
			err = newGenerationError(FailureCancelled, j.path, err)
		} else if KindOf(err) == "" {
			err = newGenerationError(FailureCorrupt, j.path, err)
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "error_"+string(KindOf(err))).Inc()
		logging.Debug("Thumbnail generation failed for %s: %v", j.path, err)
		return nil, err
	}
	if art.Image == nil {
		return nil, newGenerationError(FailureCorrupt, j.path, errors.New("producer returned no image"))
	}

	if p.stopping.Load() {
		p.discarded.Add(1)
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "discarded").Inc()
		return nil, newGenerationError(FailureCancelled, j.path, ErrStopped)
	}

	p.generated.Add(1)
	metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "success").Inc()
	metrics.ThumbnailGenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err := p.cache.Put(p.ctx, j.path, facts.ModTime, facts.Size, art); err != nil {
		logging.Warn("Failed to cache thumbnail for %s: %v", j.path, err)
	}
	return art.Image, nil
}

// complete removes j from the pending set and fans the outcome out to every
// attached handle.
func (p *Pipeline) complete(j *job, img image.Image, err error) {
	p.mu.Lock()
	if p.pending[j.key] == j {
		delete(p.pending, j.key)
	}
	handles := j.handles
	j.handles = nil
	p.mu.Unlock()

	if err != nil {
		p.failed.Add(int64(len(handles)))
		for _, h := range handles {
			h.finish(nil, err)
		}
		return
	}

	out := p.fit(img, j.size)
	p.delivered.Add(int64(len(handles)))
	for _, h := range handles {
		h.finish(out, nil)
	}
}

// Stop refuses new requests, fails queued ones as cancelled and waits up to
// timeout for in-flight generations. Results finished after Stop are
// discarded. It reports whether every worker exited in time; on timeout
// running producers are cancelled.
func (p *Pipeline) Stop(timeout time.Duration) bool {
	p.mu.Lock()
	if p.stopping.Swap(true) {
		p.mu.Unlock()
		return true
	}
	queued := p.queue
	p.queue = nil
	for _, j := range queued {
		delete(p.pending, j.key)
	}
	metrics.ThumbnailQueueDepth.Set(0)
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, j := range queued {
		p.complete(j, nil, newGenerationError(FailureCancelled, j.path, ErrStopped))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		logging.Info("Thumbnail pipeline stopped")
		return true
	case <-time.After(timeout):
		p.cancel()
		logging.Warn("Thumbnail pipeline did not stop within %v, cancelling in-flight work", timeout)
		return false
	}
}

// Stats returns current counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return PipelineStats{
		Requested:  p.requested.Load(),
		Merged:     p.merged.Load(),
		Dispatched: p.dispatched.Load(),
		Generated:  p.generated.Load(),
		Delivered:  p.delivered.Load(),
		Failed:     p.failed.Load(),
		Discarded:  p.discarded.Load(),
		Queued:     queued,
		InFlight:   p.inFlight.Load(),
		Workers:    p.workers,
	}
}

// Size returns the generated artifact size.
func (p *Pipeline) Size() int {
	return p.size
}
