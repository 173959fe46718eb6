package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

// Source is the positional-read contract a Progressive reader wraps: an
// archive.Reader, an *os.File, or any other io.ReaderAt-like blob with a
// known size.
type Source interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}

// ProgressiveConfig configures a Progressive reader (spec §4.3.3).
type ProgressiveConfig struct {
	ChunkSize           int
	MaxPrefetchChunks   int
	MinProgressiveSize  int64
	PredictivePrefetch  bool
}

// DefaultProgressiveConfig matches spec §4.3.3's stated defaults.
var DefaultProgressiveConfig = ProgressiveConfig{
	ChunkSize:          128 * 1024,
	MaxPrefetchChunks:  3,
	MinProgressiveSize: 256 * 1024,
	PredictivePrefetch: true,
}

// ProgressiveStats mirrors spec §4.3.3's stat set.
type ProgressiveStats struct {
	ChunksLoaded   uint64
	BytesLoaded    uint64
	CacheHits      uint64
	CacheMisses    uint64
	AvgChunkLoadTime time.Duration
}

// Progressive wraps a large blob and serves read(offset, length) -> bytes
// without materializing the whole thing, chunk-caching what it has already
// fetched and predictively warming the chunks likely to be read next (spec
// §4.3.3).
//
// Grounded on readahead/readahead.go's bufio.Reader-backed chunked
// sequential cache, generalized to random-access reads with per-chunk
// fetch coalescing in the style of range-cache/range-cache.go's
// sync.Map-of-sync.Cond double-checked-locking pattern.
type Progressive struct {
	source Source
	size   int64
	cfg    ProgressiveConfig

	mu     sync.RWMutex
	chunks map[int][]byte

	inFlight sync.Map // chunk index -> *sync.Cond (Locker is mu)

	chunksLoaded     atomic.Uint64
	bytesLoaded      atomic.Uint64
	cacheHits        atomic.Uint64
	cacheMisses      atomic.Uint64
	totalLoadNanos   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewProgressive builds a Progressive reader over source with cfg. Zero or
// negative ChunkSize, MaxPrefetchChunks and MinProgressiveSize are replaced
// with DefaultProgressiveConfig's; PredictivePrefetch is used as given.
func NewProgressive(source Source, cfg ProgressiveConfig) *Progressive {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultProgressiveConfig.ChunkSize
	}
	if cfg.MaxPrefetchChunks <= 0 {
		cfg.MaxPrefetchChunks = DefaultProgressiveConfig.MaxPrefetchChunks
	}
	if cfg.MinProgressiveSize <= 0 {
		cfg.MinProgressiveSize = DefaultProgressiveConfig.MinProgressiveSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Progressive{
		source: source,
		size:   source.Size(),
		cfg:    cfg,
		chunks: make(map[int][]byte),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels any pending prefetches. Chunk loads already under way run to
// completion, but their results are discarded rather than added to the
// chunk cache (spec §5, "Cancellation").
func (p *Progressive) Close() {
	p.cancel()
}

func (p *Progressive) chunkIndexFor(offset int64) int {
	return int(offset / int64(p.cfg.ChunkSize))
}

func (p *Progressive) chunkBounds(index int) (start, end int64) {
	start = int64(index) * int64(p.cfg.ChunkSize)
	end = start + int64(p.cfg.ChunkSize)
	if end > p.size {
		end = p.size
	}
	return start, end
}

// Read returns the length bytes starting at offset. Below
// MinProgressiveSize, it bypasses chunking entirely and reads the range
// directly (spec §4.3.3, "fall back to whole-file read").
func (p *Progressive) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > p.size {
		return nil, cerrors.TruncatedData(int(length), int(p.size-offset))
	}
	if p.size < p.cfg.MinProgressiveSize {
		buf := make([]byte, length)
		n, err := p.source.ReadAt(buf, offset)
		if err != nil {
			return nil, cerrors.IOError(err)
		}
		return buf[:n], nil
	}

	out := make([]byte, 0, length)
	firstIdx := p.chunkIndexFor(offset)
	lastIdx := p.chunkIndexFor(offset + length - 1)
	if length == 0 {
		lastIdx = firstIdx - 1
	}

	for idx := firstIdx; idx <= lastIdx; idx++ {
		chunk, err := p.loadChunk(idx)
		if err != nil {
			return nil, err
		}
		start, _ := p.chunkBounds(idx)
		lo := int64(0)
		if idx == firstIdx {
			lo = offset - start
		}
		hi := int64(len(chunk))
		if idx == lastIdx {
			hi = offset + length - start
		}
		out = append(out, chunk[lo:hi]...)
	}

	if p.cfg.PredictivePrefetch {
		p.schedulePrefetch(lastIdx + 1)
	}
	return out, nil
}

// loadChunk returns chunk index's bytes, loading it from source if not
// already cached, coalescing concurrent loaders of the same chunk onto a
// single fetch.
func (p *Progressive) loadChunk(index int) ([]byte, error) {
	p.mu.RLock()
	if c, ok := p.chunks[index]; ok {
		p.mu.RUnlock()
		p.cacheHits.Add(1)
		return c, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	if c, ok := p.chunks[index]; ok {
		p.mu.Unlock()
		p.cacheHits.Add(1)
		return c, nil
	}

	condIface, loaded := p.inFlight.LoadOrStore(index, sync.NewCond(&p.mu))
	cond := condIface.(*sync.Cond)
	if loaded {
		cond.Wait()
		c, ok := p.chunks[index]
		if ok {
			p.mu.Unlock()
			p.cacheHits.Add(1)
			return c, nil
		}
		// Previous fetcher failed; fall through and become the fetcher.
		condIface, loaded = p.inFlight.LoadOrStore(index, sync.NewCond(&p.mu))
		cond = condIface.(*sync.Cond)
		_ = loaded
	}

	p.cacheMisses.Add(1)
	p.mu.Unlock()

	start, end := p.chunkBounds(index)
	buf := make([]byte, end-start)
	t0 := time.Now()
	n, err := p.source.ReadAt(buf, start)
	elapsed := time.Since(t0)

	p.mu.Lock()
	p.inFlight.Delete(index)
	cond.Broadcast()
	if err != nil {
		p.mu.Unlock()
		return nil, cerrors.IOError(err)
	}
	buf = buf[:n]
	if p.ctx.Err() == nil {
		p.chunks[index] = buf
	}
	p.mu.Unlock()

	p.chunksLoaded.Add(1)
	p.bytesLoaded.Add(uint64(n))
	p.totalLoadNanos.Add(elapsed.Nanoseconds())
	return buf, nil
}

// schedulePrefetch warms up to MaxPrefetchChunks chunks starting at
// fromIndex concurrently, bounded and cancelable via Close.
//
// Grounded on split-car-fetcher/fetcher.go's errgroup.SetLimit fan-out:
// one goroutine per chunk, capped at MaxPrefetchChunks in flight.
func (p *Progressive) schedulePrefetch(fromIndex int) {
	maxIdx := p.chunkIndexFor(p.size - 1)
	go func() {
		g, ctx := errgroup.WithContext(p.ctx)
		g.SetLimit(p.cfg.MaxPrefetchChunks)
		for i := 0; i < p.cfg.MaxPrefetchChunks; i++ {
			idx := fromIndex + i
			if idx > maxIdx {
				break
			}
			g.Go(func() error {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				p.mu.RLock()
				_, cached := p.chunks[idx]
				p.mu.RUnlock()
				if cached {
					return nil
				}
				_, _ = p.loadChunk(idx)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Stats returns a snapshot of this reader's load/hit counters.
func (p *Progressive) Stats() ProgressiveStats {
	loaded := p.chunksLoaded.Load()
	var avg time.Duration
	if loaded > 0 {
		avg = time.Duration(p.totalLoadNanos.Load() / int64(loaded))
	}
	return ProgressiveStats{
		ChunksLoaded:     loaded,
		BytesLoaded:      p.bytesLoaded.Load(),
		CacheHits:        p.cacheHits.Load(),
		CacheMisses:      p.cacheMisses.Load(),
		AvgChunkLoadTime: avg,
	}
}
