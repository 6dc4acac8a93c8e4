package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/adapter/fs"
	"ragchat/internal/adapter/loader"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

const (
	DefaultBatchSize      = 32
	DefaultWorkers        = 4
	DefaultDedupThreshold = 0.995

	dedupProbeK = 8
)

type IngestOptions struct {
	BatchSize int
	Workers   int
	// DedupThreshold is the score at or above which stored entries are
	// checked for identical text. Zero or less disables the probe.
	DedupThreshold float64
	// Progress is called after each file with the number of files finished.
	Progress func(path string, done, total int)
}

// Invalidator is told when the index contents change.
type Invalidator interface {
	Invalidate()
}

// SourceDeleter removes every entry that came from one file.
type SourceDeleter interface {
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// IngestUseCase loads, chunks, embeds and stores a document corpus.
type IngestUseCase struct {
	walker   port.FileWalker
	loaders  *loader.Registry
	chunker  port.Chunker
	embedder port.Embedder
	index    port.VectorIndex
	opts     IngestOptions
	logger   *log.Logger

	invalidators []Invalidator

	// writeMu serializes the de-dup probe, upsert and persist.
	writeMu sync.Mutex
}

func NewIngestUseCase(
	walker port.FileWalker,
	loaders *loader.Registry,
	chunker port.Chunker,
	embedder port.Embedder,
	index port.VectorIndex,
	opts IngestOptions,
	l *log.Logger,
) *IngestUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if l == nil {
		l = logger.Discard()
	}
	return &IngestUseCase{
		walker:   walker,
		loaders:  loaders,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		opts:     opts,
		logger:   l,
	}
}

// OnChange registers a component to invalidate after a successful run.
func (u *IngestUseCase) OnChange(inv Invalidator) {
	u.invalidators = append(u.invalidators, inv)
}

// Ingest indexes every matching file under root. Per-file failures are
// logged and counted; only cancellation or index corruption abort the run.
func (u *IngestUseCase) Ingest(ctx context.Context, root string) (*domain.IngestReport, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &domain.ConfigError{Key: "DATA_FOLDER", Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &domain.ConfigError{Key: "DATA_FOLDER", Reason: root + " is not a directory"}
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return u.IngestFiles(ctx, files)
}

// IngestFiles runs the pipeline over an explicit file list.
func (u *IngestUseCase) IngestFiles(ctx context.Context, files []port.FileInfo) (*domain.IngestReport, error) {
	start := time.Now()
	report := &domain.IngestReport{FilesScanned: len(files)}
	var reportMu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)

	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := u.ingestFile(gctx, file.Path)

			reportMu.Lock()
			defer reportMu.Unlock()

			done++
			switch {
			case err == nil:
				report.DocumentsLoaded += res.loaded
				report.ChunksProduced += res.chunks
				report.ChunksDeduplicated += res.deduplicated
				report.EntriesStored += res.stored
				if res.skipped {
					report.FilesSkipped++
				}
			case isFatal(gctx, err):
				return err
			default:
				report.FilesFailed++
				report.Failures = append(report.Failures, domain.FileFailure{Path: file.Path, Err: err.Error()})
				u.logger.Warn("failed to ingest file", "path", file.Path, "err", err)
			}
			if u.opts.Progress != nil {
				u.opts.Progress(file.Path, done, len(files))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(report.Failures, func(a, b domain.FileFailure) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	report.Duration = time.Since(start)

	for _, inv := range u.invalidators {
		inv.Invalidate()
	}

	u.logger.Info("ingestion finished",
		"files", report.FilesScanned,
		"failed", report.FilesFailed,
		"skipped", report.FilesSkipped,
		"stored", report.EntriesStored,
		"deduplicated", report.ChunksDeduplicated,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, domain.ErrIndexCorruption) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

type fileResult struct {
	skipped      bool
	loaded       int
	chunks       int
	deduplicated int
	stored       int
}

func (u *IngestUseCase) ingestFile(ctx context.Context, path string) (fileResult, error) {
	var res fileResult

	l, ok := u.loaders.Lookup(path)
	if !ok {
		u.logger.Debug("skipping unsupported file", "path", path)
		res.skipped = true
		return res, nil
	}

	doc, err := l.Load(ctx, path)
	if err != nil {
		return res, err
	}
	res.loaded = 1

	chunks := slices.Collect(u.chunker.Split(doc))
	res.chunks = len(chunks)
	if len(chunks) == 0 {
		return res, nil
	}

	vectors, err := u.embed(ctx, chunks)
	if err != nil {
		return res, fmt.Errorf("failed to embed %s: %w", path, err)
	}

	deduplicated, stored, err := u.store(ctx, chunks, vectors)
	if err != nil {
		return res, err
	}
	res.deduplicated = deduplicated
	res.stored = stored

	u.logger.Debug("ingested file", "path", path, "chunks", len(chunks), "stored", stored)
	return res, nil
}

func (u *IngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for batch := range slices.Chunk(chunks, u.opts.BatchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		out, err := u.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, out...)
	}
	return vectors, nil
}

// store drops chunks that are already in the index, then upserts and
// persists the rest. It holds the writer lock throughout so two workers
// cannot both insert the same chunk.
func (u *IngestUseCase) store(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (int, int, error) {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	keepChunks := make([]domain.Chunk, 0, len(chunks))
	keepVectors := make([][]float32, 0, len(vectors))
	seen := make(map[string]bool, len(chunks))
	deduplicated := 0

	for i, c := range chunks {
		if u.opts.DedupThreshold > 0 {
			if seen[c.Text] {
				deduplicated++
				continue
			}
			dup, err := u.isDuplicate(ctx, c, vectors[i])
			if err != nil {
				return 0, 0, err
			}
			if dup {
				deduplicated++
				continue
			}
			seen[c.Text] = true
		}
		keepChunks = append(keepChunks, c)
		keepVectors = append(keepVectors, vectors[i])
	}

	if len(keepChunks) == 0 {
		return deduplicated, 0, nil
	}

	ids, err := u.index.Upsert(ctx, keepChunks, keepVectors)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	// Upserted entries are already searchable; a failed flush does not undo them.
	if err := u.index.Persist(); err != nil {
		u.logger.Error("failed to persist index", "entries", len(ids), "err", err)
	}
	return deduplicated, len(ids), nil
}

// isDuplicate reports whether an entry with the same text is already
// stored. Near-identical chunks can all score above the threshold, so the
// probe widens until it sees a hit below it or runs out of entries.
func (u *IngestUseCase) isDuplicate(ctx context.Context, c domain.Chunk, vector []float32) (bool, error) {
	total := u.index.Count()
	for k := dedupProbeK; total > 0; k *= 2 {
		hits, err := u.index.SimilaritySearch(ctx, vector, min(k, total))
		if err != nil {
			return false, fmt.Errorf("de-dup probe failed: %w", err)
		}
		for _, h := range hits {
			if h.Score < u.opts.DedupThreshold {
				return false, nil
			}
			if h.Entry.Text == c.Text {
				return true, nil
			}
		}
		if len(hits) < k || k >= total {
			return false, nil
		}
	}
	return false, nil
}

// Watch re-ingests files under root as they change until ctx is done.
func (u *IngestUseCase) Watch(ctx context.Context, root string, watcher *fs.Watcher) error {
	u.logger.Info("watching for changes", "root", root)
	return watcher.Watch(ctx, func(ctx context.Context, changes []fs.Change) {
		u.applyChanges(ctx, root, changes)
	})
}

// applyChanges handles one debounced batch. Entries of a changed or removed
// file are deleted first when the index supports it; removed files are not
// re-ingested.
func (u *IngestUseCase) applyChanges(ctx context.Context, root string, changes []fs.Change) {
	var files []port.FileInfo
	for _, ch := range changes {
		if deleter, ok := u.index.(SourceDeleter); ok {
			u.writeMu.Lock()
			n, err := deleter.DeleteBySource(ctx, ch.Path)
			u.writeMu.Unlock()
			if err != nil {
				u.logger.Warn("failed to remove stale entries", "path", ch.Path, "err", err)
			} else if n > 0 {
				u.logger.Debug("removed stale entries", "path", ch.Path, "entries", n)
			}
		}
		if !ch.Removed {
			rel, _ := filepath.Rel(root, ch.Path)
			files = append(files, port.FileInfo{Path: ch.Path, RelPath: filepath.ToSlash(rel)})
		}
	}
	if len(files) == 0 {
		for _, inv := range u.invalidators {
			inv.Invalidate()
		}
		return
	}

	report, err := u.IngestFiles(ctx, files)
	if err != nil {
		if ctx.Err() == nil {
			u.logger.Error("re-ingest failed", "err", err)
		}
		return
	}
	u.logger.Info("re-ingested changes", "files", len(files), "stored", report.EntriesStored, "failed", report.FilesFailed)
}
