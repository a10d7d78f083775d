// Package ingest loads source documents from disk into a document index.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/miskibin/sejmofil-sub001/internal/progress"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

const defaultBatchSize = 64

// Options selects the sources to ingest.
type Options struct {
	SourceDir string
	Include   []string
	Exclude   []string
	BatchSize int
}

// Stats summarizes an ingest run.
type Stats struct {
	Files     int
	Skipped   int
	Documents int
	ByType    map[vectordb.DocumentType]int
}

// Run discovers and loads every source file, then writes the documents to
// w in batches. Files that fail to load are logged and skipped; a write
// failure aborts the run. Later documents replace earlier ones with the
// same ID.
func Run(ctx context.Context, opts Options, w vectordb.Writer, reporter progress.Reporter, logger zerolog.Logger) (Stats, error) {
	stats := Stats{ByType: make(map[vectordb.DocumentType]int)}
	if reporter == nil {
		reporter = progress.Nop{}
	}

	files, err := Discover(opts.SourceDir, opts.Include, opts.Exclude)
	if err != nil {
		return stats, err
	}
	stats.Files = len(files)
	if len(files) == 0 {
		return stats, nil
	}

	var docs []vectordb.Document
	seen := make(map[string]int)

	reporter.Start(len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			reporter.Finish()
			return stats, err
		}
		reporter.Update(i+1, f.RelPath)

		loaded, err := LoadFile(f)
		if err != nil {
			logger.Warn().Err(err).Str("file", f.RelPath).Msg("skipping source file")
			stats.Skipped++
			continue
		}
		for _, d := range loaded {
			if idx, ok := seen[d.ID]; ok {
				docs[idx] = d
				continue
			}
			seen[d.ID] = len(docs)
			docs = append(docs, d)
		}
	}
	reporter.Finish()

	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for start := 0; start < len(docs); start += batch {
		end := min(start+batch, len(docs))
		if err := w.AddDocuments(ctx, docs[start:end]); err != nil {
			return stats, fmt.Errorf("writing documents %d-%d: %w", start, end, err)
		}
		logger.Debug().Int("from", start).Int("to", end).Msg("indexed batch")
	}

	stats.Documents = len(docs)
	for _, d := range docs {
		stats.ByType[d.Type]++
	}
	return stats, nil
}
