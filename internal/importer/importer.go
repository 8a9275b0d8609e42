package importer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/pkg/types"
)

// Memories is where imported sentences go. *assistant.Core satisfies it.
type Memories interface {
	AddMemory(ctx context.Context, sentence string) (*types.Memory, error)
	Memories(ctx context.Context) ([]*types.Memory, error)
}

// Result summarizes an import.
type Result struct {
	FilesFound    int           `json:"files_found"`
	FilesImported int           `json:"files_imported"`
	FilesSkipped  int           `json:"files_skipped"`
	FilesFailed   int           `json:"files_failed"`
	Created       int           `json:"memories_created"`
	Duplicates    int           `json:"duplicates_skipped"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration_ms"`
}

// Importer walks a folder of notes and remembers every sentence not
// already stored.
type Importer struct {
	memories Memories
	logger   *slog.Logger
}

// New creates an importer. A nil logger means the default logger.
func New(memories Memories, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Importer{memories: memories, logger: logger}
}

// Import remembers the notes under root, which may also be a single file.
// Per-file problems are counted in the Result; the import stops early with
// an error only when the embedding provider is offline or returns vectors
// of the wrong size, since every later sentence would fail the same way.
func (imp *Importer) Import(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	files, err := Collect(root)
	if err != nil {
		return nil, err
	}
	result.FilesFound = len(files)

	existing, err := imp.memories.Memories(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[m.Sentence] = struct{}{}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, goerr.Wrap(err, "import interrupted")
		}

		note, err := readNote(root, file)
		switch {
		case err != nil:
			imp.logger.Warn("import: skipping file", "path", file, "error", err)
			result.FilesFailed++
			result.Errors = append(result.Errors, err.Error())
			continue
		case len(note.Sentences) == 0:
			result.FilesSkipped++
			continue
		}

		for _, sentence := range note.Sentences {
			if _, dup := known[sentence]; dup {
				result.Duplicates++
				continue
			}
			if _, err := imp.memories.AddMemory(ctx, sentence); err != nil {
				if errors.Is(err, embedding.ErrOffline) || errors.Is(err, embedding.ErrDimensionMismatch) {
					result.Duration = time.Since(start)
					return result, err
				}
				imp.logger.Warn("import: failed to remember sentence", "path", note.RelativePath, "error", err)
				result.Errors = append(result.Errors, note.RelativePath+": "+err.Error())
				continue
			}
			known[sentence] = struct{}{}
			result.Created++
		}
		result.FilesImported++
	}

	result.Duration = time.Since(start)
	imp.logger.Info("import: finished", "files", result.FilesImported, "memories", result.Created, "duplicates", result.Duplicates)
	return result, nil
}

// Preview parses the notes under root without remembering anything.
func Preview(root string) ([]*Note, error) {
	files, err := Collect(root)
	if err != nil {
		return nil, err
	}
	notes := make([]*Note, 0, len(files))
	for _, file := range files {
		note, err := readNote(root, file)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func readNote(root, file string) (*Note, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == "." {
		rel = filepath.Base(file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read note", goerr.V("path", rel))
	}
	return ParseNote(data, rel)
}

// Collect returns the .md / .markdown files under root in walk order, or
// root itself when it is a file. Hidden directories (e.g. .obsidian) are
// skipped.
func Collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, goerr.Wrap(err, "cannot access import path", goerr.V("path", root))
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk import path", goerr.V("path", root))
	}
	return files, nil
}
