package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <exports dir>/personas-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string    `json:"path"`
	Count      int       `json:"count"`
	Skipped    int       `json:"skipped"`
	ExportedAt time.Time `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	FacetExport   bool      `json:"_facet_export"`
	SchemaVersion string    `json:"schema_version"`
	ExportedAt    time.Time `json:"exported_at"`
}

// ExportRecord is one persona line of an export file.
type ExportRecord struct {
	Persona  *persona.Persona  `json:"persona"`
	Metadata *persona.Metadata `json:"metadata"`
}

// Export writes every saved persona to a JSONL file: a header line followed by
// one record per persona, ordered by id. Personas that fail to load are
// skipped with a warning. The file is written to a temporary name and renamed
// into place, so an existing export survives a failed run.
func (c *Coordinator) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	now := c.now().UTC()

	exportPath := input.Path
	if exportPath == "" {
		if c.paths.ExportsDir == "" {
			return nil, invalidPath("path is required when no exports directory is configured")
		}
		exportPath = filepath.Join(c.paths.ExportsDir, fmt.Sprintf("personas-%s.jsonl", now.Format("2006-01-02T150405")))
	}

	if err := ValidatePath(exportPath, PathCheckWrite, c.paths); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0o700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			_ = file.Close()
		}
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	if err := enc.Encode(ExportHeader{FacetExport: true, SchemaVersion: ExportSchemaVersion, ExportedAt: now}); err != nil {
		return nil, errors.NewInternal(err)
	}

	ids, err := c.metadataIDs(ctx)
	if err != nil {
		return nil, err
	}

	count, skipped := 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := c.Get(ctx, id)
		if err == nil {
			var meta *persona.Metadata
			if meta, err = c.GetMetadata(ctx, id); err == nil {
				if err = enc.Encode(ExportRecord{Persona: p, Metadata: meta}); err != nil {
					return nil, errors.NewInternal(err)
				}
				count++
				continue
			}
		}
		c.logger.Warn("skipping persona in export", zap.String("persona_id", id), zap.Error(err))
		skipped++
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, invalidPath("export path is a symlink")
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, invalidPath("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	c.logger.Info("personas exported", zap.String("path", exportPath), zap.Int("count", count), zap.Int("skipped", skipped))
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		Skipped:    skipped,
		ExportedAt: now,
	}, nil
}

// metadataIDs lists the ids of every saved persona, sorted.
func (c *Coordinator) metadataIDs(ctx context.Context) ([]string, error) {
	objects, err := c.store.List(ctx, "")
	if err != nil {
		return nil, errors.NewStorage("failed to list personas", err)
	}
	var ids []string
	for _, obj := range objects {
		if id, ok := strings.CutSuffix(obj.Key, metadataSuffix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
