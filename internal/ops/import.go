package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// maxImportLine bounds a single JSONL line; a persona with full raw data can
// exceed bufio's 64KB default.
const maxImportLine = 8 << 20

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision, import nothing
	ImportModeReplace ImportMode = "replace" // update personas that already exist
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Replaced int           `json:"replaced"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line    int
	persona *persona.Persona
}

// Import reads an export file and saves its personas under their original
// ids. In error mode nothing is written unless every line parses, every
// persona validates and no id is taken or repeated; in replace mode existing personas are updated and per-record
// failures are collected.
func (c *Coordinator) Import(ctx context.Context, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace {
		return nil, errors.NewValidation("mode must be one of: error, replace",
			errors.FieldError{Field: "mode", Message: "must be one of: error, replace"})
	}

	if err := ValidatePath(input.Path, PathCheckRead, c.paths); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors, err := parseExport(file)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}

	out := &ImportOutput{Errors: parseErrors}

	if input.Mode == ImportModeError {
		if len(parseErrors) > 0 {
			return out, nil
		}
		seen := make(map[string]int, len(records))
		for _, rec := range records {
			if first, dup := seen[rec.persona.ID]; dup {
				out.Errors = append(out.Errors, ImportError{
					Line:    rec.line,
					ID:      rec.persona.ID,
					Code:    string(errors.ErrAlreadyExists),
					Message: fmt.Sprintf("duplicate persona id %q (first seen on line %d)", rec.persona.ID, first),
				})
				continue
			}
			seen[rec.persona.ID] = rec.line

			check := rec.persona.Clone()
			check.FillDefaults()
			if err := persona.ValidatePersona(check); err != nil {
				out.Errors = append(out.Errors, importError(rec, err))
				continue
			}

			if _, err := c.GetMetadata(ctx, rec.persona.ID); err == nil {
				out.Errors = append(out.Errors, importError(rec, errors.NewAlreadyExists(rec.persona.ID)))
			} else if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}
		if len(out.Errors) > 0 {
			return out, nil
		}
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err := c.Save(ctx, rec.persona)
		if errors.Is(err, errors.ErrAlreadyExists) && input.Mode == ImportModeReplace {
			if _, err = c.Update(ctx, rec.persona.ID, rec.persona); err == nil {
				out.Replaced++
				continue
			}
		}
		if err != nil {
			out.Errors = append(out.Errors, importError(rec, err))
			continue
		}
		out.Imported++
	}

	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	c.logger.Info("personas imported",
		zap.String("path", input.Path),
		zap.Int("imported", out.Imported),
		zap.Int("replaced", out.Replaced),
		zap.Int("errors", len(out.Errors)))
	return out, nil
}

func importError(rec importRecord, err error) ImportError {
	fErr := errors.From(err)
	return ImportError{
		Line:    rec.line,
		ID:      rec.persona.ID,
		Code:    string(fErr.Code),
		Message: fErr.Message,
	}
}

// parseExport splits an export file into persona records, skipping the header.
func parseExport(r io.Reader) ([]importRecord, []ImportError, error) {
	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry struct {
			FacetExport bool `json:"_facet_export"`
			ExportRecord
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if entry.FacetExport {
			continue
		}

		if entry.Persona == nil || entry.Persona.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing persona id",
			})
			continue
		}
		if err := ValidateID(entry.Persona.ID); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      entry.Persona.ID,
				Code:    "INVALID_RECORD",
				Message: errors.From(err).Message,
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, persona: entry.Persona})
	}

	return records, parseErrors, scanner.Err()
}
