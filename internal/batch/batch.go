// Package batch imports every spreadsheet found under a directory tree.
//
// Files are grouped in one subdirectory per import type:
//
//	root/
//	  providers/proveedores.csv
//	  products/catalogo.xlsx
//	  movements/ajustes_marzo.csv
//
// Types run in dependency order so providers exist before the products
// that reference them, and products before their movements. Within a
// directory files run in name order, one job at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/core/imports"
)

// DefaultTimeout is the maximum duration of a single file import.
const DefaultTimeout = 5 * time.Minute

// DefaultOrder is the order import type directories are processed in.
var DefaultOrder = []string{imports.Providers, imports.Products, imports.Movements}

// Importer is the part of core.Service a batch needs.
type Importer interface {
	StartImport(ctx context.Context, req core.ImportRequest) (*core.StartResult, error)
	Wait(ctx context.Context, jobID string) (*core.Job, error)
}

// Options controls a batch run.
type Options struct {
	Tenant  string
	Import  core.Options
	Order   []string      // Import type directories, in order (default: DefaultOrder)
	Timeout time.Duration // Per file (default: DefaultTimeout)

	// ArchiveDir, when set, receives every file whose job did not fail,
	// under a subdirectory named after its import type.
	ArchiveDir string

	// OnFile is called after each file finishes.
	OnFile func(FileResult)
}

// FileResult is the outcome of one file.
type FileResult struct {
	ImportType string
	Path       string
	JobID      string
	Status     core.JobStatus
	Success    int
	Errors     int
	Skipped    int
	Err        error
}

// Failed reports whether the file did not import.
func (r FileResult) Failed() bool {
	return r.Err != nil || r.Status == core.StatusFailed || r.Status == core.StatusCancelled
}

// Result summarizes a batch run.
type Result struct {
	Files []FileResult
}

// Failed returns how many files did not import.
func (r Result) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Totals sums row counts across files.
func (r Result) Totals() (success, errs, skipped int) {
	for _, f := range r.Files {
		success += f.Success
		errs += f.Errors
		skipped += f.Skipped
	}
	return success, errs, skipped
}

// Run imports every supported file under root. A failing file is recorded
// and the batch moves on; Run only returns an error when root cannot be
// read or ctx ends.
func Run(ctx context.Context, imp Importer, root string, opts Options) (Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	order := opts.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	if err := warnUnknownDirs(root, order); err != nil {
		return Result{}, err
	}

	var result Result
	for _, importType := range order {
		files, err := listFiles(filepath.Join(root, importType))
		if err != nil {
			return result, err
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			fr := ImportFile(ctx, imp, opts.Tenant, importType, path, opts.Import, opts.Timeout)
			if !fr.Failed() && opts.ArchiveDir != "" {
				if err := archive(path, filepath.Join(opts.ArchiveDir, importType)); err != nil {
					slog.Warn("batch: archive failed", "file", path, "error", err)
				}
			}

			result.Files = append(result.Files, fr)
			if opts.OnFile != nil {
				opts.OnFile(fr)
			}
		}
	}
	return result, nil
}

// ImportFile runs one file to completion.
func ImportFile(ctx context.Context, imp Importer, tenant, importType, path string, opts core.Options, timeout time.Duration) FileResult {
	fr := FileResult{ImportType: importType, Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		fr.Err = fmt.Errorf("%w: %v", core.ErrUnreadableFile, err)
		return fr
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := imp.StartImport(ctx, core.ImportRequest{
		Tenant:     tenant,
		ImportType: importType,
		FileName:   filepath.Base(path),
		Data:       data,
		Options:    opts,
	})
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.JobID = res.JobID

	job, err := imp.Wait(ctx, res.JobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("import timed out after %v", timeout)
		}
		fr.Err = err
		return fr
	}

	fr.Status = job.Status
	fr.Success = job.SuccessCount
	fr.Errors = job.ErrorCount
	fr.Skipped = job.SkippedCount
	if job.Status == core.StatusFailed {
		fr.Err = errors.New(job.Error)
	}
	return fr
}

// listFiles returns the importable files of dir in name order. A missing
// directory has no files.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := core.DetectFormat(entry.Name(), nil); err != nil {
			slog.Debug("batch: skipping unsupported file", "file", entry.Name())
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func warnUnknownDirs(root string, order []string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", root, err)
	}
	known := make(map[string]bool, len(order))
	for _, t := range order {
		known[t] = true
	}
	for _, entry := range entries {
		if entry.IsDir() && !known[entry.Name()] {
			slog.Warn("batch: ignoring directory with no import type", "dir", entry.Name())
		}
	}
	return nil
}

func archive(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
