package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sensiblebit/bootkit/internal/catalog"
)

// skippableDirs contains directory names that cannot contain signing
// artifacts and are skipped during filesystem walks.
var skippableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".tox":         true,
	".venv":        true,
	"proc":         true,
	"sys":          true,
}

// IsSkippableDir reports whether the given directory name should be skipped
// during scanning.
func IsSkippableDir(name string) bool {
	return skippableDirs[name]
}

// ScanInput holds the parameters for ScanPath.
type ScanInput struct {
	// Path is a file, a directory, or "-" for stdin.
	Path      string
	Passwords []string
	Handler   catalog.Handler
	Limits    ArchiveLimits
	// MaxFileSize skips regular files larger than this many bytes; archives
	// are bounded by Limits instead. Zero disables the check.
	MaxFileSize int64
}

// ScanStats counts what ScanPath visited.
type ScanStats struct {
	Files    int
	Archives int
	Skipped  int
}

// ScanPath walks input.Path and feeds every file, and every entry of every
// tar or zip archive, to the catalog pipeline. Unreadable files are logged
// and skipped; only a failure to walk the tree is returned.
func ScanPath(ctx context.Context, input ScanInput) (ScanStats, error) {
	var stats ScanStats
	if input.Handler == nil {
		return stats, errors.New("scan handler is nil")
	}
	if input.Path == "-" {
		err := OpenInput("-", func(data []byte) error {
			return catalog.ProcessData(catalog.ProcessInput{
				Data: data, Path: "-", Passwords: input.Passwords, Handler: input.Handler,
			})
		})
		if err != nil {
			return stats, fmt.Errorf("processing stdin: %w", err)
		}
		stats.Files++
		return stats, nil
	}

	if _, err := os.Stat(input.Path); err != nil {
		return stats, fmt.Errorf("input path %s: %w", input.Path, err)
	}

	err := filepath.WalkDir(input.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != input.Path && IsSkippableDir(d.Name()) {
				slog.Debug("skipping directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := scanFile(ctx, path, d, input, &stats); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("error processing file", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking input path: %w", err)
	}
	return stats, nil
}

func scanFile(ctx context.Context, path string, d fs.DirEntry, input ScanInput, stats *ScanStats) error {
	if format := ArchiveFormat(path); format != "" {
		stats.Archives++
		return OpenInput(path, func(data []byte) error {
			_, err := ProcessArchive(ctx, ProcessArchiveInput{
				ArchivePath: path,
				Data:        data,
				Format:      format,
				Limits:      input.Limits,
				Handler:     input.Handler,
				Passwords:   input.Passwords,
			})
			return err
		})
	}

	if input.MaxFileSize > 0 {
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > input.MaxFileSize {
			slog.Debug("skipping large file", "path", path, "size", info.Size(), "limit", input.MaxFileSize)
			stats.Skipped++
			return nil
		}
	}
	stats.Files++
	return OpenInput(path, func(data []byte) error {
		return catalog.ProcessData(catalog.ProcessInput{
			Data:      data,
			Path:      path,
			Passwords: input.Passwords,
			Handler:   input.Handler,
		})
	})
}
