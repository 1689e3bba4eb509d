package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/bootkit/internal/catalog"
)

// ArchiveLimits controls zip bomb protection thresholds.
type ArchiveLimits struct {
	// MaxDecompressionRatio is the maximum allowed ratio of uncompressed to
	// compressed size for a single ZIP entry. TAR entries are not
	// ratio-checked because TAR stores uncompressed data.
	MaxDecompressionRatio int64

	// MaxTotalSize is the maximum total bytes that may be extracted from a
	// single archive across all entries.
	MaxTotalSize int64

	// MaxEntryCount is the maximum number of entries that will be processed
	// from a single archive.
	MaxEntryCount int

	// MaxEntrySize is the maximum allowed size of a single decompressed entry.
	// Entries exceeding this are skipped.
	MaxEntrySize int64
}

// DefaultArchiveLimits returns conservative defaults for archive extraction.
// Root filesystem images are large, but the signing artifacts inside them
// are small, so the per-entry limit stays low.
func DefaultArchiveLimits() ArchiveLimits {
	return ArchiveLimits{
		MaxDecompressionRatio: 100,
		MaxTotalSize:          512 * 1024 * 1024, // 512 MB
		MaxEntryCount:         100_000,
		MaxEntrySize:          10 * 1024 * 1024, // 10 MB
	}
}

// ProcessArchiveInput holds the parameters for archive processing.
type ProcessArchiveInput struct {
	ArchivePath string
	Data        []byte
	Format      string
	Limits      ArchiveLimits
	Handler     catalog.Handler
	Passwords   []string
}

// ErrEntryTooLarge is reported to the handler for skipped signing artifacts.
var ErrEntryTooLarge = errors.New("archive entry exceeds size limit")

// archiveExtensions maps file extensions to archive format identifiers.
// The ".tar.gz" compound extension is handled separately in ArchiveFormat.
var archiveExtensions = map[string]string{
	".zip": "zip",
	".tar": "tar",
	".tgz": "tar.gz",
}

// ArchiveFormat returns the archive format for the given path based on its
// extension, or "" if the path is not a recognized archive. Handles compound
// extensions like ".tar.gz" before checking single extensions.
func ArchiveFormat(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") {
		return "tar.gz"
	}
	return archiveExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsArchive reports whether the given path has a recognized archive extension.
func IsArchive(path string) bool {
	return ArchiveFormat(path) != ""
}

// ProcessArchive extracts entries from an archive, such as a firmware update
// or root filesystem image, and feeds each one to the catalog pipeline.
// Returns the number of entries processed. Archives inside archives are not
// recursed into (depth 1 only).
func ProcessArchive(ctx context.Context, input ProcessArchiveInput) (int, error) {
	if input.Handler == nil {
		return 0, errors.New("archive handler is nil")
	}
	w := &archiveWalker{input: input}
	var err error
	switch input.Format {
	case "zip":
		err = w.zip(ctx)
	case "tar":
		err = w.tar(ctx, false)
	case "tar.gz":
		err = w.tar(ctx, true)
	default:
		return 0, fmt.Errorf("unsupported archive format: %q", input.Format)
	}
	if err != nil {
		return w.processed, err
	}
	slog.Info("processed archive", "archive", input.ArchivePath, "format", input.Format, "entries", w.processed)
	return w.processed, nil
}

// archiveWalker applies the limits shared by every archive format.
type archiveWalker struct {
	input     ProcessArchiveInput
	totalSize int64
	processed int
}

// verdict is the outcome of admitting one entry.
type verdict int

const (
	admit verdict = iota
	skip
	stop
)

// admitEntry decides whether an entry whose header claims size bytes may be
// read. Oversized signing artifacts are reported to the handler so they show
// up in the scan's failure list instead of vanishing.
func (w *archiveWalker) admitEntry(name string, size int64) verdict {
	limits, path := w.input.Limits, w.input.ArchivePath
	if w.processed >= limits.MaxEntryCount {
		slog.Warn("archive entry count limit reached, stopping", "archive", path, "limit", limits.MaxEntryCount)
		return stop
	}
	if IsArchive(name) {
		slog.Debug("skipping nested archive", "archive", path, "entry", name)
		return skip
	}
	if size > limits.MaxEntrySize {
		slog.Debug("skipping oversized entry", "archive", path, "entry", name, "size", size, "limit", limits.MaxEntrySize)
		if catalog.HasBinaryExtension(name) {
			w.input.Handler.HandleFailure(path+":"+name, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, size))
		}
		return skip
	}
	if w.totalSize+size > limits.MaxTotalSize {
		slog.Warn("archive total size limit reached, stopping", "archive", path, "limit", limits.MaxTotalSize)
		return stop
	}
	return admit
}

func (w *archiveWalker) process(name string, data []byte) {
	w.totalSize += int64(len(data))
	virtualPath := w.input.ArchivePath + ":" + name
	err := catalog.ProcessData(catalog.ProcessInput{
		Data:      data,
		Path:      virtualPath,
		Passwords: w.input.Passwords,
		Handler:   w.input.Handler,
	})
	if err != nil {
		slog.Debug("processing archive entry", "path", virtualPath, "error", err)
	}
	w.processed++
}

func (w *archiveWalker) zip(ctx context.Context) error {
	path, limits := w.input.ArchivePath, w.input.Limits
	reader, err := zip.NewReader(bytes.NewReader(w.input.Data), int64(len(w.input.Data)))
	if err != nil {
		return fmt.Errorf("opening ZIP archive %s: %w", path, err)
	}

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if f.CompressedSize64 > 0 {
			ratio := int64(f.UncompressedSize64 / f.CompressedSize64)
			if ratio > limits.MaxDecompressionRatio {
				slog.Warn("skipping suspicious ZIP entry: decompression ratio too high",
					"archive", path, "entry", f.Name, "ratio", ratio, "limit", limits.MaxDecompressionRatio)
				continue
			}
		}
		size := int64(min(f.UncompressedSize64, math.MaxInt64))
		v := w.admitEntry(f.Name, size)
		if v == stop {
			break
		}
		if v == skip {
			continue
		}

		data, err := readZipEntry(f, limits.MaxEntrySize)
		if err != nil {
			slog.Debug("reading ZIP entry", "archive", path, "entry", f.Name, "error", err)
			continue
		}
		w.process(f.Name, data)
	}
	return nil
}

func (w *archiveWalker) tar(ctx context.Context, gzipped bool) error {
	path, limits := w.input.ArchivePath, w.input.Limits
	var reader io.Reader = bytes.NewReader(w.input.Data)
	if gzipped {
		gr, err := gzip.NewReader(reader)
		if err != nil {
			return fmt.Errorf("opening gzip layer for %s: %w", path, err)
		}
		defer func() {
			if closeErr := gr.Close(); closeErr != nil {
				slog.Warn("closing gzip reader", "archive", path, "error", closeErr)
			}
		}()
		reader = gr
	}

	tr := tar.NewReader(reader)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Keep what was read before the corruption.
			if w.processed > 0 {
				slog.Warn("tar read error after processing entries",
					"archive", path, "processed", w.processed, "error", err)
				return nil
			}
			return fmt.Errorf("reading TAR archive %s: %w", path, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		v := w.admitEntry(header.Name, header.Size)
		if v == stop {
			return nil
		}
		if v == skip {
			continue
		}

		// The header size is not trusted; read at most one byte past the limit.
		data, err := io.ReadAll(io.LimitReader(tr, safeLimitSize(limits.MaxEntrySize)))
		if err != nil {
			slog.Debug("reading TAR entry", "archive", path, "entry", header.Name, "error", err)
			continue
		}
		if int64(len(data)) > limits.MaxEntrySize {
			slog.Warn("TAR entry exceeded max size despite header claim", "archive", path, "entry", header.Name)
			continue
		}
		w.process(header.Name, data)
	}
}

// readZipEntry reads the contents of a ZIP file entry with an enforced size
// limit, regardless of what the ZIP header claims.
func readZipEntry(f *zip.File, maxSize int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening ZIP entry %s: %w", f.Name, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.Warn("closing ZIP entry", "entry", f.Name, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(rc, safeLimitSize(maxSize)))
	if err != nil {
		return nil, fmt.Errorf("reading ZIP entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("ZIP entry %s exceeds max size (%d bytes)", f.Name, maxSize)
	}
	return data, nil
}

// safeLimitSize returns maxSize+1 for overflow detection in io.LimitReader,
// clamped to math.MaxInt64.
func safeLimitSize(maxSize int64) int64 {
	if maxSize == math.MaxInt64 {
		return math.MaxInt64
	}
	return maxSize + 1
}
