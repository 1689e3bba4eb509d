package internal

import (
	"fmt"
	"io"
	"os"
)

// OpenInput passes the contents of path to fn. A path of "-" reads stdin.
// Regular files are mapped read-only and unmapped as soon as fn returns, so
// fn must not keep references into data. Decoded records are copies and
// may outlive the call.
func OpenInput(path string, fn func(data []byte) error) error {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		return fn(data)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		return fn(data)
	}

	data, unmap, err := mapFile(f, info.Size())
	if err != nil {
		return fmt.Errorf("mapping %s: %w", path, err)
	}
	fnErr := fn(data)
	if err := unmap(); err != nil && fnErr == nil {
		return fmt.Errorf("unmapping %s: %w", path, err)
	}
	return fnErr
}
