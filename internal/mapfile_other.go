//go:build !unix

package internal

import (
	"io"
	"os"
)

func mapFile(f *os.File, size int64) ([]byte, func() error, error) {
	data, err := io.ReadAll(io.LimitReader(f, size))
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
