// Package checksum 提供串流式檔案雜湊計算
// Package checksum computes file content digests with streaming reads,
// used by the duplicate finder to confirm that same-size candidates
// really carry identical content.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 algorithm (faster, sufficient for content comparison)
	MD5 Algorithm = "md5"
	// SHA256 algorithm (slower, collision resistant)
	SHA256 Algorithm = "sha256"
)

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256:
		return true
	default:
		return false
	}
}

// Options configures the hasher
type Options struct {
	// MaxSize: files larger than this are rejected (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	BufferSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{
		MaxSize:    1 * 1024 * 1024 * 1024, // 1GB
		BufferSize: 64 * 1024,              // 64KB
	}
}

// Hasher computes streaming content digests
type Hasher struct {
	opts Options
}

// New creates a hasher with the given options
func New(opts Options) *Hasher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &Hasher{opts: opts}
}

// NewDefault creates a hasher with default options
func NewDefault() *Hasher {
	return New(DefaultOptions())
}

// Sum computes the hex-encoded digest of everything in reader
func (h *Hasher) Sum(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	var hs hash.Hash
	switch algo {
	case MD5:
		hs = md5.New()
	case SHA256:
		hs = sha256.New()
	default:
		return "", fmt.Errorf("unsupported algorithm: %s", algo)
	}

	// Read one byte past the limit so overflow is detectable
	var src io.Reader = reader
	if h.opts.MaxSize > 0 {
		src = io.LimitReader(reader, h.opts.MaxSize+1)
	}

	buffer := make([]byte, h.opts.BufferSize)
	totalBytes := int64(0)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			totalBytes += int64(n)
			if h.opts.MaxSize > 0 && totalBytes > h.opts.MaxSize {
				return "", fmt.Errorf("content exceeds maximum size (%d bytes)", h.opts.MaxSize)
			}
			if _, hashErr := hs.Write(buffer[:n]); hashErr != nil {
				return "", fmt.Errorf("hash write error: %w", hashErr)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(hs.Sum(nil)), nil
}

// SumFile computes the digest of the file at path
func (h *Hasher) SumFile(ctx context.Context, path string, algo Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return h.Sum(ctx, f, algo)
}
