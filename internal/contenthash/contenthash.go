// Package contenthash computes the two-level chunked content fingerprint
// used to compare local files against destination objects.
//
// The file is split into fixed 4 MiB blocks, each block is hashed with
// SHA-256 independently, the raw digests are concatenated, and the
// concatenation is hashed once more. The scheme replicates the
// destination provider's own content-addressing algorithm, so a locally
// computed fingerprint is directly comparable with destination metadata
// without re-uploading.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/internal/pool"
)

// BlockSize is the fixed block length the fingerprint is computed over.
const BlockSize = 4 * 1024 * 1024

// blockBuffers recycles read buffers across concurrent fingerprint runs.
var blockBuffers = pool.New(BlockSize)

// Sum computes the content fingerprint of everything readable from r.
func Sum(r io.Reader) (string, error) {
	overall := sha256.New()
	buf := blockBuffers.Get()
	defer blockBuffers.Put(buf)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := sha256.Sum256(buf[:n])
			overall.Write(block[:])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading block: %w", err)
		}
	}

	return hex.EncodeToString(overall.Sum(nil)), nil
}

// SumBytes computes the content fingerprint of an in-memory buffer.
func SumBytes(data []byte) string {
	overall := sha256.New()
	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		if end > len(data) {
			end = len(data)
		}
		block := sha256.Sum256(data[off:end])
		overall.Write(block[:])
	}
	return hex.EncodeToString(overall.Sum(nil))
}

// File computes the content fingerprint of a file on fs.
func File(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for fingerprint: %w", path, err)
	}
	defer f.Close()

	return Sum(f)
}
