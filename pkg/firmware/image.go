// Package firmware loads firmware images for sending: size, a local
// integrity digest for logging, and a content-type sniff to catch the
// classic mistake of flashing a text file.
package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrIsDir    = errors.New("firmware: image path is a directory")
	ErrEmpty    = errors.New("firmware: image is empty")
	ErrTooLarge = errors.New("firmware: image exceeds the 4 GiB protocol limit")
)

// Image describes one firmware image on disk. The digest is computed
// locally for operator visibility; it is never transmitted or verified by
// the protocol.
type Image struct {
	Path      string
	Size      uint32
	Digest    string // hex SHA-256 of the image contents
	MediaType string // sniffed content type, e.g. "application/octet-stream"
}

// Load stats, sniffs, and digests the image at path.
func Load(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	if info.Size() == 0 {
		return nil, ErrEmpty
	}
	// The declared-size token is a 32-bit integer.
	if info.Size() > math.MaxUint32 {
		return nil, ErrTooLarge
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to sniff image type: %w", err)
	}

	digest, err := digestFile(path)
	if err != nil {
		return nil, err
	}

	return &Image{
		Path:      path,
		Size:      uint32(info.Size()),
		Digest:    digest,
		MediaType: mtype.String(),
	}, nil
}

// Open returns a fresh reader over the image contents.
func (img *Image) Open() (io.ReadCloser, error) {
	f, err := os.Open(img.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
