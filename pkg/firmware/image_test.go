package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDescribesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firmware.bin")
	payload := []byte{0x7F, 'E', 'L', 'F', 0x01, 0x02, 0x03, 0x04}
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	img, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, img.Path)
	assert.Equal(t, uint32(len(payload)), img.Size)

	sum := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), img.Digest)
	assert.NotEmpty(t, img.MediaType)
}

func TestLoadRejectsBadPaths(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.bin"))
		assert.Error(t, err)
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, ErrIsDir)
	})

	t.Run("Empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.bin")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestImageOpenReadsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firmware.bin")
	payload := []byte("firmware payload")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	img, err := Load(path)
	require.NoError(t, err)

	r, err := img.Open()
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
