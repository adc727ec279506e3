package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		size     int64
		maxBytes int64
		wantErr  error
	}{
		{name: "small image under default", size: 512, maxBytes: MaxAssetBytes},
		{name: "exactly the default cap", size: MaxAssetBytes, maxBytes: MaxAssetBytes},
		{name: "one byte over the default cap", size: MaxAssetBytes + 1, maxBytes: MaxAssetBytes, wantErr: ErrAssetTooLarge},
		{name: "tiny configured cap", size: 6, maxBytes: 5, wantErr: ErrAssetTooLarge},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload := bytes.Repeat([]byte{'x'}, int(tt.size))
			got, err := ReadAllWithLimit(bytes.NewReader(payload), tt.maxBytes)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, int(tt.size))
		})
	}
}

func TestReadAllWithLimitRejectsBadArguments(t *testing.T) {
	t.Parallel()

	_, err := ReadAllWithLimit(nil, MaxAssetBytes)
	require.Error(t, err)
	_, err = ReadAllWithLimit(bytes.NewReader(pngHeader), 0)
	require.Error(t, err)
}

func TestDetectImageFormats(t *testing.T) {
	t.Parallel()

	mime, err := DetectImage(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = DetectImage([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	_, err = DetectImage([]byte("đơn hàng DH001"))
	require.ErrorIs(t, err, ErrNotAnImage)
}

func TestFileSourceDefaultsToMaxAssetBytes(t *testing.T) {
	t.Parallel()

	src := NewFileSource(0)
	assert.Equal(t, MaxAssetBytes, src.maxBytes)

	dir := t.TempDir()
	over := filepath.Join(dir, "huge.png")
	data := append(append([]byte{}, pngHeader...), make([]byte, MaxAssetBytes)...)
	require.NoError(t, os.WriteFile(over, data, 0o600))
	_, err := src.Load(context.Background(), over)
	require.ErrorIs(t, err, ErrAssetTooLarge)

	atCap := filepath.Join(dir, "cap.png")
	require.NoError(t, os.WriteFile(atCap, data[:MaxAssetBytes], 0o600))
	img, err := src.Load(context.Background(), atCap)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.Mime)
	assert.Len(t, img.Data, int(MaxAssetBytes))
}
