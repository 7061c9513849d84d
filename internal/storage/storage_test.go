package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T, opts ...Option) *FilesystemStorage {
	t.Helper()
	fs, err := NewFilesystemStorage(t.TempDir(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return fs
}

func TestAllocateNameKeepsExtension(t *testing.T) {
	fs := newTestStorage(t)

	assert.True(t, strings.HasSuffix(fs.AllocateName("report.PDF"), ".pdf"))
	assert.Equal(t, "", filepath.Ext(fs.AllocateName("noext")))
	assert.Equal(t, "", filepath.Ext(fs.AllocateName("weird.t$t")))
	assert.NotContains(t, fs.AllocateName("../../etc/passwd.txt"), "/")
}

func TestAllocateNameUniqueUnderConcurrency(t *testing.T) {
	fs := newTestStorage(t)

	const n = 500
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names <- fs.AllocateName("a.txt")
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool, n)
	for name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func TestWriteReadDelete(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	name := fs.AllocateName("a.txt")

	size, err := fs.WriteBlob(ctx, name, strings.NewReader("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.True(t, fs.Exists(name))

	f, err := fs.OpenForRead(name)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "0123456789", string(data))

	require.NoError(t, fs.DeleteBlob(name))
	assert.False(t, fs.Exists(name))

	// second delete is a no-op
	require.NoError(t, fs.DeleteBlob(name))

	_, err = fs.OpenForRead(name)
	assert.ErrorIs(t, err, models.ErrBlobNotFound)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("disk on fire")
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

func TestWriteFailureLeavesNothingBehind(t *testing.T) {
	fs := newTestStorage(t)
	name := fs.AllocateName("a.bin")

	_, err := fs.WriteBlob(context.Background(), name, &failingReader{after: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.False(t, fs.Exists(name))

	entries, err := os.ReadDir(fs.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteHonorsCancellation(t *testing.T) {
	fs := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.WriteBlob(ctx, fs.AllocateName("a.bin"), bytes.NewReader(make([]byte, 1024)))
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestWriteSemaphoreCancelledWaiter(t *testing.T) {
	fs := newTestStorage(t, WithMaxConcurrentWrites(1))
	require.True(t, fs.writeSem.TryAcquire(1))
	defer fs.writeSem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fs.WriteBlob(ctx, fs.AllocateName("a.bin"), strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestRejectsEscapingNames(t *testing.T) {
	fs := newTestStorage(t)

	for _, name := range []string{"", ".", "..", "../x", "a/b", "/etc/passwd"} {
		_, err := fs.WriteBlob(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrStorage, name)
		assert.Error(t, fs.DeleteBlob(name), name)
		assert.False(t, fs.Exists(name), name)
	}
}

func TestListBlobsFlagsPartials(t *testing.T) {
	fs := newTestStorage(t)
	name := fs.AllocateName("a.txt")
	_, err := fs.WriteBlob(context.Background(), name, strings.NewReader("abc"))
	require.NoError(t, err)

	// user files may carry any extension, including ones that look temporary
	tmpName := fs.AllocateName("notes.tmp")
	require.True(t, strings.HasSuffix(tmpName, ".tmp"))
	_, err = fs.WriteBlob(context.Background(), tmpName, strings.NewReader("scratch"))
	require.NoError(t, err)

	leftover := "." + fs.AllocateName("b.bin") + ".partial"
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), leftover), []byte("half"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(fs.Root(), "subdir"), 0o755))

	blobs, err := fs.ListBlobs()
	require.NoError(t, err)
	require.Len(t, blobs, 3)

	byName := make(map[string]BlobInfo, len(blobs))
	for _, b := range blobs {
		byName[b.Name] = b
	}
	assert.False(t, byName[name].Partial)
	assert.Equal(t, int64(3), byName[name].Size)
	assert.False(t, byName[tmpName].Partial)
	assert.True(t, byName[leftover].Partial)

	require.NoError(t, fs.DeleteBlob(leftover))
	require.NoError(t, fs.Ping(context.Background()))
}
