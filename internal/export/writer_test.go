package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriterPreservesSubmissionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w := NewWriter(path, zap.NewNop())
	for i := 0; i < 200; i++ {
		w.Write([]byte(fmt.Sprintf("line-%03d\n", i)))
	}
	w.Close()
	w.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 200)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("line-%03d", i), line)
	}
	assert.Zero(t, w.Drops())
}

func TestWriterLazyFileCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazy.log")
	w := NewWriter(path, zap.NewNop())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file must not exist before first write")

	w.Write([]byte("x\n"))
	w.Close()
	w.Wait()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWriterDropsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	w := NewWriter(path, zap.NewNop())
	w.Write([]byte("kept\n"))
	w.Close()
	w.Write([]byte("dropped\n"))
	w.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(data))
	assert.Equal(t, uint64(1), w.Drops())
}

func TestWriterOpenFailureDropsSilently(t *testing.T) {
	// parent directory does not exist; every write is dropped, none surface
	path := filepath.Join(t.TempDir(), "missing", "out.log")
	w := NewWriter(path, zap.NewNop())
	w.Write([]byte("a\n"))
	w.Write([]byte("b\n"))
	w.Close()
	w.Wait()
	assert.Equal(t, uint64(2), w.Drops())
}
