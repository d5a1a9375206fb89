package dataset

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// taggedBatch creates a batch whose examples' moves identify the writer, the batch and the
// position within the batch.
func taggedBatch(writer, batch, size int) []Example {
	examples := make([]Example, size)
	for ii := range examples {
		examples[ii].Board[0] = int8(ii%5) - 2
		examples[ii].Move = [4]int8{int8(writer), int8(batch), int8(ii), 0}
	}
	return examples
}

func openStore(t *testing.T, dir string) *Store {
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStoreAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	examples, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, examples)

	require.NoError(t, s.Append(ctx, nil))
	first := taggedBatch(0, 0, 3)
	second := taggedBatch(0, 1, 5)
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))

	size, err = s.Size()
	require.NoError(t, err)
	assert.Equal(t, 8, size)
	examples, err = s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, append(append([]Example{}, first...), second...), examples)

	// A second Store on the same directory sees the same data.
	s2 := openStore(t, s.Dir())
	examples2, err := s2.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, examples, examples2)

	s.Close()
	require.ErrorIs(t, s.Append(ctx, first), ErrStoreClosed)
}

func TestStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	require.NoError(t, s.Append(context.Background(), taggedBatch(0, 0, 2)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tmpPrefix+"leftover"), []byte("garbage"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0644))
	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	examples, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestStoreConcurrentWriters(t *testing.T) {
	const numWriters, numBatches = 4, 8
	dir := t.TempDir()
	ctx := context.Background()

	var done atomic.Bool
	var g errgroup.Group
	for writer := range numWriters {
		g.Go(func() error {
			s, err := Open(dir)
			if err != nil {
				return err
			}
			defer s.Close()
			for batch := range numBatches {
				if err := s.Append(ctx, taggedBatch(writer, batch, 1+(writer+batch)%7)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	// A concurrent reader only ever sees whole batches, and sizes never decrease.
	reader := openStore(t, dir)
	readerErr := make(chan error, 1)
	go func() {
		lastSize := 0
		for !done.Load() {
			size, err := reader.Size()
			if err != nil {
				readerErr <- err
				return
			}
			if size < lastSize {
				readerErr <- fmt.Errorf("size decreased from %d to %d", lastSize, size)
				return
			}
			lastSize = size
			examples, err := reader.LoadSnapshot()
			if err != nil {
				readerErr <- err
				return
			}
			if err := checkWholeBatches(examples); err != nil {
				readerErr <- err
				return
			}
		}
		readerErr <- nil
	}()

	require.NoError(t, g.Wait())
	done.Store(true)
	require.NoError(t, <-readerErr)

	examples, err := reader.LoadSnapshot()
	require.NoError(t, err)
	require.NoError(t, checkWholeBatches(examples))
	want := 0
	for writer := range numWriters {
		for batch := range numBatches {
			want += 1 + (writer+batch)%7
		}
	}
	assert.Len(t, examples, want)
	size, err := reader.Size()
	require.NoError(t, err)
	assert.Equal(t, want, size)

	// Every batch appears exactly once.
	seen := make(map[[2]int8]int)
	for _, e := range examples {
		seen[[2]int8{e.Move[0], e.Move[1]}]++
	}
	assert.Len(t, seen, numWriters*numBatches)
}

// checkWholeBatches verifies batches are contiguous and complete.
func checkWholeBatches(examples []Example) error {
	for ii := 0; ii < len(examples); {
		writer, batch := examples[ii].Move[0], examples[ii].Move[1]
		size := 1 + (int(writer)+int(batch))%7
		if ii+size > len(examples) {
			return fmt.Errorf("partial batch (%d, %d) at the end of the snapshot", writer, batch)
		}
		for jj := range size {
			e := examples[ii+jj]
			if e.Move[0] != writer || e.Move[1] != batch || int(e.Move[2]) != jj {
				return fmt.Errorf("batch (%d, %d) is interleaved at position %d", writer, batch, ii+jj)
			}
		}
		ii += size
	}
	return nil
}

func TestStoreCompact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	for batch := range 5 {
		require.NoError(t, s.Append(ctx, taggedBatch(1, batch, 3)))
	}
	before, err := s.LoadSnapshot()
	require.NoError(t, err)

	require.NoError(t, s.Compact(ctx))
	after, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 15, size)
	files, err := s.listDataFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].isBase)

	// Appends after compaction go after the base.
	require.NoError(t, s.Append(ctx, taggedBatch(2, 0, 2)))
	after, err = s.LoadSnapshot()
	require.NoError(t, err)
	require.Len(t, after, 17)
	assert.Equal(t, int8(2), after[16].Move[0])

	// Compacting again merges the base with the new segment.
	require.NoError(t, s.Compact(ctx))
	files, err = s.listDataFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 17, files[0].count)
	require.NoError(t, s.Compact(ctx))
}

func TestStoreLockContention(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	s.MaxBackoff = 10 * time.Millisecond
	lockPath := filepath.Join(s.Dir(), LockFileName)

	// Lock held by a live process (our parent): Append waits until the context expires.
	require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0644))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Append(ctx, taggedBatch(0, 0, 1))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Lock released while waiting.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.Remove(lockPath)
	}()
	require.NoError(t, s.Append(context.Background(), taggedBatch(0, 0, 1)))

	// Stale lock of a process that no longer exists is reclaimed.
	require.NoError(t, os.WriteFile(lockPath, []byte("2147483646\n"), 0644))
	require.NoError(t, s.Append(context.Background(), taggedBatch(0, 1, 1)))
	size, err = s.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}
