package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
	"io"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrStoreClosed is returned when using a Store after Close.
var ErrStoreClosed = errors.New("dataset store is closed")

const (
	// LockFileName is the name of the lock file inside the store directory, held by writers.
	LockFileName = "LOCK"

	segmentPrefix = "segment"
	basePrefix    = "base"
	fileSuffix    = ".jsonl.zst"
	tmpPrefix     = ".tmp-"

	// maxSnapshotAttempts bounds the retries of LoadSnapshot when a compaction removes files
	// while they are being read.
	maxSnapshotAttempts = 10
)

var reDataFile = regexp.MustCompile(`^(segment|base)-(\d+)-(\d+)\.jsonl\.zst$`)

// Store accumulates examples from many writers, possibly in different processes, in a directory.
//
// Each appended batch becomes an immutable segment file (zstd compressed JSON lines), written
// to a temporary file and atomically renamed, so readers either see a whole batch or nothing
// of it. Writers are serialized with a lock file (plus an in-process mutex), and they wait for
// the lock with exponential backoff.
//
// Compact merges all segments into one "base" file. Readers (LoadSnapshot, Size) take no lock:
// they use the newest base file and every segment after it.
type Store struct {
	dir      string
	lockFile lockfile.Lockfile
	dirMu    *sync.Mutex

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	muClosed sync.RWMutex
	closed   bool

	// MinBackoff and MaxBackoff bound the wait between attempts to acquire the writers' lock.
	MinBackoff, MaxBackoff time.Duration
}

// dirMutexes holds one mutex per absolute store directory: the lock file is reentrant for the
// same process, so Store instances of the same process serialize on this instead.
var dirMutexes sync.Map

// Open the store in the given directory, creating it if it doesn't exist.
func Open(dir string) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dataset directory %q", dir)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create dataset directory %q", absDir)
	}
	lock, err := lockfile.New(filepath.Join(absDir, LockFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot init lock file for dataset %q", absDir)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd encoder")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	mu, _ := dirMutexes.LoadOrStore(absDir, &sync.Mutex{})
	return &Store{
		dir:        absDir,
		lockFile:   lock,
		dirMu:      mu.(*sync.Mutex),
		encoder:    encoder,
		decoder:    decoder,
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: time.Second,
	}, nil
}

// Dir returns the absolute path of the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the resources of the store. Files are not affected.
func (s *Store) Close() {
	s.muClosed.Lock()
	defer s.muClosed.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.encoder.Close()
	s.decoder.Close()
}

// dataFile is a parsed name of a segment or base file.
type dataFile struct {
	name   string
	isBase bool
	seq    int
	count  int
}

// listDataFiles returns all data files in the directory, sorted by sequence number, bases first.
func (s *Store) listDataFiles() ([]dataFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list dataset directory %q", s.dir)
	}
	var files []dataFile
	for _, entry := range entries {
		parts := reDataFile.FindStringSubmatch(entry.Name())
		if parts == nil {
			continue
		}
		seq, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid sequence number in %q", entry.Name())
		}
		count, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid count in %q", entry.Name())
		}
		files = append(files, dataFile{name: entry.Name(), isBase: parts[1] == basePrefix, seq: seq, count: count})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].seq != files[j].seq {
			return files[i].seq < files[j].seq
		}
		return files[i].isBase && !files[j].isBase
	})
	return files, nil
}

// currentView selects from files the newest base and the segments after it, and returns also
// the files superseded by that base.
func currentView(files []dataFile) (view, superseded []dataFile) {
	baseIdx := -1
	for ii, f := range files {
		if f.isBase {
			baseIdx = ii
		}
	}
	if baseIdx < 0 {
		return files, nil
	}
	baseSeq := files[baseIdx].seq
	view = append(view, files[baseIdx])
	for ii, f := range files {
		switch {
		case ii == baseIdx:
		case f.seq > baseSeq:
			view = append(view, f)
		default:
			superseded = append(superseded, f)
		}
	}
	return
}

func nextSeq(files []dataFile) int {
	if len(files) == 0 {
		return 1
	}
	return files[len(files)-1].seq + 1
}

// Size returns the number of examples currently committed. It only reads the directory listing.
func (s *Store) Size() (int, error) {
	files, err := s.listDataFiles()
	if err != nil {
		return 0, err
	}
	view, _ := currentView(files)
	total := 0
	for _, f := range view {
		total += f.count
	}
	return total, nil
}

func (s *Store) isClosed() bool {
	s.muClosed.RLock()
	defer s.muClosed.RUnlock()
	return s.closed
}

// Append commits the batch of examples atomically: concurrent readers either see all of it or
// none of it. An empty batch is a no-op.
//
// It blocks while other writers hold the lock, until ctx is done.
func (s *Store) Append(ctx context.Context, batch []Example) error {
	if len(batch) == 0 {
		return nil
	}
	if s.isClosed() {
		return ErrStoreClosed
	}
	contents, err := s.encode(batch)
	if err != nil {
		return err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	files, err := s.listDataFiles()
	if err != nil {
		return err
	}
	seq := nextSeq(files)
	name := fmt.Sprintf("%s-%010d-%08d%s", segmentPrefix, seq, len(batch), fileSuffix)
	if err := s.writeAtomic(name, contents); err != nil {
		return err
	}
	klog.V(2).Infof("dataset: committed %s (%d examples, %s)", name, len(batch), humanize.Bytes(uint64(len(contents))))
	return nil
}

// LoadSnapshot returns all examples committed so far, without taking the writers' lock.
func (s *Store) LoadSnapshot() ([]Example, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	var lastErr error
	for range maxSnapshotAttempts {
		examples, err := s.loadView()
		if err == nil {
			return examples, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// A compaction removed a file under us: list again.
		klog.V(1).Infof("dataset: file removed while loading snapshot, retrying: %v", err)
		lastErr = err
	}
	return nil, errors.WithMessagef(lastErr, "failed to load a consistent snapshot of %q after %d attempts", s.dir, maxSnapshotAttempts)
}

func (s *Store) loadView() ([]Example, error) {
	files, err := s.listDataFiles()
	if err != nil {
		return nil, err
	}
	view, _ := currentView(files)
	return s.readFiles(view)
}

func (s *Store) readFiles(files []dataFile) ([]Example, error) {
	total := 0
	for _, f := range files {
		total += f.count
	}
	examples := make([]Example, 0, total)
	for _, f := range files {
		var err error
		examples, err = s.readFile(f, examples)
		if err != nil {
			return nil, err
		}
	}
	return examples, nil
}

// readFile appends the examples of file f to examples.
func (s *Store) readFile(f dataFile, examples []Example) ([]Example, error) {
	path := filepath.Join(s.dir, f.name)
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset file %q", path)
	}
	contents, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress dataset file %q", path)
	}
	dec := json.NewDecoder(bytes.NewReader(contents))
	start := len(examples)
	for {
		var e Example
		err := dec.Decode(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse example #%d of %q", len(examples)-start, path)
		}
		examples = append(examples, e)
	}
	if got := len(examples) - start; got != f.count {
		return nil, errors.Errorf("dataset file %q holds %d examples, but its name says %d", path, got, f.count)
	}
	return examples, nil
}

// Compact merges the current base and all segments after it into a new base file, and removes
// the merged files. The set of examples, and hence Size, is not changed.
func (s *Store) Compact(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	files, err := s.listDataFiles()
	if err != nil {
		return err
	}
	view, superseded := currentView(files)
	if len(view) <= 1 {
		s.removeFiles(superseded)
		return nil
	}
	examples, err := s.readFiles(view)
	if err != nil {
		return err
	}
	contents, err := s.encode(examples)
	if err != nil {
		return err
	}
	seq := view[len(view)-1].seq
	name := fmt.Sprintf("%s-%010d-%010d%s", basePrefix, seq, len(examples), fileSuffix)
	if err := s.writeAtomic(name, contents); err != nil {
		return err
	}
	s.removeFiles(append(superseded, view...))
	klog.V(1).Infof("dataset: compacted %d files into %s (%s examples, %s)", len(view), name,
		humanize.Comma(int64(len(examples))), humanize.Bytes(uint64(len(contents))))
	return nil
}

// removeFiles removes the given files. Failures are only logged: superseded files are ignored
// by readers anyway.
func (s *Store) removeFiles(files []dataFile) {
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil && !os.IsNotExist(err) {
			klog.Warningf("dataset: failed to remove superseded file %q: %v", f.name, err)
		}
	}
}

// encode examples as compressed JSON lines.
func (s *Store) encode(examples []Example) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range examples {
		if err := enc.Encode(e); err != nil {
			return nil, errors.Wrap(err, "failed to encode example")
		}
	}
	return s.encoder.EncodeAll(buf.Bytes(), nil), nil
}

// writeAtomic writes contents to a temporary file, syncs it and renames it to name.
func (s *Store) writeAtomic(name string, contents []byte) error {
	tmpPath := filepath.Join(s.dir, tmpPrefix+uuid.NewString())
	finalPath := filepath.Join(s.dir, name)
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file %q", tmpPath)
	}
	_, err = f.Write(contents)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write temporary file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed renaming %q to %q", tmpPath, finalPath)
	}
	return nil
}

// lock acquires the in-process mutex and the writers' lock file, waiting with exponential backoff.
// It returns the function to release both.
func (s *Store) lock(ctx context.Context) (unlock func(), err error) {
	s.dirMu.Lock()
	backoff := max(s.MinBackoff, time.Millisecond)
	for {
		err = s.lockFile.TryLock()
		if err == nil {
			break
		}
		if !errors.Is(err, lockfile.ErrBusy) && !errors.Is(err, lockfile.ErrNotExist) {
			s.dirMu.Unlock()
			return nil, errors.Wrapf(err, "failed to acquire lock %q", string(s.lockFile))
		}
		klog.V(2).Infof("dataset: lock %q busy, waiting %s", string(s.lockFile), backoff)
		select {
		case <-ctx.Done():
			s.dirMu.Unlock()
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock %q", string(s.lockFile))
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, s.MaxBackoff)
	}
	return func() {
		if err := s.lockFile.Unlock(); err != nil {
			klog.Errorf("dataset: failed to release lock %q: %v", string(s.lockFile), err)
		}
		s.dirMu.Unlock()
	}, nil
}
