// Package archive writes per-step samples into rolling tar shards and reads
// them back. Each sample is stored as an image entry plus a JSON metadata
// entry sharing one key, the layout web-dataset style loaders expect.
package archive

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrNotOpen is returned by Write when Open has not been called.
	ErrNotOpen = errors.New("archive: Write called before Open")
	// ErrOutOfOrder is returned when a sample index does not increase.
	ErrOutOfOrder = errors.New("archive: sample index must increase")
	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("archive: writer already open")
)

// Options controls shard layout and record shaping.
type Options struct {
	// MaxCount is the number of samples per shard. Zero disables sharding.
	MaxCount int
	// Compress gzips each shard stream.
	Compress bool
	// ImageField names the record field stored as the image payload.
	ImageField string
	// ImageExt is the entry extension used for the image payload.
	ImageExt string
}

func (o Options) withDefaults() Options {
	if o.ImageField == "" {
		o.ImageField = "rgb"
	}
	if o.ImageExt == "" {
		o.ImageExt = "jpeg"
	}
	return o
}

// SampleKey formats the per-sample key shared by its entries.
func SampleKey(index int) string {
	return fmt.Sprintf("sample%06d", index)
}

// Writer appends samples to a rolling sequence of shards. It is not safe for
// concurrent use; each episode owns one.
type Writer struct {
	opts Options

	open bool
	stem string // path without extension or shard suffix

	shardIndex int
	count      int
	lastIndex  int

	file *os.File
	gz   *gzip.Writer
	tw   *tar.Writer
	path string // final path of the current shard

	shards []string
	now    func() time.Time
}

// NewWriter returns a Writer; call Open before Write.
func NewWriter(opts Options) *Writer {
	return &Writer{opts: opts.withDefaults(), lastIndex: -1, now: time.Now}
}

// Open creates dir if needed. The first shard, under a non-colliding name
// derived from name, is created by the first Write, so a writer that never
// receives a sample leaves no file behind.
func (w *Writer) Open(name, dir string) error {
	if w.open {
		return ErrAlreadyOpen
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	w.stem = filepath.Join(dir, name)
	w.open = true
	return nil
}

func (w *Writer) sharded() bool { return w.opts.MaxCount > 0 }

func (w *Writer) openShard() error {
	var path string
	if w.sharded() {
		idx, err := freeShardIndex(w.stem, w.shardIndex)
		if err != nil {
			return err
		}
		w.shardIndex = idx
		path = shardPath(w.stem, idx)
	} else {
		p, err := freePath(w.stem + shardExt)
		if err != nil {
			return err
		}
		path = p
	}
	f, err := os.OpenFile(path+partialExt, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening shard: %w", err)
	}
	var out io.Writer = f
	w.gz = nil
	if w.opts.Compress {
		w.gz = gzip.NewWriter(f)
		out = w.gz
	}
	w.file, w.tw, w.path, w.count = f, tar.NewWriter(out), path, 0
	return nil
}

// closeShard finalizes the current shard and moves it to its final name.
func (w *Writer) closeShard() error {
	if w.file == nil {
		return nil
	}
	var errs []error
	errs = append(errs, w.tw.Close())
	if w.gz != nil {
		errs = append(errs, w.gz.Close())
	}
	errs = append(errs, w.file.Sync(), w.file.Close())
	w.file, w.gz, w.tw = nil, nil, nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("finalizing %s: %w", w.path, err)
	}
	if err := os.Rename(w.path+partialExt, w.path); err != nil {
		return fmt.Errorf("finalizing %s: %w", w.path, err)
	}
	w.shards = append(w.shards, w.path)
	return nil
}

// Write appends one record as sample index. The image field (when present
// and a byte slice) becomes the image entry; every other field that encodes
// as JSON goes into the metadata entry, the rest are dropped.
func (w *Writer) Write(record map[string]any, index int) error {
	if !w.open {
		return ErrNotOpen
	}
	if index <= w.lastIndex {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, index, w.lastIndex)
	}
	if w.file != nil && w.sharded() && w.count >= w.opts.MaxCount {
		if err := w.closeShard(); err != nil {
			w.open = false
			return err
		}
		w.shardIndex++
	}
	if w.file == nil {
		if err := w.openShard(); err != nil {
			w.open = false
			return err
		}
	}

	key := SampleKey(index)
	image, meta := shape(record, w.opts.ImageField)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding %s metadata: %w", key, err)
	}
	if image != nil {
		if err := w.entry(key+"."+w.opts.ImageExt, image); err != nil {
			return w.abandon(err)
		}
	}
	if err := w.entry(key+".json", metaJSON); err != nil {
		return w.abandon(err)
	}
	w.count++
	w.lastIndex = index
	return nil
}

// abandon closes the current shard without finalizing it and stops the
// writer. The .part file keeps what was written before err.
func (w *Writer) abandon(err error) error {
	w.open = false
	if w.file != nil {
		_ = w.file.Close()
		w.file, w.gz, w.tw = nil, nil, nil
	}
	return err
}

func (w *Writer) entry(name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: w.now(),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close finalizes the current shard. Calling Close again is a no-op.
func (w *Writer) Close() error {
	if !w.open {
		return nil
	}
	w.open = false
	return w.closeShard()
}

// Shards returns the finalized shard paths in write order.
func (w *Writer) Shards() []string {
	out := make([]string, len(w.shards))
	copy(out, w.shards)
	return out
}

// shape splits a record into its image payload and JSON-encodable metadata.
func shape(record map[string]any, imageField string) ([]byte, map[string]any) {
	var image []byte
	meta := make(map[string]any, len(record))
	for k, v := range record {
		if k == imageField {
			if b, ok := v.([]byte); ok {
				image = b
			}
			continue
		}
		if !jsonable(v) {
			continue
		}
		meta[k] = v
	}
	return image, meta
}

func jsonable(v any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, err := json.Marshal(v)
	return err == nil
}
