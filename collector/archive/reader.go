package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Sample is one record read back from a shard.
type Sample struct {
	Key      string
	Image    []byte
	ImageExt string
	Metadata map[string]any
}

// ReadShard returns the samples of a shard in stored order. Gzip-compressed
// shards are detected from their magic bytes.
func ReadShard(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var samples []Sample
	index := map[string]int{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		key, ext, ok := strings.Cut(hdr.Name, ".")
		if !ok {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, hdr.Name, err)
		}
		i, seen := index[key]
		if !seen {
			i = len(samples)
			index[key] = i
			samples = append(samples, Sample{Key: key})
		}
		if ext == "json" {
			meta := map[string]any{}
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			if err := dec.Decode(&meta); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, hdr.Name, err)
			}
			samples[i].Metadata = meta
			continue
		}
		samples[i].Image, samples[i].ImageExt = data, ext
	}
	return samples, nil
}

// FindShards lists finalized shard files in dir whose names start with
// prefix, in natural order (x_2.tar before x_10.tar).
func FindShards(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+shardExt))
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), prefix) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out, nil
}

// naturalLess compares a and b with runs of digits ordered by value.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := digitRun(a), digitRun(b)
		if da > 0 && db > 0 {
			na := strings.TrimLeft(a[:da], "0")
			nb := strings.TrimLeft(b[:db], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			if da != db {
				return da < db
			}
			a, b = a[da:], b[db:]
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

// digitRun returns the length of the leading run of ASCII digits in s.
func digitRun(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
