package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	shardExt   = ".tar"
	partialExt = ".part"
	// maxSuffix bounds the search for a free file name.
	maxSuffix = 1_000_000
)

// ErrPathExhausted is returned when no free file name could be found.
var ErrPathExhausted = errors.New("archive: no free file name")

// taken reports whether path, or an in-progress write of it, already exists.
func taken(path string) (bool, error) {
	for _, p := range []string{path, path + partialExt} {
		_, err := os.Stat(p)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}

// freePath returns path if it is unused, otherwise the first of
// "<stem>_1<ext>", "<stem>_2<ext>", ... that is.
func freePath(path string) (string, error) {
	used, err := taken(path)
	if err != nil || !used {
		return path, err
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i < maxSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPathExhausted, path)
}

// shardPath formats the path of shard index for the given stem.
func shardPath(stem string, index int) string {
	return fmt.Sprintf("%s_%06d%s", stem, index, shardExt)
}

// freeShardIndex returns the first index >= from whose shard path is unused.
func freeShardIndex(stem string, from int) (int, error) {
	for i := from; i < maxSuffix; i++ {
		used, err := taken(shardPath(stem, i))
		if err != nil {
			return 0, err
		}
		if !used {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrPathExhausted, shardPath(stem, from))
}
