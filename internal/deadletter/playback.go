package deadletter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
)

// Playback iterates every entry of every segment in a directory, oldest first.
type Playback struct {
	dir    string
	prefix string
}

// NewPlayback reads segments named {prefix}-*.dlq from dir. An empty prefix
// means the default one.
func NewPlayback(dir, prefix string) (*Playback, error) {
	if dir == "" {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "deadletter playback: dir is empty")
	}
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	return &Playback{dir: dir, prefix: prefix}, nil
}

// Segments lists segment paths in name order, which is creation order.
func (p *Playback) Segments() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", p.dir)
	}
	prefix := p.prefix + "-"
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		files = append(files, filepath.Join(p.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Run calls handler for each entry and stops at the first error.
func (p *Playback) Run(ctx context.Context, handler func(path string, entry Entry) error) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "deadletter playback handler")
	}
	files, err := p.Segments()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := p.playFile(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler func(string, Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	reader := NewReader(file)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "read %s", path)
		}
		if err := handler(path, entry); err != nil {
			return err
		}
	}
}
