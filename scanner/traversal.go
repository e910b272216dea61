package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

type walker interface {
	Walk(ctx context.Context, root string, fn fs.WalkDirFunc) error
}

var defaultWalker walker = stackWalker{}

// stackWalker walks depth first in lexical order using an explicit stack,
// so deep trees never grow the goroutine stack. Symlinks below the root
// are reported as entries and never followed. Returning fs.SkipDir for a
// directory prevents it from being read.
type stackWalker struct{}

type pending struct {
	path  string
	entry fs.DirEntry
}

func (stackWalker) Walk(ctx context.Context, root string, fn fs.WalkDirFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return fn(root, nil, err)
	}
	stack := []pending{{path: root, entry: fs.FileInfoToDirEntry(info)}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(next.path, next.entry, nil); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		if !next.entry.IsDir() {
			continue
		}

		// os.ReadDir sorts by name; pushing back to front pops in order.
		children, err := os.ReadDir(next.path)
		if err != nil {
			if ferr := fn(next.path, next.entry, err); ferr != nil && !errors.Is(ferr, fs.SkipDir) {
				return ferr
			}
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pending{
				path:  filepath.Join(next.path, children[i].Name()),
				entry: children[i],
			})
		}
	}
	return nil
}
