// Package loader provides linker.Loader implementations backed by the OS
// filesystem or any fs.FS.
//
// Identifiers are absolute slash paths. Dir maps them below a root
// directory; FS maps them onto an fs.FS by dropping the leading slash.
package loader

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/worlds/errors"
)

// FS reads sources from an fs.FS. The identifier "/app/index.js" is read
// as "app/index.js".
type FS struct {
	fsys fs.FS
}

// NewFS creates a loader over fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// ReadFile implements linker.Loader.
func (l *FS) ReadFile(ctx context.Context, identifier string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(path.Clean("/"+identifier), "/")
	if name == "" {
		name = "."
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, readError(identifier, err)
	}
	return data, nil
}

// Dir reads sources from the OS filesystem. Identifiers are taken relative
// to root, so a world rooted at "/" (the default) sees real paths while
// a world rooted elsewhere cannot read above it.
type Dir struct {
	root string
}

// NewDir creates a loader rooted at root. An empty root means "/".
func NewDir(root string) *Dir {
	if root == "" {
		root = string(filepath.Separator)
	}
	return &Dir{root: root}
}

// ReadFile implements linker.Loader.
func (l *Dir) ReadFile(ctx context.Context, identifier string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+identifier), "/"))
	data, err := os.ReadFile(filepath.Join(l.root, rel))
	if err != nil {
		return nil, readError(identifier, err)
	}
	return data, nil
}

func readError(identifier string, err error) error {
	var pe *fs.PathError
	if stderrors.As(err, &pe) && pe.Err == fs.ErrInvalid {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Identifier(identifier).
			Detail("invalid source path").
			Cause(err).
			Build()
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.New(errors.PhaseLoad, errors.KindNotFound).
			Identifier(identifier).
			Detail("module not found").
			Build()
	}
	return errors.Load(identifier, err)
}
