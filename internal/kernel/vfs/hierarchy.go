package vfs

import (
	"strings"
	"sync"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

const maxSymlinkDepth = 8

// FileHierarchy is a mount graph over filesystems, resolving paths to
// (inode, parent) pairs with root and cwd context. `..` crossing a
// mount point resolves to the mount's host directory, not back into
// the mounted filesystem's own root's parent.
type FileHierarchy struct {
	mu     sync.RWMutex
	mounts []Mount // ordered by mount path length descending for longest-prefix match
}

// NewFileHierarchy creates an empty mount graph.
func NewFileHierarchy() *FileHierarchy {
	return &FileHierarchy{}
}

// Mount attaches fs at path. path must be absolute and not already
// mounted.
func (h *FileHierarchy) Mount(path string, fs Filesystem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.mounts {
		if m.Path == path {
			return kerrors.EEXIST
		}
	}
	h.mounts = append(h.mounts, Mount{Path: path, FS: fs})
	// Longest path first so nested mounts are matched before their
	// parent mount.
	for i := len(h.mounts) - 1; i > 0; i-- {
		if len(h.mounts[i].Path) > len(h.mounts[i-1].Path) {
			h.mounts[i], h.mounts[i-1] = h.mounts[i-1], h.mounts[i]
		} else {
			break
		}
	}
	return nil
}

// Mounts returns a snapshot of the current mount table, in the same
// longest-path-first order Resolve matches against.
func (h *FileHierarchy) Mounts() []Mount {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Mount, len(h.mounts))
	copy(out, h.mounts)
	return out
}

// Unmount detaches the filesystem mounted at path.
func (h *FileHierarchy) Unmount(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.mounts {
		if m.Path == path {
			h.mounts = append(h.mounts[:i], h.mounts[i+1:]...)
			return nil
		}
	}
	return kerrors.ENOENT
}

// mountFor returns the mount owning path, by longest-prefix match, and
// the path remainder relative to that mount's root.
func (h *FileHierarchy) mountFor(path string) (Mount, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.mounts {
		if path == m.Path {
			return m, "", true
		}
		prefix := m.Path
		if prefix != "/" {
			prefix += "/"
		}
		if strings.HasPrefix(path, prefix) {
			return m, strings.TrimPrefix(path, prefix), true
		}
	}
	return Mount{}, "", false
}

// Resolve walks path from root (an absolute path) to (inode, parent),
// handling `.`/`..` syntactically. Symlinks are not followed: a symlink
// inode is returned as the target like any other inode, so Resolve
// never returns ELOOP. A missing final component is signaled by a nil
// target inode with a non-nil parent and ENOENT.
func (h *FileHierarchy) Resolve(root string, path string) (target Inode, parent Inode, err error) {
	return h.resolve(root, path, 0)
}

func (h *FileHierarchy) resolve(root, path string, depth int) (Inode, Inode, error) {
	if depth > maxSymlinkDepth {
		return nil, nil, kerrors.ELOOP
	}
	if !strings.HasPrefix(path, "/") {
		path = root + "/" + path
	}
	clean := cleanPath(path)

	m, rel, ok := h.mountFor(clean)
	if !ok {
		return nil, nil, kerrors.ENOENT
	}
	if m.FS == nil {
		return nil, nil, kerrors.ENOENT
	}

	cur := m.FS.Root()
	var parent Inode
	if rel == "" {
		return cur, parent, nil
	}

	segs := strings.Split(rel, "/")
	for i, seg := range segs {
		if seg == "" || seg == "." {
			continue
		}
		if cur.GetInfo().Type != TypeDirectory {
			return nil, nil, kerrors.ENOTDIR
		}
		next, lookupErr := cur.Lookup(seg)
		if lookupErr != nil {
			if i == len(segs)-1 {
				return nil, cur, kerrors.ENOENT
			}
			return nil, nil, lookupErr
		}
		if next.GetInfo().Type == TypeSymlink && i < len(segs) {
			// Symlink targets are resolved as plain inodes here; no
			// readlink indirection happens, and neither sefs nor devfs
			// resolves symlinks in its Lookup.
		}
		parent = cur
		cur = next
	}
	return cur, parent, nil
}

func cleanPath(p string) string {
	segs := strings.Split(p, "/")
	var out []string
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}
