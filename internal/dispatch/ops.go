package dispatch

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/unsharedfs/unsharedfs/internal/config"
	"github.com/unsharedfs/unsharedfs/internal/credscope"
	"github.com/unsharedfs/unsharedfs/internal/fuseop"
	"github.com/unsharedfs/unsharedfs/internal/logger"
	"github.com/unsharedfs/unsharedfs/internal/resolver"
)

// redirectFS is the concrete FileSystem: every path-bearing method resolves
// through the per-identity backing tree and performs its one host call
// under the caller's credentials. It is the direct descendant of the
// teacher's loopbackFileSystem (loopback.go), generalized from a single
// fixed root to the per-identity redirection of §4.1.
type redirectFS struct {
	cfg *config.Config
	log *logger.Logger
}

// New returns the operation dispatcher described by §4.3.
func New(cfg *config.Config, log *logger.Logger) FileSystem {
	return &redirectFS{cfg: cfg, log: log}
}

// resolve wraps resolver.Resolve and surfaces its failures as a bare
// syscall.Errno, so the FUSE bridge's errnoToStatus(err) treats resolver
// failures exactly like host-call failures (§4.3's "resolver failures
// propagate as the negation of the errno the resolver set").
func (fs *redirectFS) resolve(ctx fuseop.Context, logicalPath string) (string, error) {
	backing, err := resolver.Resolve(fs.cfg, ctx, logicalPath, fs.log)
	if err != nil {
		if rerr, ok := err.(*resolver.Error); ok {
			return "", rerr.Errno
		}
		return "", err
	}
	return backing, nil
}

func (fs *redirectFS) enter(ctx fuseop.Context) credscope.Leave {
	return credscope.Enter(fs.cfg.BaseUid, fs.cfg.BaseGid, ctx, fs.log)
}

func (fs *redirectFS) GetAttr(ctx fuseop.Context, path string) (*syscall.Stat_t, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	var st syscall.Stat_t
	if err := syscall.Lstat(backing, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (fs *redirectFS) Access(ctx fuseop.Context, path string, mask uint32) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Access(backing, mask)
}

func (fs *redirectFS) Readlink(ctx fuseop.Context, path string) (string, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return "", err
	}
	leave := fs.enter(ctx)
	defer leave()

	// os.Readlink grows its buffer until the whole target fits and returns
	// it as a string. The target is returned whole: no length bound or
	// terminator is applied here.
	target, err := os.Readlink(backing)
	if err != nil {
		return "", err
	}
	return target, nil
}

func (fs *redirectFS) Mknod(ctx fuseop.Context, path string, mode uint32, dev uint64) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	switch mode & syscall.S_IFMT {
	case syscall.S_IFREG, 0:
		fd, err := syscall.Open(backing, syscall.O_CREAT|syscall.O_EXCL|syscall.O_WRONLY, mode&07777)
		if err != nil {
			return err
		}
		return syscall.Close(fd)
	case syscall.S_IFIFO:
		return syscall.Mkfifo(backing, mode&07777)
	default:
		return syscall.Mknod(backing, mode, int(dev))
	}
}

func (fs *redirectFS) Mkdir(ctx fuseop.Context, path string, mode uint32) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Mkdir(backing, mode)
}

func (fs *redirectFS) Rmdir(ctx fuseop.Context, path string) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Rmdir(backing)
}

func (fs *redirectFS) Unlink(ctx fuseop.Context, path string) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Unlink(backing)
}

// Symlink creates a link at the resolved path whose target is whatever the
// caller asked for, passed verbatim: a symlink target is not itself a
// lookup through this filesystem and must never be rewritten (§4.3, §8.5).
func (fs *redirectFS) Symlink(ctx fuseop.Context, newPath, target string) error {
	backing, err := fs.resolve(ctx, newPath)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Symlink(target, backing)
}

// Rename resolves both paths independently. The original C source had a
// bug (documented in §9) where both locals were filled from the same
// input; a correct reimplementation, and this one, resolves old and new
// paths as two separate calls into the resolver.
func (fs *redirectFS) Rename(ctx fuseop.Context, oldPath, newPath string) error {
	oldBacking, err := fs.resolve(ctx, oldPath)
	if err != nil {
		return err
	}
	newBacking, err := fs.resolve(ctx, newPath)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Rename(oldBacking, newBacking)
}

func (fs *redirectFS) Link(ctx fuseop.Context, oldPath, newPath string) error {
	oldBacking, err := fs.resolve(ctx, oldPath)
	if err != nil {
		return err
	}
	newBacking, err := fs.resolve(ctx, newPath)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Link(oldBacking, newBacking)
}

func (fs *redirectFS) Chmod(ctx fuseop.Context, path string, mode uint32) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Chmod(backing, mode)
}

func (fs *redirectFS) Chown(ctx fuseop.Context, path string, uid, gid uint32) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Lchown(backing, int(uid), int(gid))
}

func (fs *redirectFS) Truncate(ctx fuseop.Context, path string, size int64) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Truncate(backing, size)
}

func (fs *redirectFS) Utimens(ctx fuseop.Context, path string, atime, mtime time.Time) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	// syscall.UtimesNano is implemented on Linux via
	// utimensat(AT_FDCWD, fpath, tv, 0), exactly the host call §4.3 names.
	ts := []syscall.Timespec{
		syscall.NsecToTimespec(atime.UnixNano()),
		syscall.NsecToTimespec(mtime.UnixNano()),
	}
	return syscall.UtimesNano(backing, ts)
}

func (fs *redirectFS) Open(ctx fuseop.Context, path string, flags uint32) (*os.File, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	fd, err := syscall.Open(backing, int(flags), 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), backing), nil
}

// Create always opens with O_CREAT|O_EXCL|O_RDWR, per §4.3's table.
func (fs *redirectFS) Create(ctx fuseop.Context, path string, mode uint32) (*os.File, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	fd, err := syscall.Open(backing, syscall.O_CREAT|syscall.O_EXCL|syscall.O_RDWR, mode&07777)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), backing), nil
}

func (fs *redirectFS) StatFs(ctx fuseop.Context, path string) (*syscall.Statfs_t, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	var st syscall.Statfs_t
	if err := syscall.Statfs(backing, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (fs *redirectFS) OpenDir(ctx fuseop.Context, path string) (*os.File, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	fd, err := syscall.Open(backing, syscall.O_RDONLY|syscall.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), backing), nil
}

func (fs *redirectFS) SetXAttr(ctx fuseop.Context, path, name string, data []byte, flags uint32) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Lsetxattr(backing, name, data, int(flags))
}

func (fs *redirectFS) GetXAttr(ctx fuseop.Context, path, name string) ([]byte, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	dest := make([]byte, 4096)
	for {
		n, err := syscall.Lgetxattr(backing, name, dest)
		if err == syscall.ERANGE {
			dest = make([]byte, len(dest)*2)
			continue
		}
		if err != nil {
			return nil, err
		}
		return dest[:n], nil
	}
}

func (fs *redirectFS) ListXAttr(ctx fuseop.Context, path string) ([]string, error) {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	leave := fs.enter(ctx)
	defer leave()

	dest := make([]byte, 4096)
	var n int
	for {
		n, err = syscall.Llistxattr(backing, dest)
		if err == syscall.ERANGE {
			dest = make([]byte, len(dest)*2)
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	if n == 0 {
		return nil, nil
	}
	var names []string
	for _, chunk := range splitNul(dest[:n]) {
		if len(chunk) > 0 {
			names = append(names, string(chunk))
		}
	}
	return names, nil
}

func (fs *redirectFS) RemoveXAttr(ctx fuseop.Context, path, name string) error {
	backing, err := fs.resolve(ctx, path)
	if err != nil {
		return err
	}
	leave := fs.enter(ctx)
	defer leave()

	return syscall.Lremovexattr(backing, name)
}

func splitNul(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

// --- handle-bearing operations: no resolver, no credential scope ---

// Read uses ReadAt so concurrent readers on the same handle never race
// over a shared offset (§5: no implicit serialization across requests).
// A short read at end-of-file reports io.EOF, which is not a host error;
// FUSE expects a short, successful read there, not a failure status.
func (fs *redirectFS) Read(fh *os.File, dest []byte, off int64) (int, error) {
	n, err := fh.ReadAt(dest, off)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (fs *redirectFS) Write(fh *os.File, data []byte, off int64) (int, error) {
	return fh.WriteAt(data, off)
}

func (fs *redirectFS) Release(fh *os.File) error {
	return fh.Close()
}

func (fs *redirectFS) Fsync(fh *os.File, dataSync bool) error {
	if dataSync {
		return syscall.Fdatasync(int(fh.Fd()))
	}
	return fh.Sync()
}

func (fs *redirectFS) Ftruncate(fh *os.File, size int64) error {
	return fh.Truncate(size)
}

func (fs *redirectFS) Fgetattr(fh *os.File) (*syscall.Stat_t, error) {
	var st syscall.Stat_t
	if err := syscall.Fstat(int(fh.Fd()), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReadDir copies the entire remaining backing directory stream in one
// operation, per §4.3's readdir policy: offset tracking is not
// implemented, so every call drains whatever the host readdir yields.
// The names never include "." and "..": Readdirnames omits them.
func (fs *redirectFS) ReadDir(dir *os.File) ([]string, error) {
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (fs *redirectFS) ReleaseDir(dir *os.File) error {
	return dir.Close()
}
