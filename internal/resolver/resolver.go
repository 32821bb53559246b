// Package resolver implements the pure path-resolution policy of §4.1: it
// maps a logical path under the mount point to a backing path under
// BASE/<id>/ (or the fallback subdirectory), subject to the ownership and
// length-bound rules of the specification. It performs exactly one stat per
// request and caches nothing — caching here would weaken the ownership
// check that pins an identity directory's name to its owner.
package resolver

import (
	"fmt"
	"strconv"
	"syscall"

	"github.com/unsharedfs/unsharedfs/internal/config"
	"github.com/unsharedfs/unsharedfs/internal/fuseop"
	"github.com/unsharedfs/unsharedfs/internal/logger"
)

// MaxPathLen bounds the composed backing path the same way the original C
// core uses a fixed-size stack buffer for it (see §9's "fixed-size path
// buffer" design note): this is Linux's PATH_MAX. Overflow is a hard error,
// never silent truncation.
const MaxPathLen = 4096

// Error is a resolution failure. It always carries the errno the
// dispatcher must negate and return to the FUSE runtime (§4.3: "resolver
// failures propagate as the negation of the errno the resolver set").
type Error struct {
	Op   string
	Path string
	Errno syscall.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolver: %s %s: %s", e.Op, e.Path, e.Errno)
}

func (e *Error) Unwrap() error { return e.Errno }

func newError(op, path string, errno syscall.Errno) *Error {
	return &Error{Op: op, Path: path, Errno: errno}
}

// Resolve implements the §4.1 algorithm. It never follows or rewrites the
// logical path itself; it only decides which backing tree the logical path
// is rooted under.
func Resolve(cfg *config.Config, ctx fuseop.Context, logicalPath string, log *logger.Logger) (string, error) {
	id := ctx.Uid
	if cfg.Mode == config.GID {
		id = ctx.Gid
	}

	idDir := cfg.BackingRoot + "/" + strconv.FormatUint(uint64(id), 10)
	if len(idDir) > MaxPathLen {
		return "", newError("resolve", idDir, syscall.ENAMETOOLONG)
	}

	var st syscall.Stat_t
	err := syscall.Stat(idDir, &st)
	switch {
	case err == nil:
		// fall through to the ownership/type checks below.
	case err == syscall.ENOENT:
		if cfg.FallbackSubdir != "" {
			backing := cfg.BackingRoot + "/" + cfg.FallbackSubdir + logicalPath
			if len(backing) > MaxPathLen {
				return "", newError("resolve", backing, syscall.ENAMETOOLONG)
			}
			return backing, nil
		}
		if log != nil {
			log.Warningf("no identity directory for %s %d and no fallback configured", cfg.Mode, id)
		}
		return "", newError("resolve", idDir, syscall.EBUSY)
	default:
		return "", newError("resolve", idDir, err.(syscall.Errno))
	}

	if st.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		return "", newError("resolve", idDir, syscall.ENOTDIR)
	}

	if cfg.CheckOwnership && st.Uid != id {
		if log != nil {
			log.Errorf("identity directory %s is owned by uid %d, not %d; refusing", idDir, st.Uid, id)
		}
		return "", newError("resolve", idDir, syscall.EACCES)
	}

	backing := idDir + logicalPath
	if len(backing) > MaxPathLen {
		return "", newError("resolve", backing, syscall.ENAMETOOLONG)
	}
	return backing, nil
}
