// Package credscope implements the per-request credential switch of §4.4.
//
// The mechanism is grounded directly on the retrieval pack's
// apptainer-apptainer rpc server (internal/pkg/runtime/engine/apptainer/rpc/server/server_linux.go),
// which brackets a privileged filesystem operation with
// runtime.LockOSThread, syscall.Setfsuid/syscall.Setfsgid, a deferred
// restore that calls them again with the original ids, and
// runtime.UnlockOSThread. That is exactly the per-thread
// filesystem-credential discipline §4.4 describes: switching fsuid/fsgid
// only affects permission checks on file accesses for the calling thread,
// not signal delivery, and does not require regaining privilege to switch
// back.
package credscope

import (
	"syscall"

	"runtime"

	"github.com/unsharedfs/unsharedfs/internal/fuseop"
	"github.com/unsharedfs/unsharedfs/internal/logger"
)

// Leave restores the credentials a matching Enter switched away from. It is
// always safe to call exactly once; callers should `defer` it immediately
// after a successful Enter, on every exit path.
type Leave func()

// Enter switches the current goroutine's OS thread to the caller's fsuid
// and fsgid, per §4.4's contract. When ctx.Internal() is true (pid == 0, an
// internally-synthesized FUSE request with no principal to attribute it to)
// Enter is a no-op: attempting the switch would either fail or incorrectly
// clear privileges, per §4.4's bypass rule.
//
// Group id is set before user id on entry, and the order is reversed on
// restore, so the gid change is never attempted after the thread has
// already dropped the privilege required to make it — the same ordering
// used around the Setfsuid/Setfsgid pair in the grounding example.
func Enter(baseUid, baseGid uint32, ctx fuseop.Context, log *logger.Logger) Leave {
	if ctx.Internal() {
		return func() {}
	}

	runtime.LockOSThread()

	syscall.Setfsgid(int(ctx.Gid))
	syscall.Setfsuid(int(ctx.Uid))
	if got := currentFsid(syscall.SYS_SETFSUID); got != int(ctx.Uid) {
		if log != nil {
			log.Warningf("setfsuid(%d) did not take effect, fsuid is %d", ctx.Uid, got)
		}
	}

	return func() {
		syscall.Setfsuid(int(baseUid))
		syscall.Setfsgid(int(baseGid))
		if got := currentFsid(syscall.SYS_SETFSGID); got != int(baseGid) {
			if log != nil {
				log.Warningf("setfsgid(%d) restore did not take effect, fsgid is %d", baseGid, got)
			}
		}
		runtime.UnlockOSThread()
	}
}

// currentFsid returns the calling thread's fsuid (trap SYS_SETFSUID) or
// fsgid (trap SYS_SETFSGID). Passing -1, which is never a valid id, changes
// nothing and the kernel returns the current value; syscall.Setfsuid and
// syscall.Setfsgid only return an error, not that value.
func currentFsid(trap uintptr) int {
	r, _, _ := syscall.RawSyscall(trap, ^uintptr(0), 0, 0)
	return int(r)
}
