// Package fuseop carries the per-request principal information the FUSE
// runtime hands the dispatcher, shaped after the teacher's pathfs.Context
// (context.go) but trimmed to exactly what §3's RequestContext needs: uid,
// gid, pid, plus the cancellation channel the runtime uses to signal an
// aborted request.
package fuseop

import (
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Context is the per-request principal: read-only, opaque to everything
// except the resolver and the credential scope.
type Context struct {
	Uid    uint32
	Gid    uint32
	Pid    uint32
	Cancel <-chan struct{}
}

// Internal reports whether this request has no caller attribution (the
// FUSE runtime issues some internal operations with pid 0). Per §4.4 the
// credential scope must bypass both enter and leave for such requests.
func (c Context) Internal() bool {
	return c.Pid == 0
}

// FromCaller builds a Context from a go-fuse fuse.Caller and the request's
// cancellation channel, mirroring how the teacher's newContext populates
// its Context from fuse.Context/fuse.Caller in every rawBridge callback.
func FromCaller(cancel <-chan struct{}, caller fuse.Caller) Context {
	return Context{
		Uid:    caller.Owner.Uid,
		Gid:    caller.Owner.Gid,
		Pid:    caller.Pid,
		Cancel: cancel,
	}
}
