package fuseop

import (
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
)

func TestInternalDetectsZeroPid(t *testing.T) {
	ctx := Context{Uid: 1000, Gid: 1000, Pid: 0}
	if !ctx.Internal() {
		t.Error("Context with Pid 0 should report Internal() == true")
	}
}

func TestInternalFalseForRealCaller(t *testing.T) {
	ctx := Context{Uid: 1000, Gid: 1000, Pid: 4242}
	if ctx.Internal() {
		t.Error("Context with a nonzero Pid should report Internal() == false")
	}
}

func TestFromCallerCopiesOwnerAndPid(t *testing.T) {
	caller := fuse.Caller{
		Owner: fuse.Owner{Uid: 1001, Gid: 1002},
		Pid:   777,
	}
	cancel := make(chan struct{})

	ctx := FromCaller(cancel, caller)

	if ctx.Uid != 1001 || ctx.Gid != 1002 || ctx.Pid != 777 {
		t.Errorf("FromCaller() = %+v, want Uid=1001 Gid=1002 Pid=777", ctx)
	}
	if ctx.Cancel == nil {
		t.Error("FromCaller() did not carry the cancel channel through")
	}
}
