package fusebridge

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unsharedfs/unsharedfs/internal/config"
	"github.com/unsharedfs/unsharedfs/internal/dispatch"
)

// newTestBridge wires a real dispatcher over a scratch backing tree with
// an identity directory for the current process's own uid, the same way
// internal/dispatch's own tests avoid requiring root.
func newTestBridge(t *testing.T) (*Bridge, fuse.Caller) {
	t.Helper()
	root := t.TempDir()
	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())

	idDir := filepath.Join(root, strconv.FormatUint(uint64(uid), 10))
	require.NoError(t, os.Mkdir(idDir, 0755))

	cfg := config.New()
	cfg.BackingRoot = root
	cfg.CheckOwnership = false

	b := New(dispatch.New(cfg, nil), nil).(*Bridge)
	return b, fuse.Caller{Owner: fuse.Owner{Uid: uid, Gid: gid}, Pid: 999}
}

func header(caller fuse.Caller, nodeID uint64) *fuse.InHeader {
	return &fuse.InHeader{NodeId: nodeID, Caller: caller}
}

func TestLookupMkdirRoundTrip(t *testing.T) {
	b, caller := newTestBridge(t)
	cancel := make(chan struct{})

	var mkdirOut fuse.EntryOut
	in := &fuse.MkdirIn{InHeader: *header(caller, 1), Mode: 0755}
	status := b.Mkdir(cancel, in, "sub", &mkdirOut)
	require.True(t, status.Ok())

	var lookupOut fuse.EntryOut
	status = b.Lookup(cancel, header(caller, 1), "sub", &lookupOut)
	require.True(t, status.Ok())
	assert.Equal(t, mkdirOut.NodeId, lookupOut.NodeId)
	assert.NotZero(t, lookupOut.NodeId)
}

func TestCreateWriteReadRelease(t *testing.T) {
	b, caller := newTestBridge(t)
	cancel := make(chan struct{})

	var createOut fuse.CreateOut
	in := &fuse.CreateIn{InHeader: *header(caller, 1), Mode: 0644, Flags: uint32(os.O_RDWR)}
	status := b.Create(cancel, in, "f.txt", &createOut)
	require.True(t, status.Ok())

	writeIn := &fuse.WriteIn{InHeader: *header(caller, createOut.NodeId), Fh: createOut.Fh, Offset: 0}
	written, status := b.Write(cancel, writeIn, []byte("hello"))
	require.True(t, status.Ok())
	assert.EqualValues(t, 5, written)

	readIn := &fuse.ReadIn{InHeader: *header(caller, createOut.NodeId), Fh: createOut.Fh, Offset: 0, Size: 5}
	result, status := b.Read(cancel, readIn, make([]byte, 5))
	require.True(t, status.Ok())
	buf, status2 := result.Bytes(make([]byte, 5))
	require.True(t, status2.Ok())
	assert.Equal(t, "hello", string(buf))

	b.Release(cancel, &fuse.ReleaseIn{InHeader: *header(caller, createOut.NodeId), Fh: createOut.Fh})
}

func TestReadDirOfNewDirectorySucceeds(t *testing.T) {
	b, caller := newTestBridge(t)
	cancel := make(chan struct{})

	var mkdirOut fuse.EntryOut
	require.True(t, b.Mkdir(cancel, &fuse.MkdirIn{InHeader: *header(caller, 1), Mode: 0755}, "d", &mkdirOut).Ok())

	var openOut fuse.OpenOut
	require.True(t, b.OpenDir(cancel, &fuse.OpenIn{InHeader: *header(caller, mkdirOut.NodeId)}, &openOut).Ok())

	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	status := b.ReadDir(cancel, &fuse.ReadIn{InHeader: *header(caller, mkdirOut.NodeId), Fh: openOut.Fh}, list)
	require.True(t, status.Ok())

	b.ReleaseDir(&fuse.ReleaseIn{InHeader: *header(caller, mkdirOut.NodeId), Fh: openOut.Fh})
}

func TestUnlinkRemovesChild(t *testing.T) {
	b, caller := newTestBridge(t)
	cancel := make(chan struct{})

	var createOut fuse.CreateOut
	require.True(t, b.Create(cancel, &fuse.CreateIn{InHeader: *header(caller, 1), Mode: 0644}, "gone.txt", &createOut).Ok())
	b.Release(cancel, &fuse.ReleaseIn{InHeader: *header(caller, createOut.NodeId), Fh: createOut.Fh})

	status := b.Unlink(cancel, header(caller, 1), "gone.txt")
	require.True(t, status.Ok())

	var lookupOut fuse.EntryOut
	status = b.Lookup(cancel, header(caller, 1), "gone.txt", &lookupOut)
	assert.False(t, status.Ok())
}

func TestUnsupportedOperationsReturnENOSYS(t *testing.T) {
	b, caller := newTestBridge(t)
	cancel := make(chan struct{})

	assert.Equal(t, fuse.ENOSYS, b.Flush(cancel, &fuse.FlushIn{InHeader: *header(caller, 1)}))
	assert.Equal(t, fuse.ENOSYS, b.Fallocate(cancel, &fuse.FallocateIn{InHeader: *header(caller, 1)}))
	assert.Equal(t, fuse.ENOSYS, b.GetLk(cancel, &fuse.LkIn{InHeader: *header(caller, 1)}, &fuse.LkOut{}))
}
