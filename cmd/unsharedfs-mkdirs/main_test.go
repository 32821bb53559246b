package main

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdsValid(t *testing.T) {
	ids, err := parseIds([]string{"1000", "1001", "2000"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1000, 1001, 2000}, ids)
}

func TestParseIdsRejectsGarbage(t *testing.T) {
	_, err := parseIds([]string{"1000", "not-a-number"})
	assert.Error(t, err)
}

func TestIdRangeTooManyArgs(t *testing.T) {
	_, err := idRange([]string{"1", "2", "3"}, false)
	assert.Error(t, err)
}

func TestIdRangeMinExceedsMax(t *testing.T) {
	_, err := idRange([]string{"2000", "1000"}, false)
	assert.Error(t, err)
}

func TestIdRangeRejectsNonNumericBound(t *testing.T) {
	_, err := idRange([]string{"abc"}, false)
	assert.Error(t, err)
}

// TestIdRangeOnlyMatchesRealIdentities pins down the fix for the defect
// where -a created a directory for every integer in the range regardless
// of whether any such uid/gid existed: the current process's own uid is a
// real identity, so a range that contains it (and nothing else) must
// resolve to exactly that one id.
func TestIdRangeOnlyMatchesRealIdentities(t *testing.T) {
	uid := uint32(os.Getuid())

	ids, err := idRange([]string{strconv.FormatUint(uint64(uid), 10), strconv.FormatUint(uint64(uid), 10)}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{uid}, ids)
}

func TestIdRangeSkipsUnmatchedIds(t *testing.T) {
	// 4294967294 (max uint32 - 1) is vanishingly unlikely to be a real uid
	// on any test host.
	const bogus = uint32(4294967294)
	_, err := user.LookupId(strconv.FormatUint(uint64(bogus), 10))
	if err == nil {
		t.Skip("uid 4294967294 unexpectedly exists on this host")
	}

	ids, err := idRange([]string{strconv.FormatUint(uint64(bogus), 10), strconv.FormatUint(uint64(bogus), 10)}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIdentityExistsForOwnUidAndGid(t *testing.T) {
	assert.True(t, identityExists(uint32(os.Getuid()), false))
	assert.True(t, identityExists(uint32(os.Getgid()), true))
}

func TestPrepareRootRejectsNonEmptyWithoutForce(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing"), []byte("x"), 0644))

	assert.Error(t, prepareRoot(root, false))
	assert.NoError(t, prepareRoot(root, true))
}

func TestPrepareRootAcceptsEmptyRoot(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, prepareRoot(root, false))
}

func TestPrepareRootRejectsFileRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.Error(t, prepareRoot(file, false))
}

func TestMakeIdentityDirOwnedBySelf(t *testing.T) {
	root := t.TempDir()
	uid := uint32(os.Getuid())

	require.NoError(t, makeIdentityDir(root, uid, false))

	info, err := os.Stat(filepath.Join(root, strconv.FormatUint(uint64(uid), 10)))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.EqualValues(t, uid, info.Sys().(*syscall.Stat_t).Uid)
}
