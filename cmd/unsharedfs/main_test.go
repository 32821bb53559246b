package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMountOptionsExtractsAllowOther(t *testing.T) {
	opts, rest, err := splitMountOptions([]string{"-o", "allow_other", "BASE", "MNT"})
	require.NoError(t, err)
	assert.True(t, opts.allowOther)
	assert.Equal(t, []string{"allow_other"}, opts.raw)
	assert.Equal(t, []string{"BASE", "MNT"}, rest)
}

func TestSplitMountOptionsCommaJoinedTokens(t *testing.T) {
	opts, rest, err := splitMountOptions([]string{"-o", "ro,allow_other,noatime", "BASE"})
	require.NoError(t, err)
	assert.True(t, opts.allowOther)
	assert.Equal(t, []string{"ro", "allow_other", "noatime"}, opts.raw)
	assert.Equal(t, []string{"BASE"}, rest)
}

func TestSplitMountOptionsWithoutAllowOther(t *testing.T) {
	opts, _, err := splitMountOptions([]string{"-o", "ro", "BASE"})
	require.NoError(t, err)
	assert.False(t, opts.allowOther)
}

func TestSplitMountOptionsEqualsForm(t *testing.T) {
	opts, rest, err := splitMountOptions([]string{"--fuse-option=allow_other,ro", "BASE"})
	require.NoError(t, err)
	assert.True(t, opts.allowOther)
	assert.Equal(t, []string{"allow_other", "ro"}, opts.raw)
	assert.Equal(t, []string{"BASE"}, rest)
}

func TestSplitMountOptionsDashOEqualsForm(t *testing.T) {
	opts, _, err := splitMountOptions([]string{"-o=allow_other", "BASE"})
	require.NoError(t, err)
	assert.True(t, opts.allowOther)
}

func TestSplitMountOptionsMissingValue(t *testing.T) {
	_, _, err := splitMountOptions([]string{"-o"})
	assert.Error(t, err)
}

func TestSplitMountOptionsPassesThroughOtherFlags(t *testing.T) {
	opts, rest, err := splitMountOptions([]string{"--fallback=default", "-o", "allow_other", "--use-gid", "BASE"})
	require.NoError(t, err)
	assert.True(t, opts.allowOther)
	assert.Equal(t, []string{"--fallback=default", "--use-gid", "BASE"}, rest)
}

func TestSplitMountOptionsIgnoresEmptyTokens(t *testing.T) {
	opts, _, err := splitMountOptions([]string{"-o", "allow_other,,ro,", "BASE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"allow_other", "ro"}, opts.raw)
}
