// Package config holds the immutable per-mount state of unsharedfs.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Mode selects which part of the caller's identity selects the backing
// subdirectory.
type Mode int

const (
	// UID redirects by the caller's numeric user id.
	UID Mode = iota
	// GID redirects by the caller's numeric group id.
	GID
)

func (m Mode) String() string {
	switch m {
	case UID:
		return "uid"
	case GID:
		return "gid"
	default:
		return "unknown"
	}
}

// Config is built once by the mount driver and shared read-only with every
// dispatcher invocation. It must never be mutated after Validate succeeds.
type Config struct {
	// BackingRoot is the absolute, canonicalized directory beneath which
	// per-identity subdirectories live.
	BackingRoot string

	// FallbackSubdir, if non-empty, names a directory directly under
	// BackingRoot used when the caller has no matching identity directory.
	// It is never a path (no separators).
	FallbackSubdir string

	// Mode selects uid- or gid-based redirection.
	Mode Mode

	// CheckOwnership enables the ownership-pinning check on the identity
	// branch of path resolution. Always false when Mode == GID.
	CheckOwnership bool

	// BaseUid and BaseGid are the mount process's real user and group ids,
	// captured once at startup before any credential manipulation.
	BaseUid uint32
	BaseGid uint32

	// AllowOtherSet records whether the FUSE "allow_other" option was seen
	// on the command line. Mount is refused when false.
	AllowOtherSet bool
}

// New captures the mount process's real identity and returns a Config with
// default values; callers should then set the fields parsed from the
// command line and call Validate before using the Config.
func New() *Config {
	return &Config{
		Mode:           UID,
		CheckOwnership: true,
		BaseUid:        uint32(os.Getuid()),
		BaseGid:        uint32(os.Getgid()),
	}
}

// Validate enforces the invariants of §3: an existing backing root, a
// separator-free fallback name, allow_other observed, and gid-mode forcing
// ownership checks off.
func (c *Config) Validate() error {
	if c.BackingRoot == "" {
		return fmt.Errorf("config: backing root is required")
	}
	info, err := os.Stat(c.BackingRoot)
	if err != nil {
		return fmt.Errorf("config: backing root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: backing root %q is not a directory", c.BackingRoot)
	}

	if strings.ContainsRune(c.FallbackSubdir, '/') {
		return fmt.Errorf("config: fallback subdirectory %q must not contain a path separator", c.FallbackSubdir)
	}

	if c.Mode == GID {
		c.CheckOwnership = false
	}

	if !c.AllowOtherSet {
		return fmt.Errorf("config: the allow_other mount option is required")
	}

	return nil
}
