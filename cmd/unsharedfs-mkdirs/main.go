// Command unsharedfs-mkdirs prepares a backing directory tree for
// unsharedfs: it creates ROOTDIR/<id> for each requested identity, owned by
// that identity, so the resolver's ownership check (§4.1) has something to
// pin against. It shares no business logic with the core, only the logger.
package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/unsharedfs/unsharedfs/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("unsharedfs-mkdirs", pflag.ContinueOnError)

	auto := flags.Bool("a", false, "create one directory per id in [min, max] instead of an explicit list")
	useGid := flags.Bool("use-gid", false, "treat ids as group ids and chgrp instead of chown")
	withDefault := flags.Bool("default", false, "also create ROOTDIR/default")
	force := flags.Bool("force", false, "allow operating on a non-empty ROOTDIR")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	positional := flags.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: unsharedfs-mkdirs [-a [min [max]] | uid...] [--use-gid] [--default] [--force] ROOTDIR")
		return 2
	}

	log := logger.New(true)
	defer log.Close()

	var root string
	var ids []uint32
	var err error

	if *auto {
		if len(positional) < 1 {
			fmt.Fprintln(os.Stderr, "unsharedfs-mkdirs: -a requires ROOTDIR")
			return 2
		}
		root = positional[len(positional)-1]
		rangeArgs := positional[:len(positional)-1]
		ids, err = idRange(rangeArgs, *useGid)
	} else {
		if len(positional) < 2 {
			fmt.Fprintln(os.Stderr, "unsharedfs-mkdirs: an explicit id list requires at least one id and ROOTDIR")
			return 2
		}
		root = positional[len(positional)-1]
		ids, err = parseIds(positional[:len(positional)-1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs-mkdirs: %s\n", err)
		return 2
	}

	root, err = filepath.Abs(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs-mkdirs: %s\n", err)
		return 1
	}

	if err := prepareRoot(root, *force); err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs-mkdirs: %s\n", err)
		return 1
	}

	for _, id := range ids {
		if err := makeIdentityDir(root, id, *useGid); err != nil {
			log.Errorf("creating directory for id %d: %s", id, err)
			return 1
		}
		log.Infof("created %s/%d", root, id)
	}

	if *withDefault {
		if err := os.MkdirAll(filepath.Join(root, "default"), 0755); err != nil {
			log.Errorf("creating default directory: %s", err)
			return 1
		}
		log.Infof("created %s/default", root)
	}

	return 0
}

func prepareRoot(root string, force bool) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}

	if force {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading root: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("root %q is not empty; pass --force to proceed anyway", root)
	}
	return nil
}

func makeIdentityDir(root string, id uint32, useGid bool) error {
	dir := filepath.Join(root, strconv.FormatUint(uint64(id), 10))
	if err := os.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
		return err
	}

	uid, gid := int(id), -1
	if useGid {
		uid, gid = -1, int(id)
	}
	return os.Chown(dir, uid, gid)
}

func parseIds(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", a, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

// idRange resolves "-a [min [max]]" to the ids of identities that actually
// exist on the host within [min, max]: a uid for which user.LookupId
// succeeds, or a gid for which user.LookupGroupId succeeds in --use-gid
// mode. spec.md §6 creates a directory "for each matched identity", not for
// every integer in the range, so unmatched ids in the range are skipped
// rather than given an (always-empty) directory of their own.
func idRange(args []string, useGid bool) ([]uint32, error) {
	min, max := uint64(1000), uint64(60000)
	var err error
	switch len(args) {
	case 0:
	case 1:
		min, err = strconv.ParseUint(args[0], 10, 32)
	case 2:
		min, err = strconv.ParseUint(args[0], 10, 32)
		if err == nil {
			max, err = strconv.ParseUint(args[1], 10, 32)
		}
	default:
		return nil, fmt.Errorf("-a takes at most [min [max]]")
	}
	if err != nil {
		return nil, err
	}
	if min > max {
		return nil, fmt.Errorf("min %d exceeds max %d", min, max)
	}

	var ids []uint32
	for id := min; id <= max; id++ {
		if !identityExists(uint32(id), useGid) {
			continue
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// identityExists reports whether id names a real uid (or, in --use-gid
// mode, a real gid) on the host.
func identityExists(id uint32, useGid bool) bool {
	s := strconv.FormatUint(uint64(id), 10)
	if useGid {
		_, err := user.LookupGroupId(s)
		return err == nil
	}
	_, err := user.LookupId(s)
	return err == nil
}
