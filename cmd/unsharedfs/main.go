// Command unsharedfs mounts a per-identity redirecting filesystem: every
// path under the mount point is served from BASE/<uid-or-gid>/path in the
// backing directory, with each request performed under the calling
// process's own credentials.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/pflag"

	"github.com/unsharedfs/unsharedfs/internal/config"
	"github.com/unsharedfs/unsharedfs/internal/dispatch"
	"github.com/unsharedfs/unsharedfs/internal/fusebridge"
	"github.com/unsharedfs/unsharedfs/internal/logger"
)

const version = "unsharedfs 1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("unsharedfs", pflag.ContinueOnError)
	flags.Usage = func() { printUsage(os.Stderr, flags) }

	fallback := flags.String("fallback", "", "name of the backing subdirectory used when a caller has no identity directory")
	noCheckOwnership := flags.Bool("no-check-ownership", false, "skip the identity-directory ownership check")
	useGid := flags.Bool("use-gid", false, "redirect by the caller's group id instead of user id")
	showVersion := flags.BoolP("version", "V", false, "print the version banner and exit")
	showHelp := flags.BoolP("help", "h", false, "print usage and exit")
	foreground := flags.BoolP("foreground", "f", false, "log to stderr only, without the syslog sink")
	debug := flags.Bool("debug", false, "log every FUSE request")

	opts, rest, err := splitMountOptions(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := flags.Parse(rest); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Println(version)
		return 0
	}
	if *showHelp {
		printUsage(os.Stdout, flags)
		return 0
	}

	positional := flags.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "unsharedfs: missing BASEDIR argument")
		printUsage(os.Stderr, flags)
		return 2
	}

	backingRoot, err := filepath.Abs(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs: %s\n", err)
		return 1
	}

	cfg := config.New()
	cfg.BackingRoot = backingRoot
	cfg.FallbackSubdir = *fallback
	if *useGid {
		cfg.Mode = config.GID
	}
	if *noCheckOwnership || *useGid {
		cfg.CheckOwnership = false
	}
	cfg.AllowOtherSet = opts.allowOther

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs: %s\n", err)
		return 1
	}

	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "unsharedfs: warning: not running as root; per-identity redirection will be ineffective, every request arrives under the mounting user's own credentials")
	}

	log := logger.New(*foreground)
	defer log.Close()

	var mountPoint string
	if len(positional) > 1 {
		mountPoint = positional[1]
	} else {
		mountPoint = backingRoot
	}

	fs := dispatch.New(cfg, log)
	raw := fusebridge.New(fs, log)

	mountOpts := &fuse.MountOptions{
		Options:     opts.raw,
		Debug:       *debug,
		FsName:      "unsharedfs",
		Name:        "unsharedfs",
		AllowOther:  opts.allowOther,
		SingleThreaded: false,
	}

	server, err := fuse.NewServer(raw, mountPoint, mountOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unsharedfs: mount failed: %s\n", err)
		return 1
	}

	log.Noticef("mounted %s on %s (mode=%s, fallback=%q)", backingRoot, mountPoint, cfg.Mode, cfg.FallbackSubdir)
	server.Serve()
	return 0
}

func printUsage(w *os.File, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: unsharedfs [options] BASEDIR [MOUNTPOINT]")
	fmt.Fprintln(w)
	flags.SetOutput(w)
	flags.PrintDefaults()
}

type mountOptions struct {
	raw        []string
	allowOther bool
}

// splitMountOptions pulls every "-o key[=val][,...]" token out of args
// (pflag has no notion of FUSE's comma-joined -o value) and returns the
// remaining arguments for pflag to parse normally. allow_other is recorded
// but never stripped out of the forwarded option list: §4.2 requires it
// observed, not consumed.
func splitMountOptions(args []string) (mountOptions, []string, error) {
	var opts mountOptions
	var rest []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var value string
		switch {
		case arg == "-o" || arg == "--fuse-option":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("unsharedfs: %s requires an argument", arg)
			}
			i++
			value = args[i]
		case strings.HasPrefix(arg, "-o="):
			value = arg[len("-o="):]
		case strings.HasPrefix(arg, "--fuse-option="):
			value = arg[len("--fuse-option="):]
		default:
			rest = append(rest, arg)
			continue
		}

		for _, tok := range strings.Split(value, ",") {
			if tok == "" {
				continue
			}
			opts.raw = append(opts.raw, tok)
			name := tok
			if idx := strings.IndexByte(tok, '='); idx >= 0 {
				name = tok[:idx]
			}
			if name == "allow_other" {
				opts.allowOther = true
			}
		}
	}

	return opts, rest, nil
}
