package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-git/v5"
	"github.com/mattn/go-zglob"
	"github.com/mholt/archiver"
	"github.com/otiai10/copy"
	"github.com/urfave/cli/v2"
	giturls "github.com/whilp/git-urls"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/logging"
)

// SuiteCommand manages the test suites imported under $VLTEST_HOME.
var SuiteCommand = cli.Command{
	Name:  "suite",
	Usage: "manage the test suites known to the daemon",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:  "import",
			Usage: "import a suite from a local directory, an archive, or a git repository into $VLTEST_HOME",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "from",
					Usage:    "the source `URL` of the suite to be imported; a path, an archive, or a Git remote",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  "git",
					Usage: "import from a git repository",
				},
				&cli.StringFlag{
					Name:        "name",
					Usage:       "override the `NAME` of the suite directory",
					DefaultText: "automatic",
				},
			},
			Action: suiteImportCommand,
		},
		&cli.Command{
			Name:  "rm",
			Usage: "remove a suite directory from $VLTEST_HOME",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "yes",
					Usage: "confirm removal (without this, the command does nothing)",
				},
				&cli.StringFlag{
					Name:     "suite",
					Aliases:  []string{"s"},
					Usage:    "name of the suite to remove",
					Required: true,
				},
			},
			Action: suiteRmCommand,
		},
		&cli.Command{
			Name:   "list",
			Usage:  "enumerate all suites or test cases known to the client",
			Action: suiteListCommand,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "testcases",
					Usage: "display test cases",
				},
			},
		},
	},
}

func suiteImportCommand(c *cli.Context) error {
	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}

	from := c.String("from")

	parsed, err := giturls.Parse(from)
	if err != nil {
		return err
	}

	// Determine the destination, either from flag or intuited from the
	// source.
	baseDest := c.String("name")
	if baseDest == "" {
		baseDest = filepath.Base(parsed.Path)
		baseDest = strings.TrimSuffix(baseDest, ".git")
		baseDest = strings.TrimSuffix(baseDest, filepath.Ext(baseDest))
	}
	dstPath := filepath.Join(cfg.Dirs().Suites(), baseDest)

	if _, err := os.Stat(dstPath); !os.IsNotExist(err) {
		logging.S().Warnw("destination dir already exists", "path", dstPath)
		return nil
	}

	var importer func(dst, src string) error

	switch {
	case c.Bool("git"):
		importer = cloneSuite
	case isArchive(from):
		importer = unpackSuite
	default:
		// A plain local directory. Strip the file:// scheme if present.
		switch parsed.Scheme {
		case "file":
			from = parsed.Path
		case "":
			// this is what we expect without file://; do nothing
		default:
			return fmt.Errorf("unknown scheme %s for local files. did you forget to pass --git?", parsed.Scheme)
		}
		importer = copySuite
	}

	if err := importer(dstPath, from); err != nil {
		return err
	}

	// An import is only useful if the result carries a manifest.
	if _, err := api.LoadManifest(dstPath); err != nil {
		logging.S().Warnw("imported directory does not hold a valid suite manifest", "path", dstPath, "err", err)
	}

	fmt.Println("imported suites:")
	return printSuites(cfg, dstPath, true)
}

func copySuite(dst, src string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if !isDirectory(abs) {
		return fmt.Errorf("not a directory: %s", abs)
	}
	if err := copy.Copy(abs, dst); err != nil {
		return err
	}
	fmt.Printf("copied suite %s -> %s\n", src, dst)
	return nil
}

func unpackSuite(dst, src string) error {
	if err := archiver.Unarchive(src, dst); err != nil {
		return fmt.Errorf("failed to unpack suite archive %s: %w", src, err)
	}
	fmt.Printf("unpacked suite %s -> %s\n", src, dst)
	return nil
}

func cloneSuite(dst, src string) error {
	cloneOpts := git.CloneOptions{
		URL:      src,
		Progress: os.Stderr,
	}

	if _, err := git.PlainClone(dst, false, &cloneOpts); err != nil {
		msg := `could not clone %s.
please double-check the git source is correct.
1. the remote repository may not exist.
2. the local directory may not be empty.
3. the permissions over the given transport (ssh, git, https, etc..) may be restricted.
4. if using the SSH transport, double-check your ssh-agent is running with private keys added.
this is the error message I received:

%v
`
		return fmt.Errorf(msg, cloneOpts.URL, err)
	}
	fmt.Printf("cloned suite %s -> %s\n", src, dst)
	return nil
}

func isArchive(path string) bool {
	for _, ext := range []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".rar"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func suiteRmCommand(c *cli.Context) error {
	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}

	if !c.Bool("yes") {
		fmt.Println("really delete? pass --yes flag to confirm.")
		return nil
	}

	dir := filepath.Join(cfg.Dirs().Suites(), c.String("suite"))
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	fmt.Printf("suite at %s removed.\n", dir)
	return nil
}

func suiteListCommand(c *cli.Context) error {
	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}
	return printSuites(cfg, cfg.Dirs().Suites(), c.Bool("testcases"))
}

func printSuites(cfg *config.EnvConfig, rootDir string, testcases bool) error {
	manifests, err := zglob.GlobFollowSymlinks(filepath.Join(rootDir, "**", api.ManifestFilename))
	if err != nil {
		return fmt.Errorf("failed to discover test suites under %s: %w", rootDir, err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 1, 1, ' ', 0)
	defer tw.Flush()

	for _, file := range manifests {
		dir := filepath.Dir(file)

		suite, err := filepath.Rel(cfg.Dirs().Suites(), dir)
		if err != nil {
			return fmt.Errorf("failed to relativize suite directory %s: %w", dir, err)
		}

		var manifest api.TestSuiteManifest
		if _, err = toml.DecodeFile(file, &manifest); err != nil {
			return fmt.Errorf("failed to process manifest file at %s: %w", file, err)
		}

		if testcases {
			for _, tc := range manifest.Cases {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", suite, tc.Name)
			}
		} else {
			_, _ = fmt.Fprintln(tw, suite)
		}
	}

	return nil
}
