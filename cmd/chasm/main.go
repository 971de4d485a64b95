package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/all-in-one-of/chasm-version-system/internal/app"
	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// newApp reads the config and creates a ChasmApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "checkout", "install").
func newApp(operation string) (*app.ChasmApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	a, err := app.NewChasmApp(cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh ChasmApp and records a failure on the operation.
func withApp(operation string, fn func(a *app.ChasmApp) error) error {
	a, err := newApp(operation)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "chasm",
	Short: "Version control for a shared VFX project tree",
	Long: `chasm versions folders of a shared project tree. Artists check a folder
out into their local working area, edit it, and check it back in as a new
version. Installed artifacts are published to each folder's inst/ slot.

Folder arguments are relative to the project root; working copy arguments are
relative to the local working area.`,
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		projectDir, _ := cmd.Flags().GetString("project-dir")
		projectDir, err = filepath.Abs(projectDir)
		if err != nil {
			return fmt.Errorf("resolving project directory: %w", err)
		}
		localDir, _ := cmd.Flags().GetString("local-dir")
		if localDir == "" {
			localDir = defaults["local_dir"]
		}
		localDir, err = filepath.Abs(localDir)
		if err != nil {
			return fmt.Errorf("resolving local directory: %w", err)
		}
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(projectDir)
		}
		username, _ := cmd.Flags().GetString("user")
		if username == "" {
			username = currentUser()
		}

		cfg := config.NewConfig(name, projectDir, username, localDir, defaults["base_dir"])
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Project:   %s (%s)\n", cfg.ProjectName, cfg.ProjectDir)
		fmt.Printf("User:      %s\n", cfg.Username)
		fmt.Printf("Local Dir: %s\n", cfg.LocalDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Project:      %s\n", cfg.ProjectName)
		fmt.Printf("Project Dir:  %s\n", cfg.ProjectDir)
		fmt.Printf("User:         %s\n", cfg.Username)
		fmt.Printf("Local Dir:    %s\n", cfg.LocalDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Journal:      %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		for _, f := range cfg.Install.Flatteners {
			fmt.Printf("Flattener:    %s %s -> %s\n", f.Name, strings.Join(f.Extensions, ","), strings.Join(f.Command, " "))
		}
		return nil
	},
}

// new command
var newCmd = &cobra.Command{
	Use:   "new PARENT NAME",
	Short: "Create a folder in the project tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		versioned, _ := cmd.Flags().GetBool("versioned")
		kind, _ := cmd.Flags().GetString("kind")
		if kind == "generic" {
			kind = chasm.KindGeneric
		}
		if kind != chasm.KindGeneric {
			if !knownKind(kind) {
				return fmt.Errorf("unknown kind %q (known: %s)", kind, strings.Join(kindNames(), ", "))
			}
			versioned = true
		}

		return withApp("new", func(a *app.ChasmApp) error {
			dir, err := a.NewFolder(args[0], args[1], versioned, kind)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", a.Display(dir))
			return nil
		})
	},
}

// checkout command
var checkoutCmd = &cobra.Command{
	Use:   "checkout FOLDER",
	Short: "Copy the latest version of a folder into the local working area",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, _ := cmd.Flags().GetBool("lock")

		return withApp("checkout", func(a *app.ChasmApp) error {
			wc, err := a.Checkout(cmd.Context(), args[0], lock)
			if err != nil {
				return err
			}
			state := "unlocked"
			if lock {
				state = "locked"
			}
			fmt.Printf("Checked out %s (%s) to %s\n", args[0], state, wc)
			return nil
		})
	},
}

var checkinCmd = &cobra.Command{
	Use:   "checkin WORKING_COPY",
	Short: "Commit a working copy as the next version of its folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("checkin", func(a *app.ChasmApp) error {
			version, err := a.Checkin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Checked in %s as version %d\n", args[0], version)
			return nil
		})
	},
}

var canCheckinCmd = &cobra.Command{
	Use:   "can-checkin WORKING_COPY",
	Short: "Report whether a working copy can be checked in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("can-checkin", func(a *app.ChasmApp) error {
			ok, err := a.CanCheckin(args[0])
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("yes")
			} else {
				fmt.Println("no")
			}
			return nil
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard WORKING_COPY",
	Short: "Delete a working copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		release, _ := cmd.Flags().GetBool("release")

		return withApp("discard", func(a *app.ChasmApp) error {
			if err := a.Discard(cmd.Context(), args[0], release); err != nil {
				return err
			}
			fmt.Printf("Discarded %s\n", args[0])
			return nil
		})
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release WORKING_COPY",
	Short: "Release the lock a working copy holds without checking in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("release", func(a *app.ChasmApp) error {
			if err := a.Release(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Released lock held by %s\n", args[0])
			return nil
		})
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "List working copies in the local working area",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("local", func(a *app.ChasmApp) error {
			copies, err := a.WorkingCopies()
			if err != nil {
				return err
			}
			if len(copies) == 0 {
				fmt.Println("No working copies.")
				return nil
			}
			for _, wc := range copies {
				name := filepath.Base(wc.Path)
				if wc.Record == nil {
					fmt.Printf("%-30s  (not a working copy)\n", name)
					continue
				}
				state := "unlocked"
				if wc.Record.LockedByMe {
					state = "locked"
				}
				fmt.Printf("%-30s  v%-4d  %-8s  %s\n", name, wc.Record.Version, state, a.Display(wc.Record.CheckedOutFrom))
			}
			return nil
		})
	},
}

// install commands
var filesCmd = &cobra.Command{
	Use:   "files FOLDER",
	Short: "List the installable files of a folder's latest version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("files", func(a *app.ChasmApp) error {
			files, err := a.Files(args[0])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f)
			}
			return nil
		})
	},
}

var installCmd = &cobra.Command{
	Use:   "install FOLDER FILE",
	Short: "Publish a file of a folder to its install slot",
	Long: `Publish FILE to the inst/ slot of FOLDER and point latest at it.
A relative FILE is taken from the folder's latest version. Scene files claimed
by a configured flattener are flattened; everything else is copied.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stable, _ := cmd.Flags().GetBool("stable")

		return withApp("install", func(a *app.ChasmApp) error {
			artifact, err := a.Install(cmd.Context(), args[0], args[1], stable)
			if err != nil {
				return err
			}
			fmt.Printf("Installed %s\n", a.Display(artifact))
			return nil
		})
	},
}

// inspection commands
var infoCmd = &cobra.Command{
	Use:   "info FOLDER",
	Short: "Show the versioning state of a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("info", func(a *app.ChasmApp) error {
			info, err := a.Info(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Path:           %s\n", a.Display(info.Path))
			if !info.Versioned {
				fmt.Println("Versioned:      no")
				return nil
			}
			fmt.Println("Versioned:      yes")
			fmt.Printf("Kind:           %s\n", kindLabel(info.Kind))
			fmt.Printf("Latest version: %d\n", info.LatestVersion)
			if info.Locked {
				fmt.Printf("Locked:         yes (%s)\n", info.LockOwner)
			} else {
				fmt.Println("Locked:         no")
			}
			fmt.Printf("Last checkout:  %s by %s\n", chasm.FormatTimestamp(info.LastCheckoutTime), info.LastCheckoutUser)
			fmt.Printf("Last checkin:   %s by %s\n", chasm.FormatTimestamp(info.LastCheckinTime), info.LastCheckinUser)
			fmt.Printf("Latest:         %s\n", artifactLabel(a, info.Latest))
			fmt.Printf("Stable:         %s\n", artifactLabel(a, info.Stable))
			return nil
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check FOLDER",
	Short: "Verify the on-disk layout of a versioned folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("check", func(a *app.ChasmApp) error {
			if err := a.Check(args[0]); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [DIR]",
	Short: "List the folders of the project tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}

		return withApp("tree", func(a *app.ChasmApp) error {
			nodes, err := a.Tree(dir)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				indent := strings.Repeat("  ", n.Depth)
				name := filepath.Base(n.Path)
				if !n.Info.Versioned {
					fmt.Printf("%s%s/\n", indent, name)
					continue
				}
				line := fmt.Sprintf("%s%s  v%d %s", indent, name, n.Info.LatestVersion, kindLabel(n.Info.Kind))
				if n.Info.Locked {
					line += " locked by " + n.Info.LockOwner
				}
				if n.Info.Installed {
					line += " installed"
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions FOLDER",
	Short: "List the versions stored in a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("versions", func(a *app.ChasmApp) error {
			versions, err := a.Versions(args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Println(v)
			}
			return nil
		})
	},
}

// structure commands
var renameCmd = &cobra.Command{
	Use:   "rename FOLDER NEW_NAME",
	Short: "Rename a folder in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("rename", func(a *app.ChasmApp) error {
			dest, err := a.Rename(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", args[0], a.Display(dest))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm FOLDER",
	Short: "Remove a folder and everything below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		return withApp("remove", func(a *app.ChasmApp) error {
			if err := a.CanRemove(args[0]); err != nil {
				return err
			}
			if !force {
				ok, err := confirm(fmt.Sprintf("Remove %s and everything below it?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := a.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View your recent chasm operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp("history", func(a *app.ChasmApp) error {
			entries, err := a.History(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			for _, e := range entries {
				version := ""
				if e.Version >= 0 {
					version = fmt.Sprintf("v%d", e.Version)
				}
				fmt.Printf("#%d  %-10s  %s  %-7s  %-5s  %s  %s\n",
					e.ID,
					e.Operation,
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Status,
					version,
					e.Path,
					e.Detail,
				)
			}
			return nil
		})
	},
}

// confirm asks a yes/no question on the terminal. Without a terminal on stdin
// it refuses, so scripts must pass --force.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; use --force to remove without confirmation")
	}
	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func currentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func knownKind(kind string) bool {
	for _, k := range chasm.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func kindNames() []string {
	names := make([]string, 0, len(chasm.Kinds()))
	for _, k := range chasm.Kinds() {
		names = append(names, kindLabel(k))
	}
	return names
}

func kindLabel(kind string) string {
	if kind == chasm.KindGeneric {
		return "generic"
	}
	return kind
}

func artifactLabel(a *app.ChasmApp, path string) string {
	if path == "" {
		return "(none)"
	}
	return a.Display(path)
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("name", "", "Project name (default: base name of the project directory)")
	configInitCmd.Flags().String("project-dir", "", "Root of the shared project tree")
	configInitCmd.Flags().String("user", "", "Username recorded on checkouts (default: $USER)")
	configInitCmd.Flags().String("local-dir", "", "Local working area for checkouts (default: ~/chasm-work)")
	configInitCmd.MarkFlagRequired("project-dir")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().Bool("versioned", false, "Create a versioned folder")
	newCmd.Flags().String("kind", "", "Content kind of the versioned folder (implies --versioned)")
	rootCmd.AddCommand(checkoutCmd)
	checkoutCmd.Flags().BoolP("lock", "l", false, "Lock the folder until checkin or release")
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(canCheckinCmd)
	rootCmd.AddCommand(discardCmd)
	discardCmd.Flags().Bool("release", false, "Release the lock the working copy holds first")
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolP("stable", "s", false, "Also point stable at the new artifact")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolP("force", "f", false, "Remove without asking")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
