package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/config"
	"github.com/magdyamr542/autoreload/execer"
	"github.com/magdyamr542/autoreload/pathset"
	"github.com/magdyamr542/autoreload/reloader"
	"github.com/magdyamr542/autoreload/supervisor"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	before     string
	after      string
	command    string
	patterns   string
	exclude    []string
	extra      []string
	interval   time.Duration
	logLevel   string
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoreload [flags] [-- command [args...]]",
		Short: "Restart a program when its files change",
		Long: `autoreload runs a program and restarts it whenever a watched file changes.

The first process supervises a copy of itself. The copy runs the before
commands, the main command and the after commands, and watches the configured
patterns. On a change it stops the main command and exits with code 3, which
makes the supervisor start it again. Any other exit code ends autoreload with
that code.

Settings are read from reloader.yaml (or --config) and overridden by flags.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path of the YAML config file (default ./reloader.yaml when present)")
	cmd.Flags().StringVar(&f.before, "before", "", "The command to execute before running the main program.")
	cmd.Flags().StringVar(&f.after, "after", "", "The command to execute after running the main program.")
	cmd.Flags().StringVar(&f.command, "cmd", "", "The command to execute the main program. (required unless given after --)")
	cmd.Flags().StringVar(&f.patterns, "patterns", "*.go", "Unix like file patters to watch for changes.\n"+
		"This is a space separated list. E.g: 'src/cmd/*.go src/server/*.go'.\n"+
		"The program will reload after a file of those changes.")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Patterns of files and directories that never trigger a reload. Can be repeated.")
	cmd.Flags().StringSliceVar(&f.extra, "extra", nil, "Additional files or directories to watch. Can be repeated.")
	cmd.Flags().DurationVar(&f.interval, "interval", time.Second, "How often the watched directories are rescanned.")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "One of TRACE, DEBUG, INFO, WARN, ERROR.")
	return cmd
}

func main() {
	if err := newRootCmd(&flags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, f *flags, args []string) error {
	c, err := loadConfig(cmd, f, args)
	if err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "reloader",
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: os.Stderr,
		Color:  hclog.AutoColor,
	})

	options, err := reloaderOptions(c, logger)
	if err != nil {
		return err
	}

	a := newApp(execer.New(c, logger.Named("execer")), logger)
	options = append(options, reloader.WithOnExit(a.Stop))

	reloader.RunWithReloader(a.Main, options...)
	return nil
}

// loadConfig reads the config file, if any, and applies the flags that were set.
func loadConfig(cmd *cobra.Command, f *flags, args []string) (config.Config, error) {
	c := config.Default()

	path := f.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return c, fmt.Errorf("load config: %w", err)
		}
		c = loaded
	}

	set := cmd.Flags()
	if len(args) > 0 {
		c.Command = config.CommandWithDir{Command: strings.Join(args, " "), BaseDir: c.Command.BaseDir}
	} else if set.Changed("cmd") {
		c.Command = config.CommandWithDir{Command: f.command, BaseDir: c.Command.BaseDir}
	}
	if set.Changed("before") {
		c.Before = append(c.Before, config.CommandWithDir{Command: f.before})
	}
	if set.Changed("after") {
		c.After = append(c.After, config.CommandWithDir{Command: f.after})
	}
	if set.Changed("patterns") {
		c.Patterns = config.Fields(f.patterns)
	}
	c.Exclude = append(c.Exclude, f.exclude...)
	c.ExtraFiles = append(c.ExtraFiles, f.extra...)
	if set.Changed("interval") {
		c.Interval = f.interval
	}
	if set.Changed("log-level") {
		c.LogLevel = f.logLevel
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// reloaderOptions translates the config.
func reloaderOptions(c config.Config, logger hclog.Logger) ([]reloader.Option, error) {
	roots, includes, err := watchTargets(c)
	if err != nil {
		return nil, err
	}
	if supervisor.IsChild() {
		for _, include := range includes {
			logger.Debug("Will watch", "pattern", include)
		}
	}

	options := []reloader.Option{
		reloader.WithLogger(logger),
		reloader.WithExtraFiles(roots...),
		reloader.WithIncludePatterns(includes...),
		reloader.WithExcludePatterns(c.Exclude...),
		reloader.WithSearchPath(func() []string { return nil }),
		reloader.WithModules(func() []string { return nil }),
		reloader.WithInterval(c.Interval),
		reloader.WithShutdownTimeout(c.ShutdownTimeout),
	}

	base, lines, err := c.IgnoreLines()
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		options = append(options, reloader.WithIgnoreLines(base, lines...))
	}
	return options, nil
}

// watchTargets returns the directories to watch and the include patterns. Every
// pattern's directory, extra file and search path entry is covered by exactly
// one root, the outermost one, and the include patterns decide which files
// below it count. Extra files are included literally.
func watchTargets(c config.Config) ([]string, []string, error) {
	watchers, err := c.Watchers()
	if err != nil {
		return nil, nil, err
	}

	dirs := make([]string, 0, len(watchers)+len(c.ExtraFiles)+len(c.SearchPath))
	includes := make([]string, 0, len(watchers)+len(c.ExtraFiles))
	for _, w := range watchers {
		dirs = append(dirs, w.Directory)
		includes = append(includes, w.Glob())
	}
	for _, extra := range c.ExtraFiles {
		abs, err := filepath.Abs(extra)
		if err != nil {
			return nil, nil, fmt.Errorf("can't get the absolute path of %s: %w", extra, err)
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dirs = append(dirs, abs)
			continue
		}
		dirs = append(dirs, filepath.Dir(abs))
		includes = append(includes, abs)
	}
	dirs = append(dirs, c.SearchPath...)

	return pathset.Outermost(dirs), includes, nil
}
