package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	traceLogLevel = "TRACE"
	debugLogLevel = "DEBUG"
	infoLogLevel  = "INFO"
	warnLogLevel  = "WARN"
	errorLogLevel = "ERROR"

	// DefaultFile is read when no config file is given and it exists.
	DefaultFile = "reloader.yaml"
)

var logLevels = map[string]struct{}{
	traceLogLevel: {},
	debugLogLevel: {},
	infoLogLevel:  {},
	warnLogLevel:  {},
	errorLogLevel: {},
}

// Config configures the reloader
type Config struct {
	// The commands to execute before the main program
	Before []CommandWithDir `yaml:"before"`
	// The commands to execute after the main program
	After []CommandWithDir `yaml:"after"`
	// The command to execute the main program
	Command CommandWithDir `yaml:"main"`
	// The file patterns to watch
	Patterns []string `yaml:"patterns"`
	// Patterns of files and directories that never trigger a reload
	Exclude []string `yaml:"exclude,omitempty"`
	// Files and directories that are always watched
	ExtraFiles []string `yaml:"extra_files,omitempty"`
	// Directories that are always watched
	SearchPath []string `yaml:"search_path,omitempty"`
	// A file with gitignore syntax
	IgnoreFile string `yaml:"ignore_file,omitempty"`
	// The pause between two rescans of the watched directories
	Interval time.Duration `yaml:"interval,omitempty"`
	// How long stopping programs may take before they are killed
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
	// The log level to use
	LogLevel string `yaml:"loglevel,omitempty"`
}

// CommandWithDir defines a command to be executed inside some directory.
type CommandWithDir struct {
	Command string            `yaml:"command"`
	BaseDir string            `yaml:"directory,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Watcher defines a set of files to be watched.
type Watcher struct {
	// The directory containing the files to be watched.
	Directory string
	// The file pattern. E.g '*.go' for all go files
	Pattern string
}

// Glob returns the absolute pattern of the watcher.
func (w Watcher) Glob() string {
	return filepath.Join(w.Directory, w.Pattern)
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Patterns:        []string{"*.go"},
		Interval:        time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        debugLogLevel,
	}
}

// Load decodes a config file on top of Default without validating it, so that
// callers can still override fields before calling Validate.
func Load(path string) (Config, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	c, err := decode(fileBytes)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func decode(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Validate cleans the configuration and reports the first invalid field.
func (c *Config) Validate() error {
	c.Patterns = cleanList(c.Patterns)
	c.Exclude = cleanList(c.Exclude)
	c.ExtraFiles = cleanList(c.ExtraFiles)
	c.SearchPath = cleanList(c.SearchPath)
	if len(c.Patterns) == 0 {
		c.Patterns = Default().Patterns
	}

	// Validate the commands
	if err := cleanCmd(&c.Command); err != nil {
		return fmt.Errorf("command: %v", err)
	}

	for i := range c.Before {
		if err := cleanCmd(&c.Before[i]); err != nil {
			return fmt.Errorf("before command: %v", err)
		}
	}

	for i := range c.After {
		if err := cleanCmd(&c.After[i]); err != nil {
			return fmt.Errorf("after command: %v", err)
		}
	}

	// Validate log level.
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = debugLogLevel
	} else if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative: %s", c.Interval)
	}
	if c.Interval == 0 {
		c.Interval = Default().Interval
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative: %s", c.ShutdownTimeout)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Default().ShutdownTimeout
	}

	return nil
}

// Watchers splits every pattern into an absolute directory and a file pattern.
// These are all possible patterns:
// server/*.go
// server/client/*.go
// server.go
// *.go
// /abs/path/to/dir/*.go
func (c Config) Watchers() ([]Watcher, error) {
	watchers := make([]Watcher, 0, len(c.Patterns))
	for _, p := range c.Patterns {
		dir, pattern := filepath.Split(p)

		if !filepath.IsAbs(dir) {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return nil, fmt.Errorf("can't get the absolute path from pattern %s: %v", p, err)
			}
			dir = absDir
		}

		watchers = append(watchers, Watcher{Directory: filepath.Clean(dir), Pattern: pattern})
	}
	return watchers, nil
}

// IgnoreLines reads the ignore file. It returns the directory the lines are
// relative to. A missing ignore file yields no lines.
func (c Config) IgnoreLines() (string, []string, error) {
	if c.IgnoreFile == "" {
		return "", nil, nil
	}

	path, err := filepath.Abs(c.IgnoreFile)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("read ignore file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read ignore file: %w", err)
	}
	return filepath.Dir(path), lines, nil
}

func cleanCmd(cmd *CommandWithDir) error {
	cmd.Command = strings.TrimSpace(cmd.Command)
	if cmd.Command == "" {
		return fmt.Errorf("command is empty")
	}

	if cmd.BaseDir == "" {
		cwd, err := filepath.Abs("./")
		if err != nil {
			return fmt.Errorf("can't resolve cwd: %v", err)
		}
		cmd.BaseDir = cwd
	}

	fileinfo, err := os.Stat(cmd.BaseDir)
	if err != nil {
		return fmt.Errorf("can't stat directory %s: %v", cmd.BaseDir, err)
	}

	if !fileinfo.IsDir() {
		return fmt.Errorf("%s isn't a directory", cmd.BaseDir)
	}

	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if len(trimmed) != 0 {
			out = append(out, trimmed)
		}
	}
	return out
}

// Fields splits a space separated list.
func Fields(list string) []string {
	return cleanList(strings.Split(list, " "))
}
