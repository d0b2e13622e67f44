package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	// CrashLogDir is the directory for crash logs relative to the data directory.
	CrashLogDir = "crash_logs"

	// MaxCrashLogs is the maximum number of crash logs to keep.
	MaxCrashLogs = 10
)

// CrashContext stores what was going on when a panic hit.
type CrashContext struct {
	mu        sync.RWMutex
	fs        afero.Fs
	lastInput string
	planID    string
	command   string
	version   string
	basePath  string
}

var globalContext = newCrashContext()

func newCrashContext() *CrashContext {
	return &CrashContext{fs: afero.NewOsFs()}
}

func update(fn func(c *CrashContext)) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	fn(globalContext)
}

// SetFs replaces the filesystem crash logs are written to.
func SetFs(fs afero.Fs) { update(func(c *CrashContext) { c.fs = fs }) }

// SetBasePath sets the data directory crash logs go under.
func SetBasePath(path string) { update(func(c *CrashContext) { c.basePath = path }) }

// SetVersion sets the application version for crash logs.
func SetVersion(version string) { update(func(c *CrashContext) { c.version = version }) }

// SetCommand sets the command being executed.
func SetCommand(cmd string) { update(func(c *CrashContext) { c.command = cmd }) }

// SetPlan records the plan the command operates on.
func SetPlan(planID string) { update(func(c *CrashContext) { c.planID = planID }) }

// SetLastInput records the last document or argument the user supplied,
// trimmed to 500 bytes.
func SetLastInput(input string) {
	input = truncateForLog(strings.TrimSpace(input), 500)
	update(func(c *CrashContext) { c.lastInput = input })
}

func truncateForLog(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "... [truncated]"
}

// CrashLog represents a crash log entry.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Command    string    `json:"command"`
	PlanID     string    `json:"plan_id,omitempty"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	LastInput  string    `json:"last_input,omitempty"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic recovers a panic, writes a crash log and exits with status 1.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	if r := recover(); r != nil {
		path, err := Recover(r, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n[CRASH] Failed to write crash log: %v\n", err)
			fmt.Fprintf(os.Stderr, "[CRASH] Panic: %v\n%s\n", r, debug.Stack())
		} else {
			fmt.Fprintf(os.Stderr, "\nplantrack hit an unexpected error.\nA crash log has been saved to:\n  %s\n\n", path)
		}
		os.Exit(1)
	}
}

// Recover writes the crash log for a recovered panic value and returns its
// path. Warnings go to w.
func Recover(panicValue any, w io.Writer) (string, error) {
	log := createCrashLog(panicValue)
	return writeCrashLog(log, w)
}

func createCrashLog(panicValue any) CrashLog {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	return CrashLog{
		Timestamp:  time.Now(),
		Version:    globalContext.version,
		Command:    globalContext.command,
		PlanID:     globalContext.planID,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		LastInput:  globalContext.lastInput,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

func writeCrashLog(log CrashLog, w io.Writer) (string, error) {
	fs, dir := crashFs(), getCrashLogDir()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}
	if err := cleanOldCrashLogs(fs, dir); err != nil {
		fmt.Fprintf(w, "[WARN] Failed to clean old crash logs: %v\n", err)
	}

	path := getCrashLogPath(log.Timestamp)
	if err := afero.WriteFile(fs, path, []byte(formatCrashLog(log)), 0o644); err != nil {
		return "", fmt.Errorf("write crash log: %w", err)
	}
	return path, nil
}

func crashFs() afero.Fs {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()
	return globalContext.fs
}

func getCrashLogDir() string {
	globalContext.mu.RLock()
	basePath := globalContext.basePath
	globalContext.mu.RUnlock()

	if basePath == "" {
		basePath = ".plantrack"
	}
	return filepath.Join(basePath, CrashLogDir)
}

func getCrashLogPath(t time.Time) string {
	filename := fmt.Sprintf("crash_%s.log", t.Format("20060102_150405.000"))
	return filepath.Join(getCrashLogDir(), filename)
}

func formatCrashLog(log CrashLog) string {
	var sb strings.Builder
	rule := strings.Repeat("=", 80) + "\n"
	section := func(title, body string) {
		sb.WriteString("\n" + strings.Repeat("-", 80) + "\n")
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(rule + "PLANTRACK CRASH LOG\n" + rule + "\n")
	fmt.Fprintf(&sb, "Timestamp: %s\n", log.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Version:   %s\n", log.Version)
	fmt.Fprintf(&sb, "Command:   %s\n", log.Command)
	if log.PlanID != "" {
		fmt.Fprintf(&sb, "Plan:      %s\n", log.PlanID)
	}
	fmt.Fprintf(&sb, "Go:        %s\n", log.GoVersion)
	fmt.Fprintf(&sb, "OS/Arch:   %s/%s\n", log.OS, log.Arch)

	section("PANIC VALUE", log.PanicValue)
	section("STACK TRACE", log.StackTrace)
	if log.LastInput != "" {
		section("LAST USER INPUT", log.LastInput)
	}

	sb.WriteString("\n" + rule + "END OF CRASH LOG\n" + rule)
	return sb.String()
}

func isCrashLog(name string) bool {
	return strings.HasPrefix(name, "crash_") && strings.HasSuffix(name, ".log")
}

// cleanOldCrashLogs keeps the newest MaxCrashLogs-1 logs so the one about
// to be written stays within the limit.
func cleanOldCrashLogs(fs afero.Fs, dir string) error {
	logs, err := crashLogNames(fs, dir)
	if err != nil || len(logs) < MaxCrashLogs {
		return err
	}
	for _, name := range logs[:len(logs)-MaxCrashLogs+1] {
		if err := fs.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove old crash log %s: %w", name, err)
		}
	}
	return nil
}

// crashLogNames returns crash log file names, oldest first.
func crashLogNames(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isCrashLog(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListCrashLogs returns the paths of all crash logs, oldest first.
func ListCrashLogs() ([]string, error) {
	dir := getCrashLogDir()
	names, err := crashLogNames(crashFs(), dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// ReadCrashLog reads a crash log file.
func ReadCrashLog(path string) (string, error) {
	content, err := afero.ReadFile(crashFs(), path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
