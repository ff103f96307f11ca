// Package workdir manages the per-run working directories goal executions
// write their inputs, outputs and logs into.
package workdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/oklog/ulid/v2"
)

const (
	InputsDir  = "inputs"
	OutputsDir = "outputs"
	LogsDir    = "logs"
	TempDir    = "temp"

	FailureLogName = "failure.log"
)

var subdirs = []string{InputsDir, OutputsDir, LogsDir, TempDir}

// ArtifactPatterns are the files reported as run artifacts.
var ArtifactPatterns = []string{"**/*.json", "**/*.log", "**/*.txt"}

// Manager creates run directories under a common root.
type Manager struct {
	root string
	now  func() time.Time
}

func NewManager(root string) *Manager {
	return &Manager{root: root, now: time.Now}
}

// WithClock overrides the clock used to name directories.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now

	return m
}

func (m *Manager) Root() string {
	return m.root
}

// validateGoalID rejects ids that would escape the root.
func validateGoalID(goalID string) error {
	if goalID == "" {
		return errors.New("goal ID cannot be empty")
	}

	if strings.Contains(goalID, "..") || strings.ContainsAny(goalID, `/\`) {
		return errors.New("goal ID contains invalid characters")
	}

	return nil
}

// Create makes a fresh directory owned exclusively by one run.
func (m *Manager) Create(goalID string) (string, error) {
	if err := validateGoalID(goalID); err != nil {
		return "", fmt.Errorf("invalid goal ID %q: %w", goalID, err)
	}

	if err := os.MkdirAll(m.root, 0750); err != nil {
		return "", fmt.Errorf("failed to create work root %s: %w", m.root, err)
	}

	now := m.now().UTC()
	name := fmt.Sprintf("%s_%s_%s", goalID, now.Format("20060102_150405"), ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()))
	dir := filepath.Join(m.root, name)

	// Mkdir, not MkdirAll: an existing directory must never be shared.
	if err := os.Mkdir(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create work directory %s: %w", dir, err)
	}

	for _, sub := range subdirs {
		if err := os.Mkdir(filepath.Join(dir, sub), 0750); err != nil {
			return "", fmt.Errorf("failed to create %s in work directory: %w", sub, err)
		}
	}

	return dir, nil
}

// List returns the run directories of a goal, newest first.
func (m *Manager) List(goalID string) ([]string, error) {
	if err := validateGoalID(goalID); err != nil {
		return nil, fmt.Errorf("invalid goal ID %q: %w", goalID, err)
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to read work root: %w", err)
	}

	var dirs []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if id, ok := ParseName(entry.Name()); ok && id == goalID {
			dirs = append(dirs, filepath.Join(m.root, entry.Name()))
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	return dirs, nil
}

// ParseName splits a run directory name into its goal id. It reports false for
// names not shaped <goalId>_<YYYYMMDD>_<HHMMSS>_<ULID>.
func ParseName(name string) (string, bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return "", false
	}

	n := len(parts)
	if _, err := time.Parse("20060102_150405", parts[n-3]+"_"+parts[n-2]); err != nil {
		return "", false
	}

	if _, err := ulid.ParseStrict(parts[n-1]); err != nil {
		return "", false
	}

	goalID := strings.Join(parts[:n-3], "_")

	return goalID, goalID != ""
}

// Artifacts lists the files a run produced, relative to its directory.
func Artifacts(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)

	var files []string

	for _, pattern := range ArtifactPatterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts in %s: %w", dir, err)
		}

		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}

	sort.Strings(files)

	return files, nil
}

// WriteFailureLog records why a run aborted.
func WriteFailureLog(dir, stage string, cause error, results []models.StageResult, at time.Time) error {
	var b strings.Builder

	fmt.Fprintf(&b, "timestamp: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "failed_stage: %s\n", stage)
	fmt.Fprintf(&b, "error: %v\n", cause)
	b.WriteString("stage_results:\n")

	if results == nil {
		results = []models.StageResult{}
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stage results: %w", err)
	}

	b.Write(data)
	b.WriteString("\n")

	path := filepath.Join(dir, FailureLogName)
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// WriteJSON writes v as indented JSON to name inside dir.
func WriteJSON(dir, name string, v any) (string, int64, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, int64(len(data)), nil
}
