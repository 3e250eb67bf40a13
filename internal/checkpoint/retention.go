package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	filePrefix = "latwalk-checkpoint-"
	fileSuffix = ".ckpt"
)

// NewRunID returns a fresh identifier for a run.
func NewRunID() string { return uuid.NewString() }

// GeneratePath creates a timestamped checkpoint filename in dir. The first
// eight characters of runID keep names of concurrent runs apart.
func GeneratePath(dir string, now time.Time, runID string) string {
	name := filePrefix + now.UTC().Format("20060102-150405.000")
	if len(runID) >= 8 {
		name += "-" + runID[:8]
	}
	return filepath.Join(dir, name+fileSuffix)
}

// Info holds metadata for retention decisions.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	RunID     string
}

// RetentionPolicy decides which checkpoints to keep.
type RetentionPolicy interface {
	Apply(checkpoints []Info) (keep []Info)
}

// CountPolicy keeps the N most recent checkpoints.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount checkpoints (sorted newest-first).
func (p *CountPolicy) Apply(checkpoints []Info) []Info {
	if len(checkpoints) <= p.MaxCount {
		return checkpoints
	}
	return checkpoints[:p.MaxCount]
}

// AgePolicy keeps checkpoints newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	now    func() time.Time
}

// Apply keeps checkpoints whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(checkpoints []Info) []Info {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, c := range checkpoints {
		if c.CreatedAt.After(cutoff) {
			keep = append(keep, c)
		}
	}
	return keep
}

// CompositePolicy keeps a checkpoint if any sub-policy keeps it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of checkpoints kept by the sub-policies.
func (p *CompositePolicy) Apply(checkpoints []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, c := range policy.Apply(checkpoints) {
			kept[c.Path] = true
		}
	}
	var result []Info
	for _, c := range checkpoints {
		if kept[c.Path] {
			result = append(result, c)
		}
	}
	return result
}

// List scans dir for checkpoint files and returns them newest-first.
// Files whose header cannot be read are listed with the file time.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:      filepath.Join(dir, name),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.CreatedAt = h.CreatedAt
			info.RunID = h.RunID
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return filepath.Base(out[i].Path) > filepath.Base(out[j].Path)
	})
	return out, nil
}

// ApplyRetention deletes checkpoints in dir not kept by the policy.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool)
	for _, c := range policy.Apply(all) {
		keep[c.Path] = true
	}
	for _, c := range all {
		if keep[c.Path] {
			continue
		}
		if err := os.Remove(c.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
		}
		deleted = append(deleted, c.Path)
	}
	return deleted, nil
}

// ParseDuration parses durations like "36h", "30d" or "2w".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", s[len(s)-1:], s)
	}
}
