package daemon

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/dotsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	ignoreFileName  = ".dotsyncignore"
	ignoreCacheSize = 4096
)

// paths the assistant writes constantly that are not worth versioning
var defaultIgnoreLines = []string{
	// runtime data
	"node_modules/",
	"cache/",
	"debug/",
	"file-history/",
	"paste-cache/",
	"shell-snapshots/",
	"session-env/",
	"todos/",
	"plans/",
	"tasks/",
	"telemetry/",
	"projects/",
	"contexts/",
	"history.jsonl",
	"stats-cache.json",
	"pause-state.json",
	"security_warnings_state_*",
	// machine local settings
	"settings.json",
	"settings.local.json",
	"changelog-config.json",
	// service logs
	"sync.log",
	"sync.error.log",
	// editors
	"*.swp",
	"*.swx",
	"*~",
}

// IgnoreList decides which paths below root are not worth a commit.
// Paths are matched relative to root.
type IgnoreList struct {
	root  string
	extra []string
	rules []string

	mu     sync.RWMutex
	ignore *gitignore.GitIgnore
	cache  *lru.Cache[string, bool]
}

func NewIgnoreList(root string) *IgnoreList {
	cache, _ := lru.New[string, bool](ignoreCacheSize)
	return &IgnoreList{
		root:   root,
		cache:  cache,
		ignore: gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// AddPaths ignores specific files, typically the daemon's own state, journal
// and log files when they live inside root. Paths outside root need no rule.
func (s *IgnoreList) AddPaths(paths ...string) {
	for _, p := range paths {
		rel, ok := utils.RelPath(s.root, p)
		if !ok || rel == "." {
			continue
		}
		s.extra = append(s.extra, "/"+rel)
	}
}

// AddRules appends gitignore style lines, e.g. a self managed subtree.
func (s *IgnoreList) AddRules(lines ...string) {
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			s.extra = append(s.extra, line)
		}
	}
}

// Load compiles the default rules, the added rules and the ignore file in
// root. Cached decisions are discarded.
func (s *IgnoreList) Load() {
	lines := make([]string, 0, len(defaultIgnoreLines)+len(s.extra))
	lines = append(lines, defaultIgnoreLines...)
	lines = append(lines, s.extra...)

	ignorePath := filepath.Join(s.root, ignoreFileName)
	if utils.FileExists(ignorePath) {
		userLines, err := readIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("ignore file unreadable", "path", ignorePath, "error", err)
		} else {
			slog.Info("ignore file loaded", "path", ignorePath, "rules", len(userLines))
		}
		lines = append(lines, userLines...)
	}

	compiled := gitignore.CompileIgnoreLines(lines...)

	s.mu.Lock()
	s.rules = lines
	s.ignore = compiled
	s.cache.Purge()
	s.mu.Unlock()
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// Rules returns the compiled rule lines.
func (s *IgnoreList) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rules...)
}

// ShouldIgnore reports whether the absolute path is ignored.
// The root is never ignored; anything outside root always is.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	rel, ok := utils.RelPath(s.root, path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}

	if ignored, hit := s.cache.Get(rel); hit {
		return ignored
	}

	s.mu.RLock()
	ignored := hiddenPath(rel) || s.ignore.MatchesPath(rel) || s.ignore.MatchesPath(rel+"/")
	s.mu.RUnlock()

	s.cache.Add(rel, ignored)
	return ignored
}

// hiddenPath reports whether the first segment of rel starts with a dot.
// This covers .git and the ignore file itself.
func hiddenPath(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	return strings.HasPrefix(first, ".")
}
