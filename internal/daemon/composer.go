package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/utils"
	"github.com/openmined/dotsync/internal/vcs"
)

const maxPreviewPaths = 5

// CommitCategory groups a changed path by its first segment below the root.
type CommitCategory string

const (
	CategoryCommands CommitCategory = "commands"
	CategoryAgents   CommitCategory = "agents"
	CategorySkills   CommitCategory = "skills"
	CategoryRules    CommitCategory = "rules"
	CategoryOther    CommitCategory = "other"
)

// title order
var categoryOrder = []struct {
	category CommitCategory
	label    string
}{
	{CategoryCommands, "command(s)"},
	{CategoryAgents, "agent(s)"},
	{CategorySkills, "skill(s)"},
	{CategoryRules, "rule(s)"},
	{CategoryOther, "other file(s)"},
}

// Classify maps a root relative, slash separated path to its category.
func Classify(rel string) CommitCategory {
	for _, c := range []CommitCategory{CategoryCommands, CategoryAgents, CategorySkills, CategoryRules} {
		if strings.HasPrefix(rel, string(c)+"/") {
			return c
		}
	}
	return CategoryOther
}

// ComposeMessage builds the commit message for a batch of absolute paths.
func ComposeMessage(root string, paths []string) string {
	rels := make([]string, 0, len(paths))
	counts := make(map[CommitCategory]int)
	for _, p := range paths {
		rel, ok := utils.RelPath(root, p)
		if !ok {
			rel = p
		}
		rels = append(rels, rel)
		counts[Classify(rel)]++
	}

	parts := make([]string, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		if n := counts[c.category]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c.label))
		}
	}

	var sb strings.Builder
	sb.WriteString("sync: update ")
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString("\n\n")

	for i, rel := range rels {
		if i == maxPreviewPaths {
			fmt.Fprintf(&sb, "...and %d more\n", len(rels)-maxPreviewPaths)
			break
		}
		sb.WriteString("- ")
		sb.WriteString(rel)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// CommitResult describes what a Commit call did.
type CommitResult struct {
	Committed bool
	Title     string
	Paths     int
}

// Composer turns a quiet batch into a single commit.
type Composer struct {
	root     string
	vcs      vcs.Client
	state    *StateStore
	journal  *Journal
	guard    *sync.Mutex
	onCommit func()
	now      func() time.Time
}

// NewComposer creates a composer. guard serializes working tree access with
// the push scheduler. onCommit runs after every successful commit.
func NewComposer(root string, client vcs.Client, state *StateStore, journal *Journal, guard *sync.Mutex, onCommit func()) *Composer {
	if guard == nil {
		guard = &sync.Mutex{}
	}
	return &Composer{
		root:     root,
		vcs:      client,
		state:    state,
		journal:  journal,
		guard:    guard,
		onCommit: onCommit,
		now:      time.Now,
	}
}

// Flush commits a batch, suitable as an Aggregator FlushFunc. Errors are logged.
func (c *Composer) Flush(ctx context.Context, paths []string) {
	if _, err := c.Commit(ctx, paths); err != nil {
		slog.Error("commit failed", "paths", len(paths), "error", err)
	}
}

// Commit stages everything in the working tree and commits it with a message
// describing paths. A clean tree is not an error and produces no commit.
func (c *Composer) Commit(ctx context.Context, paths []string) (CommitResult, error) {
	result, err := c.commit(ctx, paths)
	if err == nil && result.Committed && c.onCommit != nil {
		c.onCommit()
	}
	return result, err
}

func (c *Composer) commit(ctx context.Context, paths []string) (CommitResult, error) {
	c.guard.Lock()
	defer c.guard.Unlock()

	result := CommitResult{Paths: len(paths)}

	status, err := c.vcs.Status(ctx)
	if err != nil {
		c.journal.Record(JournalCommit, "", err)
		return result, fmt.Errorf("status: %w", err)
	}
	if status.Clean() {
		slog.Info("commit skipped, nothing to commit", "paths", len(paths))
		c.journal.Record(JournalCommitSkipped, fmt.Sprintf("%d path(s), clean tree", len(paths)), nil)
		return result, nil
	}

	message := ComposeMessage(c.root, paths)
	title, _, _ := strings.Cut(message, "\n")
	result.Title = title

	if err := c.vcs.AddAll(ctx); err != nil {
		c.journal.Record(JournalCommit, title, err)
		return result, fmt.Errorf("stage changes: %w", err)
	}
	if err := c.vcs.Commit(ctx, message); err != nil {
		c.journal.Record(JournalCommit, title, err)
		return result, fmt.Errorf("commit: %w", err)
	}
	result.Committed = true

	now := c.now().UTC()
	if _, err := c.state.Update(func(st *SyncState) {
		st.LastCommitAt = &now
		st.PendingPush = true
	}); err != nil {
		slog.Error("sync state save failed", "path", c.state.Path(), "error", err)
	}

	c.journal.Record(JournalCommit, title, nil)
	slog.Info("committed", "title", title, "paths", len(paths), "modified", len(status.Modified), "untracked", len(status.Untracked))
	return result, nil
}
