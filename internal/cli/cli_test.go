package cli

// Test Plan for CLI Commands:
// - index builds cells, index documents and the snapshot for a workspace
// - a second writer is refused while the workspace lock is held
// - search, similar and phonetic find indexed cells; --type filters and bad types fail
// - branch covers a two-clause passage with pairs from both clauses
// - stats reports counts as text and JSON
// - ledger status lists batches; ledger cleanup keeps pending changes
// - clean removes the snapshot alone or the whole index
// - watch performs the initial index and applies file edits until cancelled
// - formatNumber / formatTimeSince / truncate formatting

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-codex/internal/indexer"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/search"
	"github.com/mvp-joe/project-codex/internal/snapshot"
)

const testBible = `GEN 1:1 In the beginning God created the heavens and the earth.
GEN 1:2 And the earth was without form, and void.
JHN 11:35 Jesus wept.
`

const testCodex = `{"cells":[
  {"kind":2,"value":"GEN 1:1 At the start God made the sky and the land.","metadata":{}},
  {"kind":2,"value":"JHN 11:35 Jesus shed tears.","metadata":{}}
]}`

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// setupWorkspace creates a corpus with one source and one target file and a
// config that keeps logging quiet.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTestFile(t, root, "sources/eng.bible", testBible)
	writeTestFile(t, root, "files/target/GEN.codex", testCodex)
	writeTestFile(t, root, ".codex/config.yml", `
logging:
  level: error
indexing:
  watch_debounce: 50ms
  poll_interval: 50ms
`)
	return root
}

func indexWorkspace(t *testing.T, root string) *indexer.ReindexStats {
	t.Helper()
	var out bytes.Buffer
	stats, err := executeIndex(context.Background(), root, &out, true)
	require.NoError(t, err)
	return stats
}

func TestExecuteIndex(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	stats := indexWorkspace(t, root)

	assert.Equal(t, 1, stats.SourceFiles)
	assert.Equal(t, 1, stats.TargetFiles)
	assert.Equal(t, 3, stats.SourceCells)
	assert.Equal(t, 2, stats.TargetCells)
	assert.Equal(t, 5, stats.SnapshotDocs)

	assert.FileExists(t, filepath.Join(root, ".codex", "index.db"))
	assert.DirExists(t, snapshot.Path(filepath.Join(root, ".codex")))

	// Reindexing is repeatable and replaces rather than appends.
	stats = indexWorkspace(t, root)
	assert.Equal(t, 3, stats.SourceCells)
}

func TestExecuteIndex_ProgressOutput(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	var out bytes.Buffer
	_, err := executeIndex(context.Background(), root, &out, false)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Processing 1 source files and 1 target files")
	assert.Contains(t, out.String(), "Indexing complete: 5 cells")
}

func TestOpenWorkspace_WriterLock(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	ws, err := openWorkspace(root, workspaceOptions{Writer: true})
	require.NoError(t, err)

	_, err = executeIndex(context.Background(), root, &bytes.Buffer{}, true)
	assert.ErrorIs(t, err, ErrWorkspaceLocked)

	// Readers still work, without the snapshot.
	reader, err := openWorkspace(root, workspaceOptions{})
	require.NoError(t, err)
	assert.Nil(t, reader.Snapshot)
	require.NoError(t, reader.Close())

	require.NoError(t, ws.Close())
	indexWorkspace(t, root)
}

func TestExecuteSearch(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	indexWorkspace(t, root)
	ctx := context.Background()

	run := func(mode, query string, opts searchOptions) []search.Result {
		t.Helper()
		opts.jsonOutput = true
		var out bytes.Buffer
		require.NoError(t, executeSearch(ctx, root, mode, query, opts, &out))
		var results []search.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &results))
		return results
	}
	ids := func(results []search.Result) []string {
		var out []string
		for _, r := range results {
			out = append(out, r.ID)
		}
		return out
	}

	t.Run("fuzzy tolerates a typo", func(t *testing.T) {
		results := run(modeFuzzy, "begining", searchOptions{limit: 5})
		require.NotEmpty(t, results)
		assert.Equal(t, "GEN 1:1", results[0].ID)
	})

	t.Run("type filter", func(t *testing.T) {
		results := run(modeFuzzy, "Jesus", searchOptions{limit: 5, resourceType: string(model.ResourceTranslationPair)})
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.Equal(t, model.ResourceTranslationPair, r.ResourceType)
		}
		assert.Contains(t, ids(results), "JHN 11:35")
	})

	t.Run("similar", func(t *testing.T) {
		results := run(modeSimilarity, "Jesus wept", searchOptions{limit: 5, minSimilarity: 0.5})
		require.NotEmpty(t, results)
		assert.Equal(t, "JHN 11:35", results[0].ID)
	})

	t.Run("phonetic", func(t *testing.T) {
		results := run(modePhonetic, "Jeesus", searchOptions{limit: 5})
		assert.Contains(t, ids(results), "JHN 11:35")
	})

	t.Run("no matches as text", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, executeSearch(ctx, root, modeFuzzy, "zzyzx", searchOptions{limit: 5}, &out))
		assert.Contains(t, out.String(), "No matches")
	})

	t.Run("unknown type", func(t *testing.T) {
		err := executeSearch(ctx, root, modeFuzzy, "x", searchOptions{resourceType: "commentary"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestExecuteBranch(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	indexWorkspace(t, root)

	var out bytes.Buffer
	err := executeBranch(context.Background(), root, "in the beginning God created and Jesus wept", 2, nil, false, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "GEN 1:1")
	assert.Contains(t, text, "JHN 11:35")
	assert.Contains(t, text, "coverage")
}

func TestExecuteStats(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	indexWorkspace(t, root)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, executeStats(ctx, root, true, &out))

	var status indexer.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, 5, status.Index.TotalEntries)
	assert.Equal(t, 3, status.Cells[model.SideSource])
	assert.Equal(t, 2, status.Cells[model.SideTarget])
	assert.NotEmpty(t, status.LastReindex)

	out.Reset()
	require.NoError(t, executeStats(ctx, root, false, &out))
	assert.Contains(t, out.String(), "Documents: 5")
	assert.Contains(t, out.String(), "Pending changes: 0")
}

func TestExecuteLedger(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	indexWorkspace(t, root)
	ctx := context.Background()

	ws, err := openWorkspace(root, workspaceOptions{Writer: true})
	require.NoError(t, err)
	_, err = ws.Ledger.RecordChange(ctx, model.ChangeUpdate, model.ResourceZeroDraft, "GEN 1:1", "", map[string]any{"content": "draft"})
	require.NoError(t, err)
	_, err = ws.Pump().Drain(ctx, model.ResourceZeroDraft)
	require.NoError(t, err)
	_, err = ws.Ledger.RecordChange(ctx, model.ChangeUpdate, model.ResourceZeroDraft, "GEN 1:2", "", map[string]any{"content": "draft two"})
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	var out bytes.Buffer
	require.NoError(t, executeLedgerStatus(ctx, root, 10, true, &out))
	var st ledgerStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, 1, st.Pending[model.ResourceZeroDraft])
	require.Len(t, st.Batches, 1)
	assert.Equal(t, string(model.ResourceZeroDraft), st.Batches[0].BatchType)

	// Nothing processed is older than a day; the pending change survives.
	removed, err := executeLedgerCleanup(ctx, root, 1)
	require.NoError(t, err)
	assert.Zero(t, removed)

	out.Reset()
	require.NoError(t, executeLedgerStatus(ctx, root, 10, false, &out))
	assert.Contains(t, out.String(), "Recent batches (1)")
}

func TestExecuteClean(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	dataDir := filepath.Join(root, ".codex")

	var out bytes.Buffer
	require.NoError(t, executeClean(root, false, false, &out))
	assert.Contains(t, out.String(), "No index found")

	indexWorkspace(t, root)

	out.Reset()
	require.NoError(t, executeClean(root, true, false, &out))
	assert.Contains(t, out.String(), "Cleaned search snapshot")
	assert.NoDirExists(t, snapshot.Path(dataDir))
	assert.FileExists(t, filepath.Join(dataDir, "index.db"))

	out.Reset()
	require.NoError(t, executeClean(root, false, false, &out))
	assert.Contains(t, out.String(), "Cleaned index")
	assert.NoFileExists(t, filepath.Join(dataDir, "index.db"))
	assert.FileExists(t, filepath.Join(dataDir, "config.yml"), "config is preserved")

	ws, err := openWorkspace(root, workspaceOptions{Writer: true})
	require.NoError(t, err)
	defer ws.Close()
	assert.ErrorIs(t, executeClean(root, false, true, &bytes.Buffer{}), ErrWorkspaceLocked)
}

func TestExecuteWatch(t *testing.T) {
	t.Parallel()

	root := setupWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- executeWatch(ctx, root, &bytes.Buffer{}, true) }()

	findLazarus := func() bool {
		var out bytes.Buffer
		err := executeSearch(context.Background(), root, modeFuzzy, "Lazarus", searchOptions{limit: 5, jsonOutput: true}, &out)
		return err == nil && strings.Contains(out.String(), "JHN 11:43")
	}

	// Wait for the initial index before editing.
	require.Eventually(t, func() bool {
		var out bytes.Buffer
		if err := executeStats(context.Background(), root, true, &out); err != nil {
			return false
		}
		return strings.Contains(out.String(), `"lastReindex"`)
	}, 10*time.Second, 50*time.Millisecond)

	writeTestFile(t, root, "sources/eng.bible", testBible+"JHN 11:43 Lazarus, come forth.\n")
	require.Eventually(t, findLazarus, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,234", formatNumber(1234))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", formatTimeSince(time.Time{}, now))
	assert.Equal(t, "30s ago", formatTimeSince(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", formatTimeSince(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h 15m ago", formatTimeSince(now.Add(-135*time.Minute), now))
	assert.Equal(t, "3d ago", formatTimeSince(now.Add(-72*time.Hour), now))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
