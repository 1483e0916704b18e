package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/search"
)

// Search modes shared by the search, similar and phonetic commands.
const (
	modeFuzzy      = "fuzzy"
	modeSimilarity = "similarity"
	modePhonetic   = "phonetic"
)

// searchOptions holds the flags of the search commands.
type searchOptions struct {
	limit         int
	resourceType  string
	fuzziness     int
	minSimilarity float64
	jsonOutput    bool
}

var (
	searchOpts   searchOptions
	similarOpts  searchOptions
	phoneticOpts searchOptions
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search over indexed cells",
	Long: `Search ranks cells by exact phrase, prefix, full-text and typo-tolerant
matches of the query.

Examples:
  codex search "in the begining"
  codex search "Jesus wept" --type source_text --limit 5
  codex search "lazarus" --fuzziness 1 --json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, modeFuzzy, args, searchOpts)
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "Find cells whose text is similar to the given text",
	Long: `Similar ranks cells by string similarity to the text, keeping those at or
above --min-similarity.

Examples:
  codex similar "the light shines in the darkness" --min-similarity 0.7
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, modeSimilarity, args, similarOpts)
	},
}

var phoneticCmd = &cobra.Command{
	Use:   "phonetic <words>",
	Short: "Find cells containing words that sound like the query",
	Long: `Phonetic matches every query word by its sound code, which finds names
and words spelled differently across translations.

Examples:
  codex phonetic "Yeshua"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, modePhonetic, args, phoneticOpts)
	},
}

func init() {
	for _, c := range []struct {
		cmd  *cobra.Command
		opts *searchOptions
	}{{searchCmd, &searchOpts}, {similarCmd, &similarOpts}, {phoneticCmd, &phoneticOpts}} {
		rootCmd.AddCommand(c.cmd)
		c.cmd.Flags().IntVarP(&c.opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
		c.cmd.Flags().StringVarP(&c.opts.resourceType, "type", "t", "", "Restrict to one resource type")
		c.cmd.Flags().BoolVar(&c.opts.jsonOutput, "json", false, "Output as JSON")
	}
	searchCmd.Flags().IntVar(&searchOpts.fuzziness, "fuzziness", 0, "Maximum edit distance (default from config)")
	similarCmd.Flags().Float64Var(&similarOpts.minSimilarity, "min-similarity", search.DefaultMinSimilarity, "Minimum similarity in [0,1]")
}

func runSearch(cmd *cobra.Command, mode string, args []string, opts searchOptions) error {
	ctx, cancel := signalContext()
	defer cancel()

	return executeSearch(ctx, workDir, mode, strings.Join(args, " "), opts, cmd.OutOrStdout())
}

// executeSearch runs one search against the workspace at root and prints the
// results.
func executeSearch(ctx context.Context, root, mode, query string, opts searchOptions, out io.Writer) error {
	sopts := search.Options{Limit: opts.limit, Fuzziness: opts.fuzziness}
	if opts.resourceType != "" {
		rt, err := model.ParseResourceType(opts.resourceType)
		if err != nil {
			return err
		}
		sopts.ResourceType = rt
	}

	ws, err := openWorkspace(root, workspaceOptions{Verbose: verbose})
	if err != nil {
		return err
	}
	defer ws.Close()

	searcher, err := ws.Searcher()
	if err != nil {
		return err
	}
	defer searcher.Close()

	var results []search.Result
	switch mode {
	case modeSimilarity:
		results, err = searcher.SimilaritySearch(ctx, query, sopts, opts.minSimilarity)
	case modePhonetic:
		results, err = searcher.PhoneticSearch(ctx, query, sopts)
	default:
		results, err = searcher.Search(ctx, query, sopts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.jsonOutput {
		if results == nil {
			results = []search.Result{}
		}
		return writeJSON(out, results)
	}
	printResults(out, results)
	return nil
}

func printResults(out io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	for i, r := range results {
		fmt.Fprintf(out, "%2d. %-12s %-16s %6.3f  %-7s %s\n",
			i+1, r.ID, r.ResourceType, r.Score, r.MatchType, truncate(r.Content, 80))
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(out, string(jsonBytes))
	return nil
}
