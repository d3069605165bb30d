package linkpath

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/linkpath"
	"github.com/soundprediction/linkpath/pkg/config"
)

var findCmd = &cobra.Command{
	Use:   "find <from> <to>",
	Short: "Find the shortest link path between two pages",
	Long: `Find the shortest chain of links from one page to another.

With --people-only every intermediate page must be about a person.
With --fixture the search runs against an offline YAML graph.`,
	Args: cobra.ExactArgs(2),
	RunE: runFind,
}

var (
	findMaxDepth   int
	findPeopleOnly bool
	findJSON       bool
	findFixture    string
)

func init() {
	rootCmd.AddCommand(findCmd)

	findCmd.Flags().IntVar(&findMaxDepth, "max-depth", 0, "Maximum number of links to follow (default from config)")
	findCmd.Flags().BoolVar(&findPeopleOnly, "people-only", false, "Only pass through pages about people")
	findCmd.Flags().BoolVar(&findJSON, "json", false, "Print the result as JSON")
	findCmd.Flags().StringVar(&findFixture, "fixture", "", "Search an offline YAML graph instead of the live wiki")
}

func runFind(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("fixture") {
		cfg.Wiki.Fixture = findFixture
	}
	maxDepth := cfg.Search.MaxDepth
	if cmd.Flags().Changed("max-depth") {
		maxDepth = findMaxDepth
	}

	logger := newLogger(cfg)
	client, err := linkpath.NewFromConfig(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize linkpath: %w", err)
	}
	defer client.Close()

	conn, err := client.FindConnection(cmd.Context(), linkpath.Request{
		From:       args[0],
		To:         args[1],
		MaxDepth:   maxDepth,
		PeopleOnly: findPeopleOnly,
	})
	if err != nil {
		return err
	}

	if findJSON {
		return writeJSON(cmd.OutOrStdout(), conn)
	}
	return writeText(cmd.OutOrStdout(), conn)
}

func writeJSON(w io.Writer, conn *linkpath.Connection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(conn)
}

func writeText(w io.Writer, conn *linkpath.Connection) error {
	res := conn.Result
	if res.Found {
		fmt.Fprintf(w, "%s\n", strings.Join(res.Path, " -> "))
		fmt.Fprintf(w, "steps: %d\n", res.Steps())
	} else {
		fmt.Fprintf(w, "no path from %s to %s (%s)\n", conn.From, conn.To, res.Reason)
	}
	s := res.Stats
	_, err := fmt.Fprintf(w, "explored %d pages, %d remote calls, %d cache hits, depth %d, %d failed fetches, %d failed chunks, %s\n",
		s.NodesExplored, s.RemoteCalls, s.CacheHits, s.DepthReached, s.FailedFetches, s.FailedChunks, conn.Elapsed.Round(time.Millisecond))
	return err
}
