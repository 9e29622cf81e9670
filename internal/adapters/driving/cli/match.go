package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

var (
	matchDataset   string
	matchAlgorithm string
	matchLimit     int
	matchThreshold float64
	matchFuzzy     bool
	matchJSON      bool
)

var matchCmd = &cobra.Command{
	Use:   "match [file]",
	Short: "Score example entities against the index",
	Long: `Reads example entities as JSON from a file, or from standard input when
no file is given, and prints the best matching indexed entities.

The input is either one entity:
  {"schema": "Person", "properties": {"name": ["Vladimir Putin"]}}

or a batch keyed by query name:
  {"queries": {"q1": {"schema": "Company", "properties": {"name": "Rosneft"}}}}`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: usesIndex,
	RunE:        runMatch,
}

func init() {
	matchCmd.Flags().StringVarP(&matchDataset, "dataset", "d", "", "dataset or collection to match against (default all)")
	matchCmd.Flags().StringVarP(&matchAlgorithm, "algorithm", "a", "", "scoring algorithm (default from settings)")
	matchCmd.Flags().IntVarP(&matchLimit, "limit", "n", 0, "results per query (default from settings)")
	matchCmd.Flags().Float64Var(&matchThreshold, "threshold", 0, "match threshold (default from settings)")
	matchCmd.Flags().BoolVar(&matchFuzzy, "fuzzy", false, "widen candidate retrieval")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(matchCmd)
}

// exampleInput is one example entity. Property values may be a string
// or a list of strings.
type exampleInput struct {
	ID         string                  `json:"id"`
	Schema     string                  `json:"schema"`
	Properties map[string]stringOrList `json:"properties"`
}

type stringOrList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *stringOrList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = stringOrList{one}
	return nil
}

// matchOutput carries the item error in JSON output.
type matchOutput struct {
	domain.MatchResult
	Error string `json:"error,omitempty"`
}

type matchInput struct {
	exampleInput
	Queries map[string]exampleInput `json:"queries"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	if matcher == nil {
		return errors.New("matcher not configured")
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	queries, err := parseQueries(data)
	if err != nil {
		return err
	}

	opts := matcher.DefaultOptions()
	opts.Scope = matchDataset
	if matchAlgorithm != "" {
		opts.Algorithm = matchAlgorithm
	}
	if matchLimit > 0 {
		opts.Limit = matchLimit
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = matchThreshold
	}
	opts.Fuzzy = matchFuzzy

	results, err := matcher.MatchBatch(cmd.Context(), queries, opts)
	if err != nil {
		return fmt.Errorf("match failed: %w", err)
	}

	if matchJSON {
		out := make([]matchOutput, len(results))
		for i := range results {
			out[i].MatchResult = results[i]
			if results[i].Err != nil {
				out[i].Error = results[i].Err.Error()
			}
		}
		return printJSON(cmd, out)
	}

	for i := range results {
		res := &results[i]
		cmd.Println(styles.Title.Render(fmt.Sprintf("%s (%s)", res.Key, res.Query.Schema)))
		switch {
		case res.Err != nil:
			cmd.Printf("  %s\n", styles.Error.Render(res.Err.Error()))
		case len(res.Results) == 0:
			cmd.Println("  No matches found.")
		}
		for j := range res.Results {
			scored := &res.Results[j]
			marker := " "
			if scored.Match {
				marker = styles.Success.Render("*")
			}
			cmd.Printf("  %s %.3f  %s (%s) %s\n", marker, scored.Score,
				caption(&scored.Entity), scored.Entity.Schema, scored.Entity.ID)
		}
		cmd.Println()
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

// parseQueries turns a single example or a keyed batch into queries,
// sorted by key.
func parseQueries(data []byte) ([]domain.MatchQuery, error) {
	var in matchInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: cannot parse match input: %v", domain.ErrInvalidInput, err)
	}

	examples := in.Queries
	if len(examples) == 0 {
		if in.Schema == "" {
			return nil, fmt.Errorf("%w: input has no schema and no queries", domain.ErrInvalidInput)
		}
		key := in.ID
		if key == "" {
			key = "query"
		}
		examples = map[string]exampleInput{key: in.exampleInput}
	}

	keys := make([]string, 0, len(examples))
	for key := range examples {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	queries := make([]domain.MatchQuery, 0, len(keys))
	for _, key := range keys {
		example := examples[key]
		if example.Schema == "" {
			return nil, fmt.Errorf("%w: query %q: missing schema", domain.ErrInvalidInput, key)
		}
		entity := domain.Entity{ID: example.ID, Schema: example.Schema}
		if entity.ID == "" {
			entity.ID = key
		}
		for prop, values := range example.Properties {
			entity.Add(prop, values...)
		}
		queries = append(queries, domain.MatchQuery{Key: key, Entity: entity})
	}
	return queries, nil
}
