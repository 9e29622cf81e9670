package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

var (
	searchDataset string
	searchSchema  string
	searchCountry []string
	searchTopic   []string
	searchFacets  bool
	searchLimit   int
	searchOffset  int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed entities",
	Long: `Runs a free-text query over entity names and properties within a
dataset or collection.`,
	Args:        cobra.ExactArgs(1),
	Annotations: usesIndex,
	RunE:        runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchDataset, "dataset", "d", "", "dataset or collection to search (default all)")
	searchCmd.Flags().StringVar(&searchSchema, "schema", "", "only return entities of this schema")
	searchCmd.Flags().StringSliceVar(&searchCountry, "country", nil, "only return entities linked to these countries")
	searchCmd.Flags().StringSliceVar(&searchTopic, "topic", nil, "only return entities tagged with these topics")
	searchCmd.Flags().BoolVar(&searchFacets, "facets", false, "print country, topic and dataset counts")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Scope:     searchDataset,
		Schema:    searchSchema,
		Countries: searchCountry,
		Topics:    searchTopic,
		Limit:     searchLimit,
		Offset:    searchOffset,
	}

	resp, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}

	if err := outputSearchTable(cmd, resp); err != nil {
		return err
	}
	if searchFacets {
		outputFacets(cmd, resp.Facets)
	}
	return nil
}

func outputFacets(cmd *cobra.Command, facets map[string][]domain.FacetValue) {
	for _, name := range domain.DefaultFacets {
		values := facets[name]
		if len(values) == 0 {
			continue
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s (%d)", v.Name, v.Count))
		}
		cmd.Println()
		cmd.Printf("%s: %s\n", name, strings.Join(parts, ", "))
	}
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results %d-%d of %d:\n", resp.Offset+1, resp.Offset+len(resp.Results), resp.Total)
	cmd.Println()
	for i := range resp.Results {
		entity := &resp.Results[i].Entity
		// Format: [N] Caption (Schema) id
		cmd.Printf("[%d] %s (%s) %s\n", resp.Offset+i+1, caption(entity), entity.Schema, entity.ID)
		if len(entity.Datasets) > 0 {
			cmd.Printf("    %s\n", styles.Muted.Render(strings.Join(entity.Datasets, ", ")))
		}
	}
	return nil
}

// caption falls back to the first name or the ID.
func caption(e *domain.Entity) string {
	if e.Caption != "" {
		return e.Caption
	}
	if name := e.First("name"); name != "" {
		return name
	}
	return e.ID
}
