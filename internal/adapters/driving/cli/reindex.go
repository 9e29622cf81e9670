package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// envUpdateToken holds the token for remote updates.
const envUpdateToken = "SERCHA_MATCH_UPDATE_TOKEN"

var (
	reindexForce  bool
	reindexCheck  bool
	reindexRemote string
	reindexToken  string
	reindexJSON   bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Update the index from the catalog",
	Long: `Checks the upstream version of every dataset and builds a new index
generation when anything changed. The new generation replaces the current
one only after it was built completely.

With --remote the update runs on a sercha-match server through its
/updatez endpoint. The update token is read from --token, from
SERCHA_MATCH_UPDATE_TOKEN, or prompted for.`,
	Args:        cobra.NoArgs,
	Annotations: usesIndex,
	RunE:        runReindex,
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexForce, "force", "f", false, "rebuild even if nothing changed")
	reindexCmd.Flags().BoolVar(&reindexCheck, "check", false, "only show what an update would do")
	reindexCmd.Flags().StringVar(&reindexRemote, "remote", "", "base URL of a sercha-match server")
	reindexCmd.Flags().StringVar(&reindexToken, "token", "", "update token for --remote")
	reindexCmd.Flags().BoolVar(&reindexJSON, "json", false, "output the outcome as JSON")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	if reindexRemote != "" {
		return runRemoteReindex(cmd)
	}

	if indexManager == nil {
		return errors.New("index manager not configured")
	}

	if reindexCheck {
		plans, err := indexManager.Check(cmd.Context())
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}
		if reindexJSON {
			return printJSON(cmd, plans)
		}
		printPlans(cmd, plans)
		return nil
	}

	cmd.Println("Updating index...")
	outcome, err := indexManager.Update(cmd.Context(), reindexForce)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return printOutcome(cmd, outcome)
}

func runRemoteReindex(cmd *cobra.Command) error {
	token := reindexToken
	if token == "" {
		token = os.Getenv(envUpdateToken)
	}
	if token == "" {
		cmd.Print("Update token: ")
		token = readPassword(cmd.InOrStdin())
		cmd.Println()
	}
	if token == "" {
		return errors.New("an update token is required for --remote")
	}

	outcome, err := remoteUpdate(cmd.Context(), reindexRemote, token)
	if err != nil {
		return fmt.Errorf("remote reindex failed: %w", err)
	}
	return printOutcome(cmd, outcome)
}

// remoteUpdate forces an update on a server and waits for the outcome.
func remoteUpdate(ctx context.Context, base, token string) (*domain.BuildOutcome, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/updatez")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("sync", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil || body.Detail == "" {
			return nil, fmt.Errorf("server returned %s", resp.Status)
		}
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body.Detail)
	}

	var outcome domain.BuildOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return &outcome, nil
}

func printOutcome(cmd *cobra.Command, outcome *domain.BuildOutcome) error {
	if reindexJSON {
		return printJSON(cmd, outcome)
	}

	switch outcome.Status {
	case domain.BuildPromoted:
		cmd.Printf("%s generation %s\n", styles.Success.Render("Promoted"), outcome.Generation)
	case domain.BuildUnchanged:
		cmd.Println("Index is up to date.")
	default:
		cmd.Printf("%s %s\n", styles.Error.Render("Update failed:"), outcome.Error)
	}
	printPlans(cmd, outcome.Plans)

	if len(outcome.Failed) > 0 {
		names := make([]string, 0, len(outcome.Failed))
		for name := range outcome.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		cmd.Println("Failed datasets:")
		for _, name := range names {
			cmd.Printf("  %s: %s\n", name, outcome.Failed[name])
		}
	}
	if !outcome.StartedAt.IsZero() && !outcome.EndedAt.IsZero() {
		cmd.Println(styles.Muted.Render("Took " + outcome.EndedAt.Sub(outcome.StartedAt).Round(time.Millisecond).String()))
	}

	if outcome.Status == domain.BuildFailed {
		return fmt.Errorf("%w: %s", domain.ErrBuild, outcome.Error)
	}
	return nil
}

func printPlans(cmd *cobra.Command, plans []domain.DatasetPlan) {
	if len(plans) == 0 {
		return
	}
	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []string{p.Dataset, string(p.Action), orDash(p.IndexVersion), orDash(p.TargetVersion)})
	}
	cmd.Println(styles.Table([]string{"DATASET", "ACTION", "INDEXED", "TARGET"}, rows))
}

// readPassword reads a line without echo when in is a terminal.
func readPassword(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
