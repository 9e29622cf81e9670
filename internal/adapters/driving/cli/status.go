package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index freshness",
	Long: `Compares the upstream version of every dataset with the version in the
index and reports which datasets are current or outdated.`,
	Args:        cobra.NoArgs,
	Annotations: usesIndex,
	RunE:        runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusService == nil {
		return errors.New("status service not configured")
	}

	status, err := statusService.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if statusJSON {
		return printJSON(cmd, status)
	}

	cmd.Println(styles.Title.Render("Index"))
	cmd.Printf("  State:       %s\n", status.State)
	if status.Generation != "" {
		cmd.Printf("  Generation:  %s\n", status.Generation)
	} else {
		cmd.Printf("  Generation:  %s\n", styles.Muted.Render("none"))
	}
	cmd.Printf("  Index:       %s\n", styles.Flag(!status.IndexStale, "current", "stale"))
	cmd.Printf("  Catalog:     %s\n", styles.Flag(status.CatalogFresh, "fresh", "not checked recently"))
	cmd.Printf("  Last check:  %s\n", formatTime(status.LastCheck))
	cmd.Printf("  Last update: %s\n", formatTime(status.LastSuccess))
	if status.LastError != "" {
		cmd.Printf("  Last error:  %s\n", styles.Error.Render(status.LastError))
	}
	cmd.Println()

	if len(status.Datasets) == 0 {
		cmd.Println("No datasets in the catalog.")
		return nil
	}

	rows := make([][]string, 0, len(status.Datasets))
	for i := range status.Datasets {
		ds := &status.Datasets[i]
		state := styles.Flag(ds.IndexCurrent, "current", "outdated")
		switch {
		case ds.Error != "":
			state = styles.Error.Render(ds.Error)
		case !ds.Load:
			state = styles.Muted.Render("not loaded")
		}
		rows = append(rows, []string{
			ds.Name,
			string(ds.Kind),
			orDash(ds.Version),
			orDash(ds.IndexVersion),
			countOrDash(ds.Entities),
			state,
		})
	}
	cmd.Println(styles.Table([]string{"DATASET", "KIND", "VERSION", "INDEXED", "ENTITIES", "STATE"}, rows))

	if len(status.Outdated) > 0 {
		cmd.Printf("\nOutdated: %s\n", strings.Join(status.Outdated, ", "))
	}
	return nil
}

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the datasets in the catalog",
	Long: `Resolves the manifest and any remote catalogs it references and lists
the resulting datasets.`,
	Args:        cobra.NoArgs,
	Annotations: usesIndex,
	RunE:        runCatalog,
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "output the catalog as JSON")
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	catalog, err := catalogService.Resolve(cmd.Context())
	if err != nil {
		return fmt.Errorf("catalog failed: %w", err)
	}

	if catalogJSON {
		return printJSON(cmd, catalog.Datasets)
	}

	if len(catalog.Datasets) == 0 {
		cmd.Println("No datasets in the catalog.")
		return nil
	}

	rows := make([][]string, 0, len(catalog.Datasets))
	for i := range catalog.Datasets {
		ds := &catalog.Datasets[i]
		contents := ds.EntitiesURL
		if ds.Kind == domain.KindCollection {
			contents = strings.Join(ds.Children, ", ")
		}
		rows = append(rows, []string{
			ds.Name,
			string(ds.Kind),
			orDash(ds.Version),
			styles.Flag(ds.Loadable(), "yes", "no"),
			orDash(contents),
		})
	}
	cmd.Println(styles.Table([]string{"DATASET", "KIND", "VERSION", "LOAD", "SOURCE"}, rows))
	cmd.Println(styles.Muted.Render(fmt.Sprintf("%d datasets, resolved %s", len(catalog.Datasets), formatTime(catalog.ResolvedAt))))
	return nil
}

var (
	auditLimit int
	auditJSON  bool
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log",
	Short: "Show recent index events",
	Long: `Lists index lifecycle events, newest first: builds started, completed
and failed, alias rollovers and deleted indexes.`,
	Args:        cobra.NoArgs,
	Annotations: usesIndex,
	RunE:        runAuditLog,
}

func init() {
	auditLogCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "maximum number of events")
	auditLogCmd.Flags().BoolVar(&auditJSON, "json", false, "output events as JSON")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, _ []string) error {
	if statusService == nil {
		return errors.New("status service not configured")
	}

	events, err := statusService.AuditLog(cmd.Context(), auditLimit)
	if err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}

	if auditJSON {
		return printJSON(cmd, events)
	}

	if len(events) == 0 {
		cmd.Println("No events recorded.")
		return nil
	}
	for i := range events {
		ev := &events[i]
		cmd.Printf("%s  %-18s %s", formatTime(ev.Timestamp), ev.Event, ev.Index)
		if ev.Message != "" {
			cmd.Printf("  %s", styles.Muted.Render(ev.Message))
		}
		cmd.Println()
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func countOrDash(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
