package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"missionflow/internal/roles"
	"missionflow/internal/store"
)

var (
	listLimit  int
	showTraces bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show the step trace of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the agent roles of the catalog",
	RunE:  runRoles,
}

func init() {
	runsListCmd.Flags().IntVarP(&listLimit, "limit", "n", store.DefaultListLimit, "Maximum runs to list")
	runsListCmd.Flags().BoolVar(&plainOutput, "plain", false, "Disable colors")
	runsShowCmd.Flags().BoolVar(&showTraces, "traces", false, "Include the generation traces")
	runsShowCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	runsShowCmd.Flags().BoolVar(&plainOutput, "plain", false, "Disable colors and markdown styling")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, listLimit)
	if err != nil {
		return err
	}
	r, err := newRenderer()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), r.RunList(runs))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	r, err := newRenderer()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r.RunTrace(run))
	if showTraces {
		traces, err := st.ListTraces(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, r.Traces(traces))
	}
	return nil
}

func runRoles(cmd *cobra.Command, args []string) error {
	catalog, err := roles.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, role := range catalog.List() {
		fmt.Fprintf(out, "%-12s %-22s %s\n", role.ID, role.DisplayName, firstLine(role.BaseInstructions))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
