package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"missionflow/internal/pipeline"
	"missionflow/internal/prompt"
	"missionflow/internal/report"
	"missionflow/internal/roles"
)

var (
	jobPath      string
	missionFlag  string
	agentsFlag   string
	objective    string
	businessName string
	sector       string
	location     string
	tone         string
	jsonOutput   bool
	plainOutput  bool
	quiet        bool

	composeAgent string
	priorFile    string
	rawPrompt    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline run",
	Long: `Execute the listed agents in order. The job comes from a YAML file (--job)
and can be amended with flags; with no job file, --agents is required.

Example:
  missionflow run --agents strategist,writer --objective "Fill the terrace" \
    --business-name "Le Petit Bistro" --sector restaurant`,
	RunE: runPipeline,
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Print the prompt an agent would receive",
	RunE:  runCompose,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, composeCmd} {
		c.Flags().StringVarP(&jobPath, "job", "f", "", "Job file (YAML)")
		c.Flags().StringVar(&objective, "objective", "", "Global mission objective")
		c.Flags().StringVar(&businessName, "business-name", "", "Business name")
		c.Flags().StringVar(&sector, "sector", "", "Business sector")
		c.Flags().StringVar(&location, "location", "", "Business location")
		c.Flags().StringVar(&tone, "tone", "", "Preferred tone of voice")
		c.Flags().BoolVar(&plainOutput, "plain", false, "Disable colors and markdown styling")
	}
	runCmd.Flags().StringVar(&missionFlag, "mission", "", "Mission label for the run")
	runCmd.Flags().StringVar(&agentsFlag, "agents", "", "Comma-separated agent ids, in execution order")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide step progress")

	composeCmd.Flags().StringVar(&composeAgent, "agent", "", "Agent id (required)")
	composeCmd.Flags().StringVar(&priorFile, "prior-file", "", "File holding the previous step's output")
	composeCmd.Flags().BoolVar(&rawPrompt, "raw", false, "Print the prompt exactly as sent")
	_ = composeCmd.MarkFlagRequired("agent")
}

// commandContext bounds a command by --timeout and SIGINT/SIGTERM.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// jobFromFlags loads --job, if any, and applies the flag overrides on top.
func jobFromFlags() (*Job, error) {
	job := &Job{}
	if jobPath != "" {
		loaded, err := loadJob(jobPath)
		if err != nil {
			return nil, err
		}
		job = loaded
	}
	if missionFlag != "" {
		job.Mission = missionFlag
	}
	if agentsFlag != "" {
		job.Agents = splitAgents(agentsFlag)
	}
	applyConfigFlags(&job.Config)
	return job, nil
}

func applyConfigFlags(c *prompt.ExecutionConfig) {
	if objective != "" {
		if c.GlobalMission == nil {
			c.GlobalMission = &prompt.GlobalMission{}
		}
		c.GlobalMission.Objective = objective
	}
	if businessName != "" || sector != "" || location != "" {
		if c.BusinessProfile == nil {
			c.BusinessProfile = &prompt.BusinessProfile{}
		}
		if businessName != "" {
			c.BusinessProfile.Name = businessName
		}
		if sector != "" {
			c.BusinessProfile.Sector = sector
		}
		if location != "" {
			c.BusinessProfile.Location = location
		}
	}
	if tone != "" {
		if c.Preferences == nil {
			c.Preferences = &prompt.Preferences{}
		}
		c.Preferences.Tone = tone
	}
}

func newRenderer() (*report.Renderer, error) {
	if plainOutput {
		return report.NewPlain(0)
	}
	return report.New(0, report.DetectDark())
}

func runPipeline(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags()
	if err != nil {
		return err
	}
	if len(job.Agents) == 0 {
		return fmt.Errorf("no agents to run: pass --agents or a job file with agents")
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Starting run",
		zap.String("job", job.Name),
		zap.Strings("agents", job.Agents))

	var progress io.Writer
	if !quiet && !jsonOutput {
		progress = cmd.ErrOrStderr()
	}
	run, runErr := a.execute(ctx, job, progress)
	if run == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
		return runErr
	}

	r, err := newRenderer()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r.RunTrace(run))
	if run.Status == pipeline.RunCompleted {
		final, err := r.Final(run)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, final)
	}
	return runErr
}

func runCompose(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags()
	if err != nil {
		return err
	}
	catalog, err := roles.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	role, err := catalog.Get(composeAgent)
	if err != nil {
		return err
	}

	var prior string
	if priorFile != "" {
		data, err := os.ReadFile(priorFile)
		if err != nil {
			return fmt.Errorf("failed to read prior output: %w", err)
		}
		prior = string(data)
	}

	out := cmd.OutOrStdout()
	if rawPrompt {
		fmt.Fprintln(out, prompt.Compose(role, job.Config, prior))
		return nil
	}
	r, err := newRenderer()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r.Prompt(prompt.Sections(role, job.Config, prior)))
	return nil
}
