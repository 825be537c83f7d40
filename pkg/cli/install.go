package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jguan/chatstack/pkg/catalog"
	"github.com/jguan/chatstack/pkg/config"
	"github.com/jguan/chatstack/pkg/deploy"
	"github.com/jguan/chatstack/pkg/infra/docker"
	"github.com/jguan/chatstack/pkg/infra/hal"
	"github.com/jguan/chatstack/pkg/infra/hal/nvidia"
	"github.com/jguan/chatstack/pkg/infra/hal/system"
	"github.com/jguan/chatstack/pkg/infra/logger"
	"github.com/jguan/chatstack/pkg/infra/store"
	"github.com/jguan/chatstack/pkg/probe"
)

func NewInstallCommand(root *RootCommand) *cobra.Command {
	var (
		mode        string
		domain      string
		gpu         bool
		gpuCount    int
		exposeAPI   bool
		models      []string
		forceDisk   bool
		assumeState string
		skipProbe   bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Provision or upgrade the chat stack",
		Long: `Provision the chat stack on this host, or transition an existing
installation to the chosen mode.

The command detects what is already installed and performs only the
minimal set of actions: a fresh host gets a full deployment, an
HTTP-to-HTTPS upgrade regenerates configuration and reloads services
without re-fetching images, and re-running with unchanged inputs is a
verified no-op. Persisted data volumes are never touched.`,
		Example: `  # HTTP-only stack answering on the host's primary IP
  chatstack install

  # HTTPS stack with two GPUs and a model preselection
  chatstack install --mode advanced --domain chat.example.com \
      --gpu --gpu-count 2 --models llama3.2:3b,mistral:7b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("mode") {
				cfg.Deploy.Mode = mode
			}
			if cmd.Flags().Changed("domain") {
				cfg.Deploy.Domain = domain
			}
			if cmd.Flags().Changed("gpu") {
				cfg.GPU.Enabled = gpu
			}
			if cmd.Flags().Changed("gpu-count") {
				cfg.GPU.Count = gpuCount
			}
			if cmd.Flags().Changed("expose-api") {
				cfg.Deploy.ExposeAPI = exposeAPI
			}
			if cmd.Flags().Changed("models") {
				cfg.Models.Selection = models
			}

			return runInstall(cmd.Context(), root, installOptions{
				forceDisk:   forceDisk,
				assumeState: assumeState,
				skipProbe:   skipProbe,
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Deployment mode (simple, advanced)")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Domain name or IP (default: primary IP)")
	cmd.Flags().BoolVar(&gpu, "gpu", false, "Reserve GPUs for the inference backend")
	cmd.Flags().IntVar(&gpuCount, "gpu-count", 1, "Number of GPUs to reserve")
	cmd.Flags().BoolVar(&exposeAPI, "expose-api", false, "Publish the inference API port on the host")
	cmd.Flags().StringSliceVar(&models, "models", nil, "Model identifiers to install (comma-separated)")
	cmd.Flags().BoolVar(&forceDisk, "force-disk", false, "Proceed even when free disk space is below the model download size")
	cmd.Flags().StringVar(&assumeState, "assume-state", "", "Override ambiguous state detection (fresh, simple, advanced)")
	cmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Skip the post-deployment readiness wait")

	return cmd
}

type installOptions struct {
	forceDisk   bool
	assumeState string
	skipProbe   bool
}

func runInstall(ctx context.Context, root *RootCommand, opts installOptions) error {
	cfg := root.cfg
	out := root.opts

	profiler := hal.NewProfiler(cfg.Paths.DataDir,
		hal.WithSystemProbe(system.NewProbe()),
		hal.WithGPUProbe(nvidia.NewProbe("")),
	)
	profile := profiler.Profile(ctx)
	out.Printf("Host: %s, %dGB RAM, %dGB free disk, GPU: %s",
		profile.PrimaryIP, profile.RAMGB, profile.DiskFreeGB, describeGPU(profile))

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	inputs, err := cfg.Inputs(profile.PrimaryIP)
	if err != nil {
		return err
	}

	selection := catalog.Dedupe(cfg.Models.Selection)
	if len(selection) > 0 {
		report := cat.Evaluate(profile, selection)
		for _, w := range report.Warnings() {
			out.Printf("Warning: %s", w)
		}
		if report.VRAMUnknown {
			out.Printf("Warning: GPU capability could not be queried; checks used RAM thresholds")
		}
		if report.DiskInsufficient {
			if !opts.forceDisk {
				return fmt.Errorf("selected models need ~%.0fGB but only %dGB disk is free; re-run with --force-disk to proceed anyway",
					report.TotalDownloadGB, profile.DiskFreeGB)
			}
			out.Printf("Warning: proceeding despite insufficient disk space (--force-disk)")
		}
	}

	dockerCli, err := docker.NewSDKClient()
	if err != nil {
		logger.Warn("docker daemon client unavailable", "error", err)
		dockerCli = nil
	}

	orchOpts := []deploy.OrchestratorOption{}
	if history := openHistory(cfg); history != nil {
		defer history.Close()
		orchOpts = append(orchOpts, deploy.WithRecorder(history))
	}

	var orch *deploy.Orchestrator
	if dockerCli != nil {
		orch = deploy.NewOrchestrator(cfg.Paths.StackDir, dockerCli, deploy.NewComposeRunner(), orchOpts...)
	} else {
		orch = deploy.NewOrchestrator(cfg.Paths.StackDir, nil, deploy.NewComposeRunner(), orchOpts...)
	}

	stateOverride, err := parseAssumedState(opts.assumeState)
	if err != nil {
		return err
	}

	result, err := orch.Apply(ctx, inputs, stateOverride)
	if err != nil {
		return err
	}

	out.Printf("Detected state: %s, actions: %v", result.Detected.State, result.Plan.Actions())
	for _, w := range result.Warnings {
		out.Printf("Warning: %s", w)
	}

	if result.Changed && !opts.skipProbe {
		for _, w := range waitForStack(ctx, cfg, inputs) {
			out.Printf("Warning: %s", w)
		}
	}

	if dockerCli != nil {
		for _, w := range deploy.VerifyServices(ctx, dockerCli, inputs) {
			out.Printf("Warning: %s", w)
		}
	}

	// The selection is not part of the generated artifacts, so pulls run
	// even when the transition itself was a no-op: a re-run with a new
	// selection against an unchanged stack must still fetch the new models.
	if len(selection) > 0 {
		pullSelectedModels(ctx, deploy.NewModelPuller(), selection, out)
	}

	if result.Changed {
		out.Printf("Done. The stack answers on %s", stackURL(inputs))
	} else {
		out.Printf("Already up to date, nothing changed.")
	}
	return nil
}

type modelPuller interface {
	Pull(ctx context.Context, model string) error
}

func pullSelectedModels(ctx context.Context, puller modelPuller, selection []string, out *OutputOptions) {
	for _, model := range selection {
		out.Printf("Pulling model %s ...", model)
		if err := puller.Pull(ctx, model); err != nil {
			out.Printf("Warning: could not pull %s: %v", model, err)
		}
	}
}

func describeGPU(p hal.Profile) string {
	switch {
	case !p.GPUPresent:
		return "none"
	case !p.VRAMKnown:
		return "present, VRAM unknown"
	default:
		return fmt.Sprintf("%s (%dGB VRAM)", p.GPUName, p.VRAMGB)
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Models.CatalogFile != "" {
		return catalog.LoadFile(cfg.Models.CatalogFile)
	}
	return catalog.Load()
}

func openHistory(cfg *config.Config) *store.History {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		logger.Warn("could not create data dir, run history disabled", "error", err)
		return nil
	}
	history, err := store.Open(filepath.Join(cfg.Paths.DataDir, "chatstack.db"))
	if err != nil {
		logger.Warn("could not open run history", "error", err)
		return nil
	}
	return history
}

func parseAssumedState(s string) (*deploy.State, error) {
	if s == "" {
		return nil, nil
	}
	var st deploy.State
	switch s {
	case "fresh":
		st = deploy.StateFresh
	case "simple":
		st = deploy.StateSimple
	case "advanced":
		st = deploy.StateAdvanced
	default:
		return nil, fmt.Errorf("invalid --assume-state %q (valid: fresh, simple, advanced)", s)
	}
	return &st, nil
}

func stackURL(in deploy.Inputs) string {
	if in.Mode == deploy.ModeAdvanced {
		return "https://" + in.Domain
	}
	return "http://" + in.Domain
}

// waitForStack polls each service with its own attempt budget. Exhaustion
// is reported as warnings, never as failure: containers may legitimately
// still be initializing.
func waitForStack(ctx context.Context, cfg *config.Config, in deploy.Inputs) []string {
	interval := time.Duration(cfg.Probe.IntervalSeconds) * time.Second

	checker := probe.Checker(probe.NewHTTPChecker())
	base := "http://127.0.0.1"
	if in.Mode == deploy.ModeAdvanced {
		checker = probe.NewInsecureHTTPChecker()
		base = "https://127.0.0.1"
	}

	targets := []probe.Target{
		{Service: deploy.ServiceProxy, Endpoint: base + "/", MaxAttempts: cfg.Probe.ProxyAttempts, Interval: interval},
		{Service: deploy.ServiceWebUI, Endpoint: base + "/health", MaxAttempts: cfg.Probe.UIAttempts, Interval: interval},
	}
	if in.ExposeAPI {
		targets = append(targets, probe.Target{
			Service:     deploy.ServiceBackend,
			Endpoint:    fmt.Sprintf("http://127.0.0.1:%d/api/version", deploy.BackendPort),
			MaxAttempts: cfg.Probe.BackendAttempts,
			Interval:    interval,
		})
	}

	return probe.NewWaiter(checker).WaitAll(ctx, targets)
}
