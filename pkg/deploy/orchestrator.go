package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jguan/chatstack/pkg/infra/docker"
	"github.com/jguan/chatstack/pkg/infra/logger"
)

// Plan is the minimal action set a transition needs. Every flag defaults to
// false; an all-false plan is a no-op run.
type Plan struct {
	State  State
	Target Mode

	// IssueCerts ensures a certificate pair exists before anything else.
	IssueCerts bool
	// ReissueCerts regenerates the pair even if present (domain changed).
	ReissueCerts bool
	// WriteArtifacts replaces both generated documents. Always both or
	// neither, never one.
	WriteArtifacts bool
	// Deploy runs a from-scratch deployment, including image pulls.
	Deploy bool
	// Reload applies the new configuration to running services without
	// fetching images or recreating volumes.
	Reload bool
}

// Actions lists the plan's enabled steps for logs and history.
func (p Plan) Actions() []string {
	var out []string
	if p.ReissueCerts {
		out = append(out, "reissue-certs")
	} else if p.IssueCerts {
		out = append(out, "issue-certs")
	}
	if p.WriteArtifacts {
		out = append(out, "write-artifacts")
	}
	if p.Deploy {
		out = append(out, "deploy")
	}
	if p.Reload {
		out = append(out, "reload")
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

// Result summarizes one orchestrator run.
type Result struct {
	RunID    string
	Detected DeploymentState
	Plan     Plan
	// Changed is false when the run was a verified no-op.
	Changed bool
	// Warnings are non-fatal findings surfaced to the operator.
	Warnings []string
}

// RunRecord is the persisted trace of one run.
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	DetectedState string
	TargetMode    string
	Actions       []string
	Outcome       string
	Error         string
}

// Run outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeFailed  = "failed"
)

// Recorder persists run records. Recording failures never fail a run.
type Recorder interface {
	Record(ctx context.Context, run RunRecord) error
}

// Orchestrator drives mode transitions: it detects the current state,
// derives the minimal plan for the chosen target mode, and executes it.
// Named data volumes are never destroyed by any path through here.
type Orchestrator struct {
	dir      string
	detector *Detector
	issuer   *Issuer
	runner   Runner
	recorder Recorder
	newRunID func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRecorder attaches a run-history recorder.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRunIDFunc overrides run-ID generation, primarily for tests.
func WithRunIDFunc(f func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newRunID = f }
}

// NewOrchestrator creates an Orchestrator over the given stack directory.
// cli may be nil (state detection degrades gracefully).
func NewOrchestrator(dir string, cli docker.Client, runner Runner, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		dir:      dir,
		detector: NewDetector(dir, cli),
		issuer:   NewIssuer(filepath.Join(dir, CertsDirName)),
		runner:   runner,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Detect exposes the detector's classification.
func (o *Orchestrator) Detect(ctx context.Context) DeploymentState {
	return o.detector.Detect(ctx)
}

// Apply transitions the host to the state described by in. stateOverride,
// when non-nil, replaces the detected state; it is the explicit operator
// confirmation required for ambiguous hosts.
//
// Failure semantics: validation and generation failures abort before any
// running service is touched, leaving prior artifacts fully intact. A
// failure while reloading services rolls the stack back to stopped and is
// surfaced as fatal.
func (o *Orchestrator) Apply(ctx context.Context, in Inputs, stateOverride *State) (Result, error) {
	started := time.Now()
	res := Result{RunID: o.newRunID()}
	ctx = logger.SetRunID(ctx, res.RunID)
	log := logger.WithContext(ctx)

	err := o.apply(ctx, in, stateOverride, &res)

	if o.recorder != nil {
		rec := RunRecord{
			ID:            res.RunID,
			StartedAt:     started,
			FinishedAt:    time.Now(),
			DetectedState: res.Detected.State.String(),
			TargetMode:    in.Mode.String(),
			Actions:       res.Plan.Actions(),
			Outcome:       OutcomeApplied,
		}
		if err != nil {
			rec.Outcome = OutcomeFailed
			rec.Error = err.Error()
		} else if !res.Changed {
			rec.Outcome = OutcomeNoop
		}
		if recErr := o.recorder.Record(ctx, rec); recErr != nil {
			log.Warn("could not record run history", "error", recErr)
		}
	}

	return res, err
}

func (o *Orchestrator) apply(ctx context.Context, in Inputs, stateOverride *State, res *Result) error {
	if err := in.Validate(); err != nil {
		return err
	}
	log := logger.WithContext(ctx)

	res.Detected = o.detector.Detect(ctx)
	state := res.Detected.State
	if stateOverride != nil {
		log.Info("using operator-confirmed state", "state", stateOverride.String(), "detected", state.String())
		state = *stateOverride
	}
	if state == StateAmbiguous {
		return &AmbiguousStateError{Reason: res.Detected.Reason}
	}

	candidate, err := Generate(in)
	if err != nil {
		return err
	}

	changed := o.artifactsDiffer(candidate)
	plan, err := o.plan(state, in, changed)
	if err != nil {
		return err
	}
	res.Plan = plan
	res.Changed = plan.WriteArtifacts || plan.Deploy || plan.Reload || plan.IssueCerts

	log.Info("transition planned",
		"state", state.String(),
		"target", in.Mode.String(),
		"actions", plan.Actions())

	if !res.Changed {
		log.Info("already up to date, nothing to do")
		return nil
	}

	if plan.IssueCerts {
		if _, err := o.issuer.Ensure(in.Domain, in.Cert, plan.ReissueCerts); err != nil {
			return &GenerationError{Artifact: "certificate pair", Err: err}
		}
	}

	if plan.WriteArtifacts {
		if err := o.writeArtifacts(candidate); err != nil {
			return err
		}
	}

	switch {
	case plan.Deploy:
		if err := o.runner.Deploy(ctx, o.dir); err != nil {
			return fmt.Errorf("deploy stack: %w", err)
		}
	case plan.Reload:
		if err := o.runner.Reload(ctx, o.dir); err != nil {
			log.Error("reload failed, rolling stack back to stopped", "error", err)
			if stopErr := o.runner.Stop(ctx, o.dir); stopErr != nil {
				log.Error("rollback stop also failed", "error", stopErr)
			}
			return fmt.Errorf("%w: %v", ErrRestartFailed, err)
		}
	}

	if state == StateAdvanced && in.Mode == ModeSimple && res.Detected.HasCertMaterial {
		res.Warnings = append(res.Warnings,
			"certificate files were left in place; they are no longer referenced")
	}

	return nil
}

// plan derives the minimal action set for a state/target pair. changed
// reports whether the candidate artifacts differ from what is on disk.
func (o *Orchestrator) plan(state State, in Inputs, changed bool) (Plan, error) {
	p := Plan{State: state, Target: in.Mode}

	switch state {
	case StateFresh:
		p.IssueCerts = in.Mode == ModeAdvanced
		p.WriteArtifacts = true
		p.Deploy = true

	case StateSimple:
		if in.Mode == ModeSimple {
			// Same mode: only act when the inputs actually changed.
			p.WriteArtifacts = changed
			p.Reload = changed
		} else {
			p.IssueCerts = true
			p.ReissueCerts = o.certDomainChanged(in.Domain)
			p.WriteArtifacts = true
			p.Reload = true
		}

	case StateAdvanced:
		if in.Mode == ModeAdvanced {
			// Idempotent: re-running with unchanged inputs is safe and does
			// nothing. A missing pair is restored, and the reload makes the
			// running proxy pick the restored pair up.
			certsMissing := !o.issuer.Present()
			p.IssueCerts = changed || certsMissing
			p.ReissueCerts = changed && o.certDomainChanged(in.Domain)
			p.WriteArtifacts = changed
			p.Reload = changed || certsMissing
		} else {
			// Downgrade regenerates without cert material. Certificate
			// files stay on disk unreferenced; that is not an error.
			p.WriteArtifacts = true
			p.Reload = true
		}

	default:
		return Plan{}, fmt.Errorf("cannot plan transition from state %s", state)
	}

	return p, nil
}

// certDomainChanged reports whether an existing certificate is bound to a
// different common name than the requested domain.
func (o *Orchestrator) certDomainChanged(domain string) bool {
	cn, err := o.issuer.CommonName()
	if err != nil {
		return false
	}
	return cn != domain
}

// artifactsDiffer compares candidate artifacts against what is on disk.
// A missing or unreadable file counts as different.
func (o *Orchestrator) artifactsDiffer(candidate Artifacts) bool {
	proxy, err := os.ReadFile(filepath.Join(o.dir, ProxyConfigName))
	if err != nil || !bytes.Equal(proxy, candidate.ProxyConfig) {
		return true
	}
	compose, err := os.ReadFile(filepath.Join(o.dir, ComposeFileName))
	if err != nil || !bytes.Equal(compose, candidate.Compose) {
		return true
	}
	return false
}

// writeArtifacts replaces both documents atomically: both temp files are
// written and fsynced first, then renamed into place. A failure before the
// renames leaves the previous artifacts untouched.
func (o *Orchestrator) writeArtifacts(a Artifacts) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return &GenerationError{Artifact: o.dir, Err: err}
	}

	proxyPath := filepath.Join(o.dir, ProxyConfigName)
	composePath := filepath.Join(o.dir, ComposeFileName)
	proxyTmp := proxyPath + ".tmp"
	composeTmp := composePath + ".tmp"

	cleanup := func() {
		os.Remove(proxyTmp)
		os.Remove(composeTmp)
	}

	if err := writeFileSync(proxyTmp, a.ProxyConfig); err != nil {
		cleanup()
		return &GenerationError{Artifact: ProxyConfigName, Err: err}
	}
	if err := writeFileSync(composeTmp, a.Compose); err != nil {
		cleanup()
		return &GenerationError{Artifact: ComposeFileName, Err: err}
	}

	// Rename is the commit step.
	if err := os.Rename(proxyTmp, proxyPath); err != nil {
		cleanup()
		return &GenerationError{Artifact: ProxyConfigName, Err: err}
	}
	if err := os.Rename(composeTmp, composePath); err != nil {
		cleanup()
		return &GenerationError{Artifact: ComposeFileName, Err: err}
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
