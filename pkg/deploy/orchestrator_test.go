package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records lifecycle calls instead of shelling out.
type fakeRunner struct {
	calls     []string
	deployErr error
	reloadErr error
	stopErr   error
}

func (f *fakeRunner) Deploy(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "deploy")
	return f.deployErr
}

func (f *fakeRunner) Reload(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "reload")
	return f.reloadErr
}

func (f *fakeRunner) Stop(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "stop")
	return f.stopErr
}

type fakeRecorder struct {
	records []RunRecord
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, run RunRecord) error {
	f.records = append(f.records, run)
	return f.err
}

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*Orchestrator, string, *fakeRunner) {
	t.Helper()
	dir := t.TempDir()
	runner := &fakeRunner{}
	opts = append(opts, WithRunIDFunc(func() string { return "test-run" }))
	return NewOrchestrator(dir, nil, runner, opts...), dir, runner
}

func TestApply_FreshToSimple(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	res, err := o.Apply(context.Background(), simpleInputs(), nil)
	require.NoError(t, err)

	assert.Equal(t, StateFresh, res.Detected.State)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"deploy"}, runner.calls)
	assert.Equal(t, "test-run", res.RunID)

	// Both artifacts exist, no cert material for HTTP-only mode.
	assert.FileExists(t, filepath.Join(dir, ProxyConfigName))
	assert.FileExists(t, filepath.Join(dir, ComposeFileName))
	assert.False(t, NewIssuer(filepath.Join(dir, CertsDirName)).Present())
}

func TestApply_FreshToAdvancedIssuesCerts(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	in := advancedInputs()
	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.True(t, res.Plan.IssueCerts)
	assert.Equal(t, []string{"deploy"}, runner.calls)

	issuer := NewIssuer(filepath.Join(dir, CertsDirName))
	assert.True(t, issuer.Present())
	cn, err := issuer.CommonName()
	require.NoError(t, err)
	assert.Equal(t, in.Domain, cn)
}

func TestApply_SecondIdenticalRunIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	o, _, runner := newTestOrchestrator(t, WithRecorder(rec))

	in := advancedInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, StateAdvanced, res.Detected.State)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{"deploy"}, runner.calls, "no lifecycle call on the no-op run")

	require.Len(t, rec.records, 2)
	assert.Equal(t, OutcomeApplied, rec.records[0].Outcome)
	assert.Equal(t, OutcomeNoop, rec.records[1].Outcome)
	assert.Equal(t, []string{"none"}, rec.records[1].Actions)
}

func TestApply_SimpleToAdvancedUpgrade(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	in := simpleInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	in.Mode = ModeAdvanced
	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, StateSimple, res.Detected.State)
	assert.True(t, res.Plan.IssueCerts)
	assert.True(t, res.Plan.Reload)
	assert.Equal(t, []string{"deploy", "reload"}, runner.calls)

	conf, err := os.ReadFile(filepath.Join(dir, ProxyConfigName))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "listen 443 ssl;")
}

func TestApply_AdvancedToSimpleDowngradeKeepsCerts(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	in := advancedInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	in.Mode = ModeSimple
	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, StateAdvanced, res.Detected.State)
	assert.False(t, res.Plan.IssueCerts)
	assert.Equal(t, []string{"deploy", "reload"}, runner.calls)

	// The pair stays on disk unreferenced, and the operator hears about it.
	assert.True(t, NewIssuer(filepath.Join(dir, CertsDirName)).Present())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no longer referenced")

	conf, err := os.ReadFile(filepath.Join(dir, ProxyConfigName))
	require.NoError(t, err)
	assert.NotContains(t, string(conf), "ssl_certificate")
}

// A deleted certificate pair on an otherwise up-to-date advanced stack must
// be restored and the proxy reloaded, or it would keep serving the old pair
// from memory while the disk copy diverges.
func TestApply_AdvancedRestoresMissingCertsAndReloads(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	in := advancedInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	issuer := NewIssuer(filepath.Join(dir, CertsDirName))
	require.NoError(t, os.Remove(issuer.CertPath()))
	require.NoError(t, os.Remove(issuer.KeyPath()))

	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.True(t, res.Plan.IssueCerts)
	assert.False(t, res.Plan.WriteArtifacts, "artifacts on disk are still current")
	assert.True(t, res.Plan.Reload, "the running proxy must load the restored pair")
	assert.Equal(t, []string{"deploy", "reload"}, runner.calls)
	assert.True(t, issuer.Present())
}

func TestApply_DomainChangeReissuesCert(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t)

	in := advancedInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	in.Domain = "other.example.com"
	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	assert.True(t, res.Plan.ReissueCerts)
	cn, err := NewIssuer(filepath.Join(dir, CertsDirName)).CommonName()
	require.NoError(t, err)
	assert.Equal(t, "other.example.com", cn)
}

func TestApply_ValidationFailureTouchesNothing(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	_, err := o.Apply(context.Background(), Inputs{Mode: ModeSimple, Domain: ""}, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	assert.Empty(t, runner.calls)
	assert.NoFileExists(t, filepath.Join(dir, ComposeFileName))
}

func TestApply_ReloadFailureRollsBackToStopped(t *testing.T) {
	o, _, runner := newTestOrchestrator(t)

	in := simpleInputs()
	_, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)

	runner.reloadErr = errors.New("nginx: configuration test failed")
	in.Mode = ModeAdvanced
	_, err = o.Apply(context.Background(), in, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRestartFailed)
	assert.Equal(t, []string{"deploy", "reload", "stop"}, runner.calls)
}

func TestApply_AmbiguousStateRefused(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ComposeFileName),
		[]byte("not: a stack spec\n"), 0o644))

	_, err := o.Apply(context.Background(), simpleInputs(), nil)

	var ambiguous *AmbiguousStateError
	require.ErrorAs(t, err, &ambiguous)
	assert.NotEmpty(t, ambiguous.Reason)
	assert.Empty(t, runner.calls)
}

func TestApply_AmbiguousStateWithOperatorOverride(t *testing.T) {
	o, _, runner := newTestOrchestrator(t)
	require.NoError(t, os.WriteFile(filepath.Join(o.dir, ComposeFileName),
		[]byte("not: a stack spec\n"), 0o644))

	override := StateFresh
	res, err := o.Apply(context.Background(), simpleInputs(), &override)
	require.NoError(t, err)

	assert.Equal(t, StateAmbiguous, res.Detected.State)
	assert.Equal(t, StateFresh, res.Plan.State)
	assert.Equal(t, []string{"deploy"}, runner.calls)
}

func TestApply_RecorderFailureDoesNotFailRun(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("database is locked")}
	o, _, _ := newTestOrchestrator(t, WithRecorder(rec))

	_, err := o.Apply(context.Background(), simpleInputs(), nil)
	assert.NoError(t, err)
	assert.Len(t, rec.records, 1)
}

func TestApply_FailedRunRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	o, _, _ := newTestOrchestrator(t, WithRecorder(rec))

	_, err := o.Apply(context.Background(), Inputs{Mode: ModeSimple, Domain: "bad domain"}, nil)
	require.Error(t, err)

	require.Len(t, rec.records, 1)
	assert.Equal(t, OutcomeFailed, rec.records[0].Outcome)
	assert.Contains(t, rec.records[0].Error, "whitespace")
}

// TestApply_AdvancedGPUStack walks the full declared surface of a secured
// GPU installation: TLS proxy with redirect, certificate bound to the host
// IP, two reserved accelerators, and a private inference API.
func TestApply_AdvancedGPUStack(t *testing.T) {
	o, dir, runner := newTestOrchestrator(t)

	in := Inputs{
		Mode:   ModeAdvanced,
		Domain: "10.0.0.5",
		GPU:    GPUConfig{Enabled: true, Count: 2},
	}
	res, err := o.Apply(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, runner.calls)
	assert.True(t, res.Changed)

	cn, err := NewIssuer(filepath.Join(dir, CertsDirName)).CommonName()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cn)

	conf, err := os.ReadFile(filepath.Join(dir, ProxyConfigName))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "return 301 https://$host$request_uri;")
	assert.Contains(t, string(conf), "listen 443 ssl;")

	compose, err := os.ReadFile(filepath.Join(dir, ComposeFileName))
	require.NoError(t, err)
	spec := string(compose)
	assert.Contains(t, spec, "driver: nvidia")
	assert.Contains(t, spec, "count: 2")
	assert.Contains(t, spec, "CUDA_VISIBLE_DEVICES=0,1")
	assert.NotContains(t, spec, "11434:11434")

	// The detector now sees an advanced installation.
	assert.Equal(t, StateAdvanced, o.Detect(context.Background()).State)
}

func TestPlan_ActionsLabels(t *testing.T) {
	assert.Equal(t, []string{"none"}, Plan{}.Actions())
	assert.Equal(t,
		[]string{"issue-certs", "write-artifacts", "deploy"},
		Plan{IssueCerts: true, WriteArtifacts: true, Deploy: true}.Actions())
	assert.Equal(t,
		[]string{"reissue-certs", "write-artifacts", "reload"},
		Plan{IssueCerts: true, ReissueCerts: true, WriteArtifacts: true, Reload: true}.Actions())
}
