package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/chatstack/pkg/deploy"
)

type fakeModelPuller struct {
	pulled []string
	err    error
}

func (f *fakeModelPuller) Pull(ctx context.Context, model string) error {
	f.pulled = append(f.pulled, model)
	return f.err
}

// Pulls are driven by the selection alone, not by the transition outcome:
// a new selection against an already up-to-date stack must still fetch the
// newly requested models.
func TestPullSelectedModels_RunsOnUnchangedStack(t *testing.T) {
	selection := []string{"llama3.2:3b", "mistral:7b"}

	puller := &fakeModelPuller{}
	pullSelectedModels(context.Background(), puller, selection, &OutputOptions{Quiet: true})

	assert.Equal(t, selection, puller.pulled)
}

func TestPullSelectedModels_FailureIsWarningNotFatal(t *testing.T) {
	var buf bytes.Buffer
	out := &OutputOptions{Format: OutputTable, Writer: &buf}

	puller := &fakeModelPuller{err: errors.New("no such model")}
	pullSelectedModels(context.Background(), puller, []string{"bad-model", "worse-model"}, out)

	assert.Equal(t, []string{"bad-model", "worse-model"}, puller.pulled,
		"a failed pull must not stop the remaining pulls")
	assert.Contains(t, buf.String(), "Warning: could not pull bad-model")
}

func TestParseAssumedState(t *testing.T) {
	st, err := parseAssumedState("")
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = parseAssumedState("advanced")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, deploy.StateAdvanced, *st)

	_, err = parseAssumedState("clustered")
	assert.Error(t, err)
}

func TestStackURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5", stackURL(deploy.Inputs{Mode: deploy.ModeSimple, Domain: "10.0.0.5"}))
	assert.Equal(t, "https://chat.example.com", stackURL(deploy.Inputs{Mode: deploy.ModeAdvanced, Domain: "chat.example.com"}))
}
