package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outputRow struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	skip  string
}

func TestFormatOutput_JSON(t *testing.T) {
	out, err := FormatOutput(outputRow{Name: "proxy", Count: 2}, OutputJSON)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "proxy"`)
	assert.Contains(t, out, `"count": 2`)
}

func TestFormatOutput_YAML(t *testing.T) {
	out, err := FormatOutput(map[string]any{"mode": "advanced"}, OutputYAML)
	require.NoError(t, err)
	assert.Equal(t, "mode: advanced", out)
}

func TestFormatOutput_StructTable(t *testing.T) {
	out, err := FormatOutput(outputRow{Name: "webui", Count: 1}, OutputTable)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME:")
	assert.Contains(t, out, "webui")
	assert.NotContains(t, out, "skip")
}

func TestFormatOutput_SliceTable(t *testing.T) {
	rows := []outputRow{
		{Name: "proxy", Count: 1},
		{Name: "ollama", Count: 2},
	}
	out, err := FormatOutput(rows, OutputTable)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "COUNT")
	assert.Contains(t, out, "ollama")
}

func TestFormatOutput_EmptySlice(t *testing.T) {
	out, err := FormatOutput([]outputRow{}, OutputTable)
	require.NoError(t, err)
	assert.Equal(t, "No items", out)
}

func TestOutputOptions_QuietSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputTable, Quiet: true, Writer: &buf}

	require.NoError(t, opts.Print(outputRow{Name: "proxy"}))
	opts.Printf("stack ready at %s", "http://10.0.0.5")
	assert.Empty(t, buf.String())
}

func TestOutputOptions_Printf(t *testing.T) {
	var buf bytes.Buffer
	opts := &OutputOptions{Format: OutputTable, Writer: &buf}

	opts.Printf("stack ready at %s", "https://10.0.0.5")
	assert.Equal(t, "stack ready at https://10.0.0.5\n", buf.String())
}
