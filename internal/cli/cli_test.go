package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/squall/internal/bench/engine"
)

const shortRunYAML = `
name: cli-smoke
timing:
  rampUp: 50ms
  duration: 300ms
  rampDown: 50ms
sampling:
  strategy: all
  seed: 7
shutdown:
  agentJoin: 1s
  asyncDrain: 1s
  scoreboard: 2s
targets:
  - name: web
    generator: sample
    openLoopProbability: 0.2
    meanThinkTime: 5ms
    meanCycleTime: 5ms
    params:
      operations:
        - name: browse
          latency: 1ms
        - name: buy
          latency: 2ms
          weight: 0.5
    schedule:
      - interval: 200ms
        users: 2
        name: busy
      - interval: 100ms
        users: 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeConfig(t, shortRunYAML)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	htmlPath := filepath.Join(t.TempDir(), "report.html")

	stdout, stderr, err := execute(t, "run", "--config", cfgPath, "--json", reportPath, "--html", htmlPath,
		"--no-color", "--intervals", "--log-format", "json", "--log-level", "info")
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "cli-smoke - Completed ✓")
	assert.Contains(t, stdout, "Target web [sample]")
	assert.Contains(t, stdout, "Intervals:")
	assert.Contains(t, stderr, `"msg":"benchmark finished"`)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var report engine.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "cli-smoke", report.Name)
	require.NotNil(t, report.Target("web"))
	assert.Greater(t, report.Target("web").OperationsIssued, int64(0))
	assert.Greater(t, report.Global.TotalOpsSuccessful, int64(0))

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "cli-smoke - Benchmark Report")
}

func TestRunCommandErrors(t *testing.T) {
	valid := writeConfig(t, shortRunYAML)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing config flag", args: []string{"run"}, wantErr: `required flag(s) "config" not set`},
		{name: "missing file", args: []string{"run", "-c", filepath.Join(t.TempDir(), "nope.yaml")}, wantErr: "error loading config"},
		{name: "bad log level", args: []string{"run", "-c", valid, "--log-level", "loud"}, wantErr: "invalid log level"},
		{name: "wait without listen", args: []string{"run", "-c", valid, "--wait-for-start"}, wantErr: "requires a control listen address"},
		{name: "unknown generator", args: []string{"run", "-c", writeConfig(t, `
timing: {duration: 1s}
targets:
  - generator: nope
    schedule: [{interval: 1s, users: 1}]
`)}, wantErr: "unknown generator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeConfig(t, shortRunYAML)
		stdout, _, err := execute(t, "validate", "-c", path, "--no-color")
		require.NoError(t, err)
		assert.Contains(t, stdout, "✓ "+path+" is valid: 1 target(s) [web], run length 400ms")
	})

	t.Run("warnings", func(t *testing.T) {
		path := writeConfig(t, `
timing: {duration: 1s}
targets:
  - name: web
    generator: sample
    mixes: [default]
    schedule:
      - {interval: 1s, users: 1, mix: other}
`)
		stdout, _, err := execute(t, "validate", "-c", path, "--no-color")
		require.NoError(t, err)
		assert.Contains(t, stdout, "! ")
		assert.Contains(t, stdout, "is valid")
	})

	t.Run("schema violation", func(t *testing.T) {
		path := writeConfig(t, `
timing: {duration: 1s}
targets:
  - generator: sample
    openLoopProbability: 2
    schedule: [{interval: 1s, users: 1}]
`)
		_, _, err := execute(t, "validate", "-c", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openLoopProbability")
	})
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "squall "+version)
}

func TestRootHelp(t *testing.T) {
	stdout, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "run")
	assert.Contains(t, stdout, "validate")
}
