package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/internal/glaciertest"
	"github.com/bsaid97/go-glacier-merger/inventory"
	"github.com/bsaid97/go-glacier-merger/workflow"
)

func writeInventory(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root, candidates := glaciertest.Scenario()
	for _, g := range append([]glacier.Glacier{root}, candidates...) {
		data, err := inventory.Encode(g, nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, g.ID()+".json"), data, 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append(args, "--log-level", "error"))
	err := RootCmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check", "--inventory", writeInventory(t))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMergeCommand(t *testing.T) {
	dir := writeInventory(t)
	out := t.TempDir()
	reportPath := filepath.Join(out, "report.yaml")
	shapefilePath := filepath.Join(out, "network.zip")
	outlinesPath := filepath.Join(out, "outlines.geojson")

	_, err := run(t, "merge",
		"--inventory", dir,
		"--main", glaciertest.RootID,
		"--primary", glaciertest.RootID,
		"--report", reportPath,
		"--shapefile", shapefilePath,
		"--outlines", outlinesPath,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report workflow.Report
	require.NoError(t, yaml.Unmarshal(data, &report))
	require.Len(t, report.Entities, 1)
	assert.Equal(t, []string{glaciertest.RootID, glaciertest.TributaryID, glaciertest.SecondID}, report.Entities[0].Members)

	assert.FileExists(t, shapefilePath)
	assert.FileExists(t, outlinesPath)
}

func TestMergeCommandRequiresInventory(t *testing.T) {
	_, err := run(t, "merge", "--inventory", "")
	assert.Error(t, err)
}

func TestPreRunStoresSessionOnContext(t *testing.T) {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	assert.Nil(t, sessionOf(c))

	require.NoError(t, RootCmd.PersistentPreRunE(c, nil))
	s := sessionOf(c)
	require.NotNil(t, s)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.fs)
	assert.Equal(t, 40, s.cfg.Border)

	other := &cobra.Command{}
	other.SetContext(context.Background())
	assert.Nil(t, sessionOf(other), "sessions are not shared between commands")
}
