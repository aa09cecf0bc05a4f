// cmd/intellinspect/inspect_test.go
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyCSV = `date,temp,Response
2024-01-01,70,0
2024-01-02,71,0
2024-01-03,90,1
2024-01-04,72,0
2024-01-05,70,0
2024-01-06,95,1
`

func writeCSV(t *testing.T) string {
	t.Helper()
	t.Setenv("INTELLINSPECT_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "line.csv")
	require.NoError(t, os.WriteFile(path, []byte(dailyCSV), 0600))
	return path
}

func TestProfileCommand(t *testing.T) {
	path := writeCSV(t)

	cmd := profileCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	var p dataset.Profile
	require.NoError(t, json.Unmarshal(out.Bytes(), &p))
	assert.Equal(t, 6, p.RowCount)
	assert.Equal(t, "line", p.Name)
	assert.InDelta(t, 4.0/6*100, p.PassRate, 1e-9)
	assert.Equal(t, "date", p.TimestampColumn)
}

func TestPartitionCommand(t *testing.T) {
	path := writeCSV(t)

	t.Run("valid split", func(t *testing.T) {
		cmd := partitionCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{path,
			"--training", "2024-01-01,2024-01-02",
			"--testing", "2024-01-03,2024-01-04",
			"--simulation", "2024-01-05,2024-01-06",
		})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), `"valid": true`)
	})

	t.Run("overlap fails with every error printed", func(t *testing.T) {
		cmd := partitionCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{path,
			"--training", "2024-01-01,2024-01-03",
			"--testing", "2024-01-02,2024-01-04",
			"--simulation", "2024-01-05,2024-01-09",
		})
		require.Error(t, cmd.Execute())
		assert.Contains(t, out.String(), "training period must end before testing period starts")
		assert.Contains(t, out.String(), "simulation period cannot end after dataset end date")
	})
}

func TestParseWindowFlag(t *testing.T) {
	w, err := parseWindowFlag("training", "2024-01-01T00:00:00Z,2024-01-02 12:00")
	require.NoError(t, err)
	assert.Equal(t, 2024, w.Start.Year())
	assert.Equal(t, 12, w.End.Hour())

	_, err = parseWindowFlag("training", "2024-01-01")
	assert.Error(t, err)

	_, err = parseWindowFlag("testing", "later,2024-01-01")
	assert.ErrorContains(t, err, "--testing")
}
