package training

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestStatsWriterHeaderAndRows(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "training_stats.csv")

	sw, err := NewStatsWriter(path)
	require.NoError(t, err)

	require.NoError(t, sw.Append(StatsRow{Round: 0, Loss: 2.25, ValueLoss: 0.25, PolicyLoss: 2, BufferSize: 7}))
	require.NoError(t, sw.Append(StatsRow{Round: 1, Loss: 1.125, ValueLoss: 0.125, PolicyLoss: 1, BufferSize: 9}))
	require.NoError(t, sw.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"round", "loss", "value_loss", "policy_loss", "buffer_size"}, rows[0])
	assert.Equal(t, []string{"0", "2.25", "0.25", "2", "7"}, rows[1])
	assert.Equal(t, []string{"1", "1.125", "0.125", "1", "9"}, rows[2])
}

func TestStatsWriterAppendsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "training_stats.csv")

	sw, err := NewStatsWriter(path)
	require.NoError(t, err)
	require.NoError(t, sw.Append(StatsRow{Round: 0, Loss: 1, BufferSize: 1}))
	require.NoError(t, sw.Close())

	// Reopening must not duplicate the header.
	sw, err = NewStatsWriter(path)
	require.NoError(t, err)
	require.NoError(t, sw.Append(StatsRow{Round: 1, Loss: 0.5, BufferSize: 2}))
	require.NoError(t, sw.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "round", rows[0][0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "1", rows[2][0])
}
