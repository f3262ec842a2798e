package spm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_HeaderWithTimeColumn(t *testing.T) {
	t.Parallel()

	in := "DATE,Time,Speed (km/h),Distance\n" +
		"01/03/2024,10:00:00,0,0\n" +
		"01/03/2024,10:00:01,12,3.3\n"

	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, RawSample{Date: "01/03/2024", Time: "10:00:01", Speed: "12", Distance: "3.3"}, rows[1])
}

func TestReadCSV_CombinedDateTime(t *testing.T) {
	t.Parallel()

	in := "DateTime,Speed,Dist\n" +
		"2024-03-01 10:00:00,0,0\n" +
		"2024-03-01 10:00:01,15,4\n"

	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-01", rows[1].Date)
	assert.Equal(t, "10:00:01", rows[1].Time)
}

func TestReadCSV_Headerless(t *testing.T) {
	t.Parallel()

	in := "2024-03-01 10:00:00,0,0\n\n2024-03-01 10:00:01,15,4\n"

	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "15", rows[1].Speed)
	assert.Equal(t, "4", rows[1].Distance)

	run := Clean(rows)
	assert.Equal(t, 2, run.Len())
	assert.Equal(t, 1.0, run.Samples[1].Timestamp)
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyLog)

	_, err = ReadCSV(strings.NewReader("Date,Velocity,Distance\n1,2,3\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestReadCSVFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "run.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Time,Speed,Distance\nd,10:00:00,1,2\n"), 0o644))

	rows, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = ReadCSVFile(filepath.Join(dir, "run.xlsx"))
	assert.Error(t, err)
}
