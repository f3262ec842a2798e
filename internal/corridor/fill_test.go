package corridor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillFromSlow(t *testing.T) {
	t.Parallel()

	slow, err := New("UPSLOWLOCALS", []string{"CSMT", "MSD", "BY", "PR", "DR"}, []Record{
		NewRecord("1", []float64{0, 1000, 3000, 3600, 1200}, 5),
		NewRecord("2", []float64{0, 1100, 3100, 3700, 1300}, 5),
	})
	require.NoError(t, err)

	fast, err := New("UPFASTLOCALS", []string{"CSMT", "BY", "DR"}, []Record{
		NewRecord("1", []float64{0, 0, 0}, 3),
		NewRecord("2", []float64{0, 4050, 0}, 3),
		NewRecord("3", []float64{0, 0, 4900}, 3),
	})
	require.NoError(t, err)

	got := FillFromSlow(fast, slow)

	assert.Equal(t, []float64{0, 4000, 4800}, got.Records[0].ISD)
	assert.Equal(t, []float64{0, 4050, 5000}, got.Records[1].ISD)
	assert.Equal(t, []float64{0, 4000, 4900}, got.Records[2].ISD, "extra fast records pair with the first slow record")
	assert.Equal(t, []float64{0, 4000, 8800}, got.Records[0].Cumulative)

	assert.Equal(t, []float64{0, 0, 0}, fast.Records[0].ISD, "input must not change")
}

func TestFillFromSlow_UnknownStationStaysZero(t *testing.T) {
	t.Parallel()

	slow, err := New("S", []string{"A", "B"}, []Record{NewRecord("1", []float64{0, 500}, 2)})
	require.NoError(t, err)
	fast, err := New("F", []string{"A", "Q"}, []Record{NewRecord("1", nil, 2)})
	require.NoError(t, err)

	got := FillFromSlow(fast, slow)
	assert.Equal(t, []float64{0, 0}, got.Records[0].ISD)
	assert.Same(t, fast, FillFromSlow(fast, nil))
}
