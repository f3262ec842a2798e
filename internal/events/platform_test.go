package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/units"
)

const slowPlatforms = `{
  "VSH-SNPD": {"section": "VSH-SNPD", "station": "VSH", "platform_length_km": 0.268},
  "VSH-MNKD": {"section": "VSH-MNKD", "station": "VSH", "platform_length_km": 0.264},
  "KURLA-CLA": {"section": "KURLA-CLA", "station": "CLA", "platform_length_km": 0.3},
  "DR-PR_PR": {"section": "DR-PR", "station": "PR", "platform_length_km": 0.25}
}`

const fastPlatforms = `{
  "VSH-SNPD": {"section": "VSH-SNPD", "station": "VSH", "platform_length_km": 0.27},
  "DR-BY": {"section": "DR-BY", "station": "BY", "platform_length_km": 0.28}
}`

func platformTable(t *testing.T) PlatformTable {
	t.Helper()
	tbl, err := ReadPlatformTable(strings.NewReader(slowPlatforms))
	require.NoError(t, err)
	return tbl
}

func points(pairs ...float64) []spm.Sample {
	out := make([]spm.Sample, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, spm.Sample{CumulativeDistance: pairs[i], Speed: pairs[i+1]})
	}
	return out
}

func TestPlatformEntrySpeeds_MeterScale(t *testing.T) {
	t.Parallel()

	halts := map[string]float64{"MNKD": 250, "VSH": 500, "SNPD": 750}
	samples := points(200, 40, 232, 27, 260, 10, 500, 0)

	got := PlatformEntrySpeeds(halts, []string{"MNKD", "VSH", "SNPD"}, samples, platformTable(t), PlatformOptions{Scale: units.Meters})
	require.Len(t, got, 1)

	vsh := got[0]
	assert.Equal(t, "VSH", vsh.Station)
	assert.Equal(t, "VSH-SNPD", vsh.Section)
	assert.Equal(t, 27.0, vsh.EntrySpeed)
	assert.InDelta(t, 0.232, vsh.EntryKM, 1e-9)
	assert.InDelta(t, 0.5, vsh.HaltKM, 1e-9)
	assert.InDelta(t, 0, vsh.EntryGapM, 1e-9)
	assert.Equal(t, 0.0, vsh.MidPlatformSpeed, "first sample past 370 m is the halt")
	assert.InDelta(t, 130, vsh.MidGapM, 1e-9)
	assert.Equal(t, 0.0, vsh.OneCoachSpeed)
}

func TestPlatformEntrySpeeds_KilometerScale(t *testing.T) {
	t.Parallel()

	halts := map[string]float64{"MNKD": 12.0, "VSH": 12.5, "SNPD": 13.0}
	samples := points(12.0, 45, 12.232, 33, 12.5, 5)

	got := PlatformEntrySpeeds(halts, []string{"MNKD", "VSH", "SNPD"}, samples, platformTable(t), PlatformOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, 33.0, got[0].EntrySpeed)
	assert.InDelta(t, 12.5-0.268, got[0].EntryKM, 1e-9)
	assert.Equal(t, "VSH-SNPD", got[0].Section)
}

func TestPlatformEntrySpeeds_SectionFallbacks(t *testing.T) {
	t.Parallel()

	tbl := platformTable(t)
	samples := points(0, 0, 1000, 60, 2500, 50, 4600, 30, 4900, 0)

	t.Run("section station variant", func(t *testing.T) {
		t.Parallel()
		halts := map[string]float64{"DR": 0, "PR": 4900}
		got := PlatformEntrySpeeds(halts, []string{"DR", "PR"}, samples, tbl, PlatformOptions{Scale: units.Meters})
		require.Len(t, got, 1)
		assert.Equal(t, "DR-PR", got[0].Section)
		assert.Equal(t, 0.25, got[0].PlatformLengthKM)
	})

	t.Run("any section for the station", func(t *testing.T) {
		t.Parallel()
		halts := map[string]float64{"SION": 0, "CLA": 4900}
		got := PlatformEntrySpeeds(halts, []string{"SION", "CLA"}, samples, tbl, PlatformOptions{Scale: units.Meters})
		require.Len(t, got, 1)
		assert.Equal(t, "KURLA-CLA", got[0].Section)
		assert.Equal(t, 30.0, got[0].EntrySpeed)
	})

	t.Run("unknown platform and origin are skipped", func(t *testing.T) {
		t.Parallel()
		halts := map[string]float64{"VSH": 5, "XYZ": 4900}
		assert.Empty(t, PlatformEntrySpeeds(halts, []string{"VSH", "XYZ"}, samples, tbl, PlatformOptions{Scale: units.Meters}))
	})
}

func TestSampleAtDistance(t *testing.T) {
	t.Parallel()

	samples := points(100, 10, 200, 20, 300, 30)
	assert.Equal(t, 20.0, SampleAtDistance(samples, 150).Speed)
	assert.Equal(t, 20.0, SampleAtDistance(samples, 200).Speed)
	assert.Equal(t, 10.0, SampleAtDistance(samples, 0).Speed)
	assert.Equal(t, 30.0, SampleAtDistance(samples, 999).Speed)
}

func TestPlatformStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slow_isd.json"), []byte(slowPlatforms), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fast_isd.json"), []byte(fastPlatforms), 0o644))

	store := NewPlatformStore(dir)

	fast, err := store.Table(corridor.ClassFast)
	require.NoError(t, err)
	assert.Len(t, fast, 5)
	assert.Equal(t, 0.27, fast["VSH-SNPD"].PlatformLengthKM, "fast entries take precedence")

	slow, err := store.Table(corridor.ClassTHB)
	require.NoError(t, err)
	assert.Len(t, slow, 4)
	assert.Equal(t, 0.268, slow["VSH-SNPD"].PlatformLengthKM)

	_, err = NewPlatformStore(t.TempDir()).Table(corridor.ClassSlow)
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty, err := NewPlatformStore(t.TempDir()).Table(corridor.ClassFast)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
