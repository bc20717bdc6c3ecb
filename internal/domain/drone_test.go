package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(testZone)
	require.NoError(t, err)
	return n
}

func TestParseDroneRow(t *testing.T) {
	n := testNormalizer(t)

	t.Run("local wall clock row", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColLocalDate:     "2023-11-01",
			ColLocalTime:     "10:39:22.316 AM",
			ColWindSpeed:     "8.5",
			ColWindDirection: "270",
			ColMaxWindSpeed:  "11.2",
		}, n)
		require.NoError(t, err)

		assert.Equal(t, "2023-11-01T17:39:22.316Z", FormatCanonical(s.Instant))
		assert.Equal(t, "2023-11-01 10:39:22.316 AM", s.RawTimestamp)
		require.NotNil(t, s.WindSpeed)
		assert.Equal(t, 8.5, *s.WindSpeed)
		require.NotNil(t, s.WindDirection)
		assert.Equal(t, 270.0, *s.WindDirection)
		gust, ok := s.Field(ColMaxWindSpeed)
		require.True(t, ok)
		assert.Equal(t, 11.2, gust)

		assert.False(t, s.TrueWind.Compensated, "no heading column means no compensation")
		require.NotNil(t, s.TrueWind.Speed)
		assert.Equal(t, 8.5, *s.TrueWind.Speed)
	})

	t.Run("utc column takes precedence", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColDroneUTC:  "2023-11-01T17:39:22.316Z",
			ColLocalDate: "1999-01-01",
			ColLocalTime: "1:00:00 AM",
			ColWindSpeed: "4",
		}, n)
		require.NoError(t, err)
		assert.Equal(t, "2023-11-01T17:39:22.316Z", FormatCanonical(s.Instant))
	})

	t.Run("platform velocity applied", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColDroneUTC:       "2023-11-01T17:39:22.316Z",
			ColWindSpeed:      "10",
			ColWindDirection:  "90",
			ColDroneSpeedMPH:  "10",
			"Drone_Direction": "90",
		}, n)
		require.NoError(t, err)
		require.NotNil(t, s.Heading)
		assert.Equal(t, 90.0, *s.Heading)
		assert.True(t, s.TrueWind.Compensated)
		require.NotNil(t, s.TrueWind.Speed)
		assert.InDelta(t, 0.0, *s.TrueWind.Speed, 1e-9)
	})

	t.Run("metric platform speed converted to mph", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColDroneUTC:          "2023-11-01T17:39:22.316Z",
			ColDroneSpeedMS:      "2",
			"CUSTOM.heading (°)": "45",
		}, n)
		require.NoError(t, err)
		require.NotNil(t, s.PlatformSpeed)
		assert.InDelta(t, 4.474, *s.PlatformSpeed, 1e-9)
		require.NotNil(t, s.Heading)
		assert.Equal(t, 45.0, *s.Heading)
	})

	t.Run("heading column order", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColDroneUTC:       "2023-11-01T17:39:22.316Z",
			"CUSTOM.yaw [°]":  "10",
			"Drone_Direction": "20",
		}, n)
		require.NoError(t, err)
		require.NotNil(t, s.Heading)
		assert.Equal(t, 20.0, *s.Heading)
	})

	t.Run("empty and bad cells are absent", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{
			ColDroneUTC:      "2023-11-01T17:39:22.316Z",
			ColWindSpeed:     "",
			ColWindDirection: "north",
		}, n)
		require.NoError(t, err)
		assert.Nil(t, s.WindSpeed)
		assert.Nil(t, s.WindDirection)
		assert.Nil(t, s.TrueWind.Speed)
	})

	t.Run("missing timestamp columns", func(t *testing.T) {
		_, err := ParseDroneRow(map[string]string{ColWindSpeed: "3"}, n)
		require.ErrorIs(t, err, ErrNoTimestampColumns)
	})

	t.Run("bad utc value", func(t *testing.T) {
		s, err := ParseDroneRow(map[string]string{ColDroneUTC: "soon"}, n)
		require.ErrorIs(t, err, ErrInvalidTimestamp)
		assert.Equal(t, "soon", s.RawTimestamp)
		assert.False(t, s.HasInstant())
	})

	t.Run("skipped local time", func(t *testing.T) {
		_, err := ParseDroneRow(map[string]string{
			ColLocalDate: "2024-03-10",
			ColLocalTime: "2:30:00 AM",
		}, n)
		require.ErrorIs(t, err, ErrNonexistentLocalTime)
	})
}

func TestParseDroneLog(t *testing.T) {
	n := testNormalizer(t)
	rows := []map[string]string{
		{ColLocalDate: "2023-11-01", ColLocalTime: "10:39:22 AM", ColWindSpeed: "5"},
		{ColWindSpeed: "5"},
		{ColLocalDate: "2024-11-03", ColLocalTime: "1:30:00 AM", ColWindSpeed: "5"},
		{ColDroneUTC: "2023-11-01T17:40:00Z", ColWindSpeed: "6"},
	}

	samples, stats, rowErrs := ParseDroneLog(rows, n)

	assert.Equal(t, ParseStats{Total: 4, ParseFailures: 1, TimestampFailures: 1}, stats)
	require.Len(t, samples, 2)
	require.Len(t, rowErrs, 2)
	assert.Equal(t, 1, rowErrs[0].Row)
	assert.ErrorIs(t, rowErrs[0], ErrNoTimestampColumns)
	assert.Equal(t, 2, rowErrs[1].Row)
	assert.ErrorIs(t, rowErrs[1], ErrAmbiguousLocalTime)
	assert.Contains(t, rowErrs[1].Error(), "row 2")
}
