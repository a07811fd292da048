package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(":memory:"))
	t.Cleanup(func() { Close() })
}

func TestUninitialized(t *testing.T) {
	Close()
	assert.ErrorIs(t, InsertReading(&Reading{}), ErrNotInitialized)
	_, err := LatestReading("")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, Ping(), ErrNotInitialized)
}

func TestInsertAndLatestReading(t *testing.T) {
	setup(t)

	_, err := LatestReading("")
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, InsertReading(&Reading{MaxBPM: 120, AvgBPM: 80, MinBPM: 60, HeartifyID: "dev-a", CreatedAt: base}))
	require.NoError(t, InsertReading(&Reading{MaxBPM: 140, AvgBPM: 90, MinBPM: 65, HeartifyID: "dev-b", CreatedAt: base.Add(time.Minute)}))

	latest, err := LatestReading("")
	require.NoError(t, err)
	assert.Equal(t, 140.0, latest.MaxBPM)
	assert.Equal(t, "dev-b", latest.HeartifyID)
	assert.NotEmpty(t, latest.ID)

	latestA, err := LatestReading("dev-a")
	require.NoError(t, err)
	assert.Equal(t, 120.0, latestA.MaxBPM)
	assert.True(t, latestA.CreatedAt.Equal(base))
}

func TestReadingsBetweenAndRetention(t *testing.T) {
	setup(t)

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{-2 * time.Hour, time.Hour, 5 * time.Hour, 25 * time.Hour} {
		require.NoError(t, InsertReading(&Reading{MaxBPM: float64(100 + i), AvgBPM: 70, MinBPM: 50, CreatedAt: day.Add(offset)}))
	}

	readings, err := ReadingsBetween(day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 101.0, readings[0].MaxBPM)
	assert.Equal(t, 102.0, readings[1].MaxBPM)

	deleted, err := DeleteReadingsBefore(day)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	readings, err = ReadingsBetween(day.Add(-48*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, readings, 3)
}

func TestUsers(t *testing.T) {
	setup(t)

	u := &User{Username: "ada", Email: "ada@example.com", PasswordHash: "hash", HeartifyID: "HF-1"}
	require.NoError(t, CreateUser(u))
	require.NotEmpty(t, u.ID)

	byEmail, err := FindUserByEmail("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := FindUserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "HF-1", byID.HeartifyID)

	byDevice, err := FindUserByHeartifyID("HF-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", byDevice.Username)

	_, err = FindUserByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	err = CreateUser(&User{Username: "eve", Email: "ada@example.com", PasswordHash: "x", HeartifyID: "HF-2"})
	assert.ErrorIs(t, err, ErrDuplicate)
	err = CreateUser(&User{Username: "eve", Email: "eve@example.com", PasswordHash: "x", HeartifyID: "HF-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}
