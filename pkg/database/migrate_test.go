package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	names, err := fs.Glob(embeddedMigrations, embeddedDir+"/*.sql")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(names), 2)
	for _, name := range names {
		body, err := fs.ReadFile(embeddedMigrations, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestClassRollIsUniqueIgnoringCase(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, embeddedDir+"/00002_class_roll_case_insensitive.sql")
	require.NoError(t, err)
	up := strings.SplitN(string(body), "-- +goose Down", 2)[0]
	assert.Contains(t, up, "CREATE UNIQUE INDEX IF NOT EXISTS users_class_roll_upper_key ON users (UPPER(class_roll))")
}
