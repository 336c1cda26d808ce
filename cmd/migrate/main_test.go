package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	ups, downs int
	closed     bool
	version    uint
	dirty      bool
	err        error
}

func (f *fakeMigrator) Up() error   { f.ups++; return f.err }
func (f *fakeMigrator) Down() error { f.downs++; return f.err }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.err
}
func (f *fakeMigrator) Close() error { f.closed = true; return nil }

func runCmd(t *testing.T, fake *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()
	var gotURL string
	cmd := newRootCmd(func(url string) (migrator, error) {
		gotURL = url
		return fake, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), gotURL, err
}

func TestMigrateCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantOut  string
		wantUps  int
		wantDown int
	}{
		{name: "up", args: []string{"up"}, wantOut: "Migrations completed successfully", wantUps: 1},
		{name: "down", args: []string{"down"}, wantOut: "Migrations reverted", wantDown: 1},
		{name: "version", args: []string{"version"}, wantOut: "version=1 dirty=false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMigrator{version: 1}
			args := append(tt.args, "--database-url", "postgres://u:p@localhost/db")
			out, url, err := runCmd(t, fake, args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantOut)
			assert.Equal(t, "postgres://u:p@localhost/db", url)
			assert.Equal(t, tt.wantUps, fake.ups)
			assert.Equal(t, tt.wantDown, fake.downs)
			assert.True(t, fake.closed)
		})
	}
}

func TestMigrateCmd_UsesEnvURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@localhost/db")
	_, url, err := runCmd(t, &fakeMigrator{}, "up")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@localhost/db", url)
}

func TestMigrateCmd_RequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	fake := &fakeMigrator{}
	_, _, err := runCmd(t, fake, "up")
	require.Error(t, err)
	assert.Equal(t, 0, fake.ups)
}

func TestMigrateCmd_PropagatesErrors(t *testing.T) {
	fake := &fakeMigrator{err: errors.New("dirty database")}
	_, _, err := runCmd(t, fake, "up", "--database-url", "postgres://x")
	require.Error(t, err)
	assert.True(t, fake.closed)
}
