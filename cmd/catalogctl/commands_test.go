package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordFromStdin(t *testing.T) {
	root := newRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("s3cret\n"))
	root.SetArgs([]string{"hash-password"})
	require.NoError(t, root.Execute())

	hash := strings.TrimSpace(out.String())
	ok, err := argon2id.ComparePasswordAndHash("s3cret", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	root := newRootCmd(zerolog.Nop())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"hash-password"})
	require.Error(t, root.Execute())
}

func TestMigrateDownRequiresSubcommandFlags(t *testing.T) {
	root := newRootCmd(zerolog.Nop())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "down", "extra"})
	require.Error(t, root.Execute())
}
