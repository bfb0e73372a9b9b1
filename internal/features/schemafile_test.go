package features

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchema(&buf))

	names, err := ReadSchema(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Names[:], names)

	path := filepath.Join(t.TempDir(), "schema.txt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	assert.NoError(t, VerifySchemaFile(path))
}

func TestVerifySchemaFileMismatch(t *testing.T) {
	legacy := "length_url\nlength_hostname\nip\nnb_dots\nnb_hyphens\nnb_at\n" +
		"domain_age\nweb_traffic\ndns_record\ngoogle_index\npage_rank\n"
	path := filepath.Join(t.TempDir(), "schema.txt")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	err := VerifySchemaFile(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "87"))

	assert.Error(t, VerifySchemaFile(filepath.Join(t.TempDir(), "missing.txt")))
}
