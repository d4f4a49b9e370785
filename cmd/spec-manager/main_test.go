package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
)

func TestPrintSpecs(t *testing.T) {
	var buf bytes.Buffer
	printSpecs(&buf, nil)
	assert.Equal(t, "No specs found in the database.\n", buf.String())

	title := "A very long title that keeps going and going"
	token := "Bearer abc"
	inactive := models.NewOpenAPISpec("weather", "{}", "json")
	inactive.ID = 2
	off := false
	inactive.IsActive = &off
	active := models.NewOpenAPISpec("petstore", "{}", "yaml")
	active.ID = 1
	active.Title = &title
	active.ApiKeyToken = &token

	buf.Reset()
	printSpecs(&buf, []*models.OpenAPISpec{active, inactive})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "petstore")
	assert.Contains(t, lines[2], "A very long title that keep...")
	assert.Contains(t, lines[2], "true")
	assert.True(t, strings.HasSuffix(lines[2], "Yes"))
	assert.Contains(t, lines[3], "false")
	assert.True(t, strings.HasSuffix(lines[3], "No"))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	for _, bad := range []string{"", "x", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.json", "c.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o700))

	files, err := specFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "c.yml"),
	}, files)

	_, err = specFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
