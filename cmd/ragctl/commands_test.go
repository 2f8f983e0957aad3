package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streamPDF = "%PDF-1.4\n4 0 obj\n<< /Length 44 >>\nstream\nBT (Introduction to Testing) Tj ET\nendstream\nendobj\n%%EOF"

func writePDF(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestExtractCommand(t *testing.T) {
	out, err := run(t, "extract", writePDF(t, streamPDF))
	require.NoError(t, err)
	assert.Contains(t, out, "segments=1")
	assert.Contains(t, out, "Introduction to Testing")
}

func TestExtractCommandQuiet(t *testing.T) {
	out, err := run(t, "extract", "-q", writePDF(t, streamPDF))
	require.NoError(t, err)
	assert.NotContains(t, out, "segments=")
}

func TestExtractCommandRequiresFile(t *testing.T) {
	_, err := run(t, "extract")
	assert.Error(t, err)

	_, err = run(t, "extract", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestChunkCommandWritesIndex(t *testing.T) {
	outDir := t.TempDir()
	out, err := run(t, "chunk", writePDF(t, streamPDF),
		"--course", "COP3530", "--crn", "12345", "--year", "2025",
		"--instructor", "prof@uni.edu", "--out", outDir, "--id", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks=1")

	matches, err := filepath.Glob(filepath.Join(outDir, "2025", "*", "*", "*doc-1.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChunkCommandNeedsCourse(t *testing.T) {
	_, err := run(t, "chunk", writePDF(t, streamPDF), "--out", t.TempDir())
	assert.Error(t, err)
}
