package portfolio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseReadsEntriesInOrder(t *testing.T) {
	data := []byte("Techstack,Links\n" +
		"\"React, Node.js, MongoDB\",https://example.com/react-portfolio\n" +
		"\"Python, Django, MySQL\",https://example.com/python-portfolio\n")

	corpus, err := NewReader(nil).Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Techstack: "React, Node.js, MongoDB", Links: "https://example.com/react-portfolio"},
		{Techstack: "Python, Django, MySQL", Links: "https://example.com/python-portfolio"},
	}, corpus.Entries)
	assert.Empty(t, corpus.Rejected)
}

func TestParseHeaderIsCaseInsensitiveAndIgnoresExtraColumns(t *testing.T) {
	data := []byte("id, links ,TECHSTACK,notes\n1,https://example.com/go,Go,internal\n")

	corpus, err := NewReader(nil).Parse(data)
	require.NoError(t, err)
	require.Len(t, corpus.Entries, 1)
	assert.Equal(t, Entry{Techstack: "Go", Links: "https://example.com/go"}, corpus.Entries[0])
}

func TestParseQuarantinesInvalidRows(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	data := []byte("Techstack,Links\n" +
		"Go,https://example.com/go\n" +
		"   ,https://example.com/blank\n" +
		",,\n" +
		"Rust\n")

	corpus, err := NewReader(zap.New(core)).Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []Entry{{Techstack: "Go", Links: "https://example.com/go"}}, corpus.Entries)
	require.Len(t, corpus.Rejected, 2)
	assert.Equal(t, 3, corpus.Rejected[0].Row)
	assert.Contains(t, corpus.Rejected[0].Reason, "Techstack")
	assert.Equal(t, 5, corpus.Rejected[1].Row)
	assert.Contains(t, corpus.Rejected[1].Reason, "Links")
	assert.Equal(t, 2, logs.FilterMessage("portfolio row rejected").Len())
}

func TestParseMissingColumns(t *testing.T) {
	_, err := NewReader(nil).Parse([]byte("Skills,Links\nGo,https://example.com\n"))
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestParseEmptyFile(t *testing.T) {
	_, err := NewReader(nil).Parse(nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestParseHeaderOnlyYieldsNoEntries(t *testing.T) {
	corpus, err := NewReader(nil).Parse([]byte("Techstack,Links\n"))
	require.NoError(t, err)
	assert.NotNil(t, corpus.Entries)
	assert.Empty(t, corpus.Entries)
}

func TestParseStripsUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Techstack,Links\nGo,https://example.com/go\n")...)

	corpus, err := NewReader(nil).Parse(data)
	require.NoError(t, err)
	require.Len(t, corpus.Entries, 1)
	assert.Equal(t, "Go", corpus.Entries[0].Techstack)
}

func TestParseLatin1File(t *testing.T) {
	// "Développement Python, Sécurité" encoded as ISO-8859-1.
	row := []byte("D\xe9veloppement Python, S\xe9curit\xe9 r\xe9seau et donn\xe9es,https://example.com/fr\n")
	data := append([]byte("Techstack,Links\n"), row...)

	corpus, err := NewReader(nil).Parse(data)
	require.NoError(t, err)
	require.Len(t, corpus.Entries, 1)
	assert.Contains(t, corpus.Entries[0].Techstack, "Python")
	assert.Equal(t, "https://example.com/fr", corpus.Entries[0].Links)
}

func TestDecodeUTF8(t *testing.T) {
	text, charset, err := Decode([]byte("Techstack,Links\nKünstliche Intelligenz,https://example.com/ki\n"))
	require.NoError(t, err)
	assert.Equal(t, "UTF-8", charset)
	assert.Contains(t, text, "Künstliche")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.csv")
	require.NoError(t, os.WriteFile(path, []byte("Techstack,Links\nGo,https://example.com/go\n"), 0o600))

	corpus, err := NewReader(nil).ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, corpus.Entries, 1)

	_, err = NewReader(nil).ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
