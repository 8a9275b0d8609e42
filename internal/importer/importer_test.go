package importer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/importer"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

type fakeMemories struct {
	stored  []string
	failOn  string
	offline bool
}

func (f *fakeMemories) AddMemory(_ context.Context, sentence string) (*types.Memory, error) {
	switch {
	case f.offline:
		return nil, embedding.ErrOffline
	case sentence == f.failOn:
		return nil, errors.New("boom")
	}
	f.stored = append(f.stored, sentence)
	return &types.Memory{ID: sentence, Sentence: sentence}, nil
}

func (f *fakeMemories) Memories(context.Context) ([]*types.Memory, error) {
	out := make([]*types.Memory, 0, len(f.stored))
	for _, s := range f.stored {
		out = append(out, &types.Memory{ID: s, Sentence: s})
	}
	return out, nil
}

func writeVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"alpha-note.md": `---
title: Alpha Note
tags: [go, testing]
---

# Alpha Note

I like green tea. It links to [[Beta Note|the other note]] for detail!

- Buy **oat milk** on Friday
- [Call mom](https://example.com) tonight

` + "```go\nfmt.Println(\"not a memory\")\n```\n",
		"projects/beta-note.md": "# Beta Note\n\nThe sky is blue.\n\n---\n\n| a | b |\n",
		"empty.md":              "# Only a heading\n",
		".obsidian/config.md":   "Hidden settings are ignored.",
		"picture.png":           "not markdown",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestParseNote(t *testing.T) {
	note, err := importer.ParseNote([]byte(`---
title: From Frontmatter
---
# Heading

First sentence. Second one? Third [[Target]] here.
A line that continues
the paragraph.

> Quoted wisdom.
1. Numbered item
`), "dir/my_note.md")
	require.NoError(t, err)
	assert.Equal(t, "From Frontmatter", note.Title)
	assert.Equal(t, []string{
		"First sentence.",
		"Second one?",
		"Third Target here.",
		"A line that continues the paragraph.",
		"Quoted wisdom.",
		"Numbered item",
	}, note.Sentences)

	note, err = importer.ParseNote([]byte("plain words here"), "dir/my_note.md")
	require.NoError(t, err)
	assert.Equal(t, "my note", note.Title)

	_, err = importer.ParseNote([]byte("---\n: [bad\n---\nbody"), "bad.md")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSentencesFlattenLinks(t *testing.T) {
	body := "See [[Target]] and [[Other|the alias]] today.\n" +
		"Read [[Guide#Setup]] and [the docs](https://example.com) first.\n" +
		"Diagram ![[chart.png]] here ![logo](logo.png) too."
	assert.Equal(t, []string{
		"See Target and the alias today.",
		"Read Guide and the docs first.",
		"Diagram here too.",
	}, importer.Sentences(body))
}

func TestImport(t *testing.T) {
	dir := writeVault(t)
	mem := &fakeMemories{}
	imp := importer.New(mem, nil)

	result, err := imp.Import(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesFound)
	assert.Equal(t, 2, result.FilesImported)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 5, result.Created)
	assert.ElementsMatch(t, []string{
		"I like green tea.",
		"It links to the other note for detail!",
		"Buy oat milk on Friday",
		"Call mom tonight",
		"The sky is blue.",
	}, mem.stored)

	// Importing again only finds duplicates.
	result, err = imp.Import(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 5, result.Duplicates)
}

func TestImportSingleFileAndFailures(t *testing.T) {
	dir := writeVault(t)
	mem := &fakeMemories{failOn: "The sky is blue."}

	result, err := importer.New(mem, nil).Import(context.Background(), filepath.Join(dir, "projects", "beta-note.md"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesFound)
	assert.Equal(t, 0, result.Created)
	assert.Len(t, result.Errors, 1)

	_, err = importer.New(&fakeMemories{offline: true}, nil).Import(context.Background(), dir)
	assert.ErrorIs(t, err, embedding.ErrOffline)

	_, err = importer.New(mem, nil).Import(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	notes, err := importer.Preview(writeVault(t))
	require.NoError(t, err)
	require.Len(t, notes, 3)

	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		titles = append(titles, n.Title)
	}
	assert.ElementsMatch(t, []string{"Alpha Note", "Beta Note", "Only a heading"}, titles)
}
