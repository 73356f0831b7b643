package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

func TestExcelStoreSaveLoad(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	entries := []models.QAEntry{
		{Question: "What is a goroutine?", Answer: "A lightweight thread."},
		{Question: "Explain defer.", Answer: ""},
	}
	require.NoError(t, store.Save("abc", entries))

	assert.FileExists(t, filepath.Join(store.dir, "interview_abc.xlsx"))

	got, err := store.Load("abc")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestExcelStoreOverwrite(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("abc", []models.QAEntry{{Question: "q1", Answer: "a1"}}))
	require.NoError(t, store.Save("abc", []models.QAEntry{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}))

	got, err := store.Load("abc")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	files, _ := os.ReadDir(store.dir)
	assert.Len(t, files, 1, "temp files should not be left behind")
}

func TestExcelStoreLoadMissing(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExcelStoreDeleteAndList(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("b", nil))
	require.NoError(t, store.Save("a", []models.QAEntry{{Question: "q", Answer: "a"}}))
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "notes.txt"), []byte("x"), 0644))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a"), "deleting twice is not an error")

	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestExcelStoreSaveRequiresID(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save("", nil))
}

func TestExcelStoreRoundTripsUnusualText(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	entries := []models.QAEntry{
		{Question: "control", Answer: "a\x01b\x00c"},
		{Question: "long", Answer: strings.Repeat("é", 40000)},
		{Question: "astral", Answer: strings.Repeat("😀", 20000)},
		{Question: "line endings", Answer: "first\r\nsecond\r"},
		{Question: " padded ", Answer: "\tindented\n"},
		{Question: "escape", Answer: "literal _x0008_ text"},
		{Question: "bad utf-8", Answer: "\xff\xfe"},
		{Question: "noncharacter", Answer: "\uFFFE"},
		{Question: "", Answer: ""},
	}
	require.NoError(t, store.Save("abc", entries))

	got, err := store.Load("abc")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestEncodeRowPlainTextStaysReadable(t *testing.T) {
	assert.Equal(t, []string{"What is a goroutine?", "A lightweight thread."},
		encodeRow(models.QAEntry{Question: "What is a goroutine?", Answer: "A lightweight thread."}))

	cells := encodeRow(models.QAEntry{Question: "q", Answer: strings.Repeat("a", 70000)})
	require.Greater(t, len(cells), 4, "payload should span several cells")
	assert.Equal(t, encodedMarker, cells[2])
	for _, c := range cells[3:] {
		assert.LessOrEqual(t, len(c), 32767)
	}
}

// Saving after the i-th answer and reloading yields exactly the first i entries in order.
func TestExcelStoreCheckpointRoundTrip(t *testing.T) {
	store, err := NewExcelStore(t.TempDir())
	require.NoError(t, err)

	text := rapid.OneOf(
		rapid.String(),
		rapid.StringOf(rapid.RuneFrom([]rune{'\x00', '\x01', '\r', '\n', '\t', ' ', '_', 'x', '0', '\uFFFE'})),
		rapid.StringN(32760, 32800, -1),
	)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(rt, "answers")
		var log []models.QAEntry
		for i := 0; i < n; i++ {
			log = append(log, models.QAEntry{
				Question: rapid.String().Draw(rt, "question"),
				Answer:   text.Draw(rt, "answer"),
			})

			if err := store.Save("prop", log); err != nil {
				rt.Fatalf("Save() error = %v", err)
			}
			got, err := store.Load("prop")
			if err != nil {
				rt.Fatalf("Load() error = %v", err)
			}
			if len(got) != len(log) {
				rt.Fatalf("Load() returned %d entries, want %d", len(got), len(log))
			}
			for j := range log {
				if got[j] != log[j] {
					rt.Fatalf("entry %d = %+v, want %+v", j, got[j], log[j])
				}
			}
		}
	})
}
