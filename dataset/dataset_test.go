package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCSVWithBOM(t *testing.T) {
	path := writeFile(t, "reviews.csv", "\ufefftext,sentiment\n\"great, really\",positive\nawful,negative\n")

	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "sentiment"}, ds.Columns)
	assert.Equal(t, 2, ds.Len())
	texts, err := ds.Column("text")
	require.NoError(t, err)
	assert.Equal(t, []string{"great, really", "awful"}, texts)
}

func TestLoadTabSeparatedText(t *testing.T) {
	path := writeFile(t, "reviews.txt", "text\tsentiment\nfine\tneutral\n")

	ds, err := Load(path)
	require.NoError(t, err)

	labels, err := ds.Column("sentiment")
	require.NoError(t, err)
	assert.Equal(t, []string{"neutral"}, labels)
}

func TestLoadJSONArray(t *testing.T) {
	path := writeFile(t, "reviews.json", `[{"text":"good","sentiment":2},{"text":"bad","sentiment":0,"extra":true}]`)

	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	labels, err := ds.Column("sentiment")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "0"}, labels)
	extra, err := ds.Column("extra")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "true"}, extra)
}

func TestLoadJSONLines(t *testing.T) {
	path := writeFile(t, "reviews.json", "{\"text\":\"ok\",\"sentiment\":\"neutral\"}\n{\"text\":\"yay\",\"sentiment\":\"positive\"}\n")

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
}

func TestColumnMissing(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("body,label\nx,1\n"), ',')
	require.NoError(t, err)

	_, err = ds.Column("text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), "body, label")
}

func TestReadCSVRejectsWideRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("text\na,b\n"), ',')
	require.Error(t, err)
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), ',')
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "reviews.xlsx", "x")
	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestAllowedExtension(t *testing.T) {
	allowed := []string{"csv", "txt", "json"}
	assert.True(t, AllowedExtension("Data.CSV", allowed))
	assert.True(t, AllowedExtension("a.b.json", allowed))
	assert.False(t, AllowedExtension("notes", allowed))
	assert.False(t, AllowedExtension("evil.exe", allowed))
}
