package locale

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"en.yaml":   "crud:\n  created: Saved\n  select_at_least_one: Select at least one row\non: Active\noff: Inactive\ngreeting: Hello, {name}\n",
		"de.yml":    "crud:\n  created: Gespeichert\n",
		"notes.txt": "ignored",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCatalogs(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "en"}, c.Languages())
	assert.Equal(t, "Saved", c["en"]["crud.created"])
	// yaml.v3 keeps on/off as string keys
	assert.Equal(t, "Active", c["en"]["on"])
}

func TestTranslatorFallback(t *testing.T) {
	c, err := Load(writeCatalogs(t))
	require.NoError(t, err)
	de := c.Translator("de", "en")
	assert.Equal(t, "Gespeichert", de.Translate("crud.created", nil))
	assert.Equal(t, "Select at least one row", de.Translate("crud.select_at_least_one", nil))
	assert.Equal(t, "Hello, Ann", de.Translate("greeting", map[string]any{"name": "Ann"}))
	assert.Equal(t, "crud.unknown", de.Translate("crud.unknown", nil))

	assert.Equal(t, "crud.created", c.Translator("fr").Translate("crud.created", nil))
	assert.Equal(t, "crud.created", Keys{}.Translate("crud.created", nil))
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
