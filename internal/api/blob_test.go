package api

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore(t *testing.T) {
	s := &LocalBlobStore{Root: t.TempDir()}

	key, size, sum, err := s.Put("a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	assert.True(t, strings.HasSuffix(key, "/a.txt"))

	f, err := s.Open(key)
	require.NoError(t, err)
	b, _ := io.ReadAll(f)
	f.Close()
	assert.Equal(t, "hello", string(b))

	require.NoError(t, s.Delete(key))
	_, err = s.Open(key)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, bad := range []string{"", "/", "../x", "a/../../x", "a//b"} {
		_, err := s.Open(bad)
		assert.ErrorIs(t, err, ErrBadKey, bad)
	}
}
