package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore keeps the files uploaded through upload and image controls.
type BlobStore interface {
	// Put stores r under a fresh key ending in name and returns the key, the
	// size and the sha256 of the content.
	Put(name string, r io.Reader) (key string, size int64, sum string, err error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type LocalBlobStore struct {
	Root string
}

var ErrBadKey = errors.New("invalid blob key")

func (s *LocalBlobStore) Put(name string, r io.Reader) (string, int64, string, error) {
	now := time.Now().UTC()
	key := path.Join(fmt.Sprintf("%04d/%02d", now.Year(), int(now.Month())), randomHex(16), name)
	full := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return "", 0, "", err
	}
	return key, n, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *LocalBlobStore) Open(key string) (*os.File, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *LocalBlobStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// path maps key into Root, refusing keys that escape it.
func (s *LocalBlobStore) path(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(key, "/"))
	if clean == "/" || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", ErrBadKey
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean[1:])), nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
