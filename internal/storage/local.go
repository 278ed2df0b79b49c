// Package storage keeps uploaded application files on local disk and hands
// out short-lived signed URLs for them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/soaringjerry/intake/internal/services"
)

const (
	opUpload   = "put"
	opDownload = "get"
)

var ErrTooLarge = errors.New("storage: file exceeds the upload limit")

type objectClaims struct {
	Key string `json:"key"`
	Op  string `json:"op"`
	jwt.RegisteredClaims
}

// LocalStore implements services.ObjectStorage on a directory.
type LocalStore struct {
	root     string
	baseURL  string
	secret   []byte
	ttl      time.Duration
	maxBytes int64
	logger   *log.Logger
	now      func() time.Time
}

var _ services.ObjectStorage = (*LocalStore)(nil)

func NewLocalStore(root, baseURL string, secret []byte, ttl time.Duration, maxBytes int64, logger *log.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LocalStore{
		root:     root,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		ttl:      ttl,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// safeName keeps the readable part of a client file name.
func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > 80 {
		out = out[len(out)-80:]
	}
	if out == "" {
		out = "file"
	}
	return out
}

func (s *LocalStore) pathFor(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || path.Clean(key) != key || strings.Contains("/"+key+"/", "/../") || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *LocalStore) sign(key, op string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := objectClaims{Key: key, Op: op, RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return tok, exp, err
}

func (s *LocalStore) verify(tok, op string) (string, error) {
	t, err := jwt.ParseWithClaims(tok, &objectClaims{}, func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	c, ok := t.Claims.(*objectClaims)
	if !ok || !t.Valid || c.Op != op {
		return "", errors.New("storage: token not valid for this operation")
	}
	return c.Key, nil
}

func (s *LocalStore) IssueUploadTarget(_ context.Context, meta services.FileMeta) (*services.UploadTarget, error) {
	if strings.TrimSpace(meta.Name) == "" {
		return nil, services.NewInvalidError("file name required")
	}
	if meta.Size < 0 || meta.Size > s.maxBytes {
		return nil, services.NewInvalidError(fmt.Sprintf("file must be at most %d bytes", s.maxBytes))
	}
	key := meta.Prefix + uuid.NewString() + "-" + safeName(meta.Name)
	if _, err := s.pathFor(key); err != nil {
		return nil, services.NewInvalidError(err.Error())
	}
	tok, exp, err := s.sign(key, opUpload)
	if err != nil {
		return nil, err
	}
	return &services.UploadTarget{Key: key, UploadURL: s.baseURL + "/files/upload/" + url.PathEscape(tok), ExpiresAt: exp}, nil
}

func (s *LocalStore) IssueDownloadURL(_ context.Context, key string) (string, error) {
	if _, err := s.pathFor(key); err != nil {
		return "", err
	}
	tok, _, err := s.sign(key, opDownload)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/files/download/" + url.PathEscape(tok), nil
}

// ReleaseStoredObject deletes the file. A missing file is not an error.
func (s *LocalStore) ReleaseStoredObject(_ context.Context, key string) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: release %s: %w", key, err)
	}
	return nil
}

// Put writes r under key, refusing anything larger than the upload limit.
func (s *LocalStore) Put(key string, r io.Reader) (int64, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("storage: write: %w", err)
	}
	if n > s.maxBytes {
		return 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, fmt.Errorf("storage: commit: %w", err)
	}
	return n, nil
}

type uploadReceipt struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Handler serves the signed upload and download URLs. Mount it at /files.
func (s *LocalStore) Handler() http.Handler {
	r := chi.NewRouter()
	r.Put("/upload/{token}", s.handleUpload)
	r.Post("/upload/{token}", s.handleUpload)
	r.Get("/download/{token}", s.handleDownload)
	return r
}

func (s *LocalStore) handleUpload(w http.ResponseWriter, r *http.Request) {
	key, err := s.verify(chi.URLParam(r, "token"), opUpload)
	if err != nil {
		http.Error(w, "invalid or expired upload url", http.StatusForbidden)
		return
	}
	n, err := s.Put(key, r.Body)
	switch {
	case errors.Is(err, ErrTooLarge):
		http.Error(w, ErrTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		s.logger.Printf("storage: upload %s: %v", key, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(uploadReceipt{Key: key, Size: n})
}

func (s *LocalStore) handleDownload(w http.ResponseWriter, r *http.Request) {
	key, err := s.verify(chi.URLParam(r, "token"), opDownload)
	if err != nil {
		http.Error(w, "invalid or expired download url", http.StatusForbidden)
		return
	}
	p, err := s.pathFor(key)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	name := path.Base(key)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, st.ModTime(), f)
}
