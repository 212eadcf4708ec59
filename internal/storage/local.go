package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Local is a filesystem-backed attachment store. Objects are keyed by uuid so
// uploads are idempotent and retryable; presigned URLs carry an HMAC over
// key+expiry so they can be validated without state.
type Local struct {
	dir     string
	baseURL string
	secret  []byte
	ttl     time.Duration
}

func NewLocal(dir, baseURL, secret string, ttl time.Duration) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachments dir: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Local{dir: dir, baseURL: baseURL, secret: []byte(secret), ttl: ttl}, nil
}

func (l *Local) Upload(ctx context.Context, name string, content []byte) (string, error) {
	key := uuid.NewString() + "-" + filepath.Base(name)
	if err := os.WriteFile(filepath.Join(l.dir, key), content, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return key, nil
}

func (l *Local) Open(key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.dir, filepath.Base(key)))
}

func (l *Local) IssuePresignedURL(key string) (string, error) {
	expires := time.Now().Add(l.ttl).Unix()
	return fmt.Sprintf("%s/files/%s?expires=%d&sig=%s", l.baseURL, key, expires, l.sign(key, expires)), nil
}

// ValidateSignature checks a presigned URL's signature and expiry.
func (l *Local) ValidateSignature(key string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(l.sign(key, expires)))
}

func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(key))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
