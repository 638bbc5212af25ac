// CLAUDE:SUMMARY Sharing collaborators — outbox directory copy and HMAC-signed webhook POST of exported PDFs.
package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Sharer hands an exported file to something outside the process.
type Sharer interface {
	Name() string
	// Available reports whether Share can currently be attempted.
	Available() bool
	Share(ctx context.Context, path, title string) error
}

// ShareError reports a failed hand-off.
type ShareError struct {
	Sharer string
	Cause  error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("share via %s: %v", e.Sharer, e.Cause)
}

func (e *ShareError) Unwrap() error { return e.Cause }

// OutboxSharer copies exported files into Dir.
type OutboxSharer struct {
	Dir string
}

func (s *OutboxSharer) Name() string { return "outbox" }

// Available reports whether Dir exists or can be created.
func (s *OutboxSharer) Available() bool {
	if s.Dir == "" {
		return false
	}
	return os.MkdirAll(s.Dir, 0o755) == nil
}

// Share copies path into Dir under the same base name. A file already in Dir
// is left as is.
func (s *OutboxSharer) Share(ctx context.Context, path, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(s.Dir, filepath.Base(path))
	if sameFile(path, dst) {
		return nil
	}
	if err := copyFile(path, dst); err != nil {
		return &ShareError{Sharer: s.Name(), Cause: err}
	}
	return nil
}

// WebhookSharer POSTs exported files to URL. When Secret is set, the body is
// signed with HMAC-SHA256 in the X-Signature-256 header ("sha256=<hex>").
type WebhookSharer struct {
	URL    string
	Secret string
	Client *http.Client
}

func (s *WebhookSharer) Name() string { return "webhook" }

func (s *WebhookSharer) Available() bool { return s.URL != "" }

// Share sends the PDF as application/pdf. Any status >= 400 is a failure.
func (s *WebhookSharer) Share(ctx context.Context, path, title string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return &ShareError{Sharer: s.Name(), Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return &ShareError{Sharer: s.Name(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Document-Title", url.QueryEscape(title))
	req.Header.Set("X-File-Name", filepath.Base(path))
	if s.Secret != "" {
		mac := hmac.New(sha256.New, []byte(s.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &ShareError{Sharer: s.Name(), Cause: fmt.Errorf("POST: %w", err)}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &ShareError{Sharer: s.Name(), Cause: fmt.Errorf("webhook returned %d", resp.StatusCode)}
	}
	return nil
}

// VerifySignature checks an X-Signature-256 value against body.
func VerifySignature(secret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}
