// Package immich uploads tagged media to an Immich server through its asset
// API. The server deduplicates by SHA-1 checksum, so a re-sent file comes
// back as a duplicate rather than a new asset.
package immich

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"gamesync/internal/httpclient"
	"gamesync/internal/media"
)

// DefaultTimeout bounds one upload request.
const DefaultTimeout = 30 * time.Second

// Status is the server's verdict on an uploaded asset.
type Status string

const (
	StatusCreated   Status = "created"
	StatusDuplicate Status = "duplicate"
)

// ErrBadResponse is returned when the server answers 2xx with a body that is
// not an upload result.
var ErrBadResponse = errors.New("immich: unexpected upload response")

// Asset is one file to upload.
type Asset struct {
	Path string
	// DeviceAssetID identifies the asset on the capturing device; the file
	// name is used.
	DeviceAssetID string
	DeviceID      string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// AssetFor builds the upload description of a tagged file.
func AssetFor(path string, rec media.Record) Asset {
	return Asset{
		Path:          path,
		DeviceAssetID: filepath.Base(path),
		DeviceID:      rec.Device.ID(),
		CreatedAt:     rec.Time(),
		ModifiedAt:    rec.Time(),
	}
}

// UploadResult is the server's answer for one asset.
type UploadResult struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Duplicate reports whether the server already had the asset.
func (r *UploadResult) Duplicate() bool {
	return r.Status == StatusDuplicate
}

// Config configures a Client.
type Config struct {
	ServerURL string
	APIKey    string
	Timeout   time.Duration
}

// Client talks to one Immich server.
type Client struct {
	http   *httpclient.Client
	server string
	apiKey string
	logger logrus.FieldLogger
}

// New creates a client for cfg.ServerURL.
func New(cfg Config, logger logrus.FieldLogger) *Client {
	hc := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	} else {
		hc.Timeout = DefaultTimeout
	}
	return &Client{
		http:   httpclient.New(hc),
		server: strings.TrimRight(cfg.ServerURL, "/"),
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Upload sends the asset as multipart form data to POST /api/assets.
func (c *Client) Upload(ctx context.Context, asset Asset) (*UploadResult, error) {
	checksum, size, err := fileSHA1(asset.Path)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}

	body, contentType, err := multipartBody(asset)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	resp, err := c.http.Do(ctx, http.MethodPost, c.server+"/api/assets", body, map[string]string{
		"Accept":            "application/json",
		"Content-Type":      contentType,
		"x-api-key":         c.apiKey,
		"x-immich-checksum": checksum,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(asset.Path), err)
	}

	result, err := decodeResult(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"asset_id": result.ID,
		"status":   result.Status,
		"size":     humanize.Bytes(uint64(size)),
	}).Debug("asset uploaded")
	return result, nil
}

func decodeResult(data []byte) (*UploadResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if msg, ok := raw["error"]; ok {
		return nil, fmt.Errorf("%w: server error %s", ErrBadResponse, msg)
	}

	var result UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	switch result.Status {
	case StatusCreated, StatusDuplicate:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrBadResponse, result.Status)
	}
	return &result, nil
}

func fileSHA1(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// multipartBody streams the form through a pipe so large clips are not
// buffered in memory.
func multipartBody(asset Asset) (io.ReadCloser, string, error) {
	mtype, err := mimetype.DetectFile(asset.Path)
	if err != nil {
		return nil, "", fmt.Errorf("detect content type: %w", err)
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(w, asset, mtype.String()))
	}()
	return pr, w.FormDataContentType(), nil
}

func writeForm(w *multipart.Writer, asset Asset, contentType string) error {
	fields := []struct{ name, value string }{
		{"deviceAssetId", asset.DeviceAssetID},
		{"deviceId", asset.DeviceID},
		{"fileCreatedAt", asset.CreatedAt.Format(time.RFC3339)},
		{"fileModifiedAt", asset.ModifiedAt.Format(time.RFC3339)},
		{"filename", filepath.Base(asset.Path)},
		{"isFavorite", "false"},
		{"visibility", "timeline"},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="assetData"; filename=%q`, filepath.Base(asset.Path)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return w.Close()
}
