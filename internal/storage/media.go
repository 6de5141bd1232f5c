// Package storage talks to the external media API that holds message
// attachments. Uploads return one blob reference per file, in input
// order; batch deletes tolerate individual-item failures so a chat can
// always be deleted even when the blob store is unhealthy.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chatspace/internal/models"
	"chatspace/internal/observability"
)

// UploadFile is one incoming multipart file.
type UploadFile struct {
	Name string
	Data []byte
}

// MediaStore abstracts the blob storage collaborator.
type MediaStore interface {
	Upload(ctx context.Context, files []UploadFile) ([]models.Attachment, error)
	// Delete removes the referenced blobs. Empty input is a no-op;
	// per-item failures are logged and skipped.
	Delete(ctx context.Context, refs []models.AttachmentRef) error
}

// NewMediaStore builds an HTTP media client, or a noop store when the
// media API is not configured.
func NewMediaStore(baseURL, apiKey string) MediaStore {
	if baseURL == "" {
		log.Printf("media store disabled, using noop: empty base url")
		return noopMediaStore{}
	}
	return &httpMediaStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type httpMediaStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type uploadResponse struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// Upload pushes each file to the media API. Files go up one by one so a
// partial batch never leaves the caller guessing which reference maps
// to which file; the first failure aborts the upload.
func (s *httpMediaStore) Upload(ctx context.Context, files []UploadFile) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		att, err := s.uploadOne(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("upload %q: %w", f.Name, err)
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

func (s *httpMediaStore) uploadOne(ctx context.Context, f UploadFile) (models.Attachment, error) {
	resourceType := resourceTypeOf(f.Data)
	publicID := uuid.NewString()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("public_id", publicID); err != nil {
		return models.Attachment{}, err
	}
	if err := writer.WriteField("resource_type", resourceType); err != nil {
		return models.Attachment{}, err
	}
	part, err := writer.CreateFormFile("file", f.Name)
	if err != nil {
		return models.Attachment{}, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return models.Attachment{}, err
	}
	if err := writer.Close(); err != nil {
		return models.Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &body)
	if err != nil {
		return models.Attachment{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Attachment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Attachment{}, fmt.Errorf("media api status %d: %s", resp.StatusCode, payload)
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return models.Attachment{}, err
	}
	if uploaded.PublicID == "" {
		uploaded.PublicID = publicID
	}
	return models.Attachment{
		PublicID:     uploaded.PublicID,
		ResourceType: resourceType,
		URL:          uploaded.URL,
	}, nil
}

// Delete removes blobs one by one. A failing item is logged and counted
// but never fails the batch.
func (s *httpMediaStore) Delete(ctx context.Context, refs []models.AttachmentRef) error {
	for _, ref := range refs {
		if err := s.deleteOne(ctx, ref); err != nil {
			log.Printf("media delete failed public_id=%s: %v", ref.PublicID, err)
			observability.IncMediaDeleteError()
		}
	}
	return nil
}

func (s *httpMediaStore) deleteOne(ctx context.Context, ref models.AttachmentRef) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/files", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("media api status %d", resp.StatusCode)
	}
	return nil
}

// resourceTypeOf buckets a blob the way the media API expects.
func resourceTypeOf(data []byte) string {
	kind := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(kind.String(), "image/"):
		return "image"
	case strings.HasPrefix(kind.String(), "video/"):
		return "video"
	case strings.HasPrefix(kind.String(), "audio/"):
		return "audio"
	default:
		return "raw"
	}
}

type noopMediaStore struct{}

func (noopMediaStore) Upload(ctx context.Context, files []UploadFile) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, models.Attachment{
			PublicID:     uuid.NewString(),
			ResourceType: resourceTypeOf(f.Data),
			URL:          "",
		})
	}
	log.Printf("media store noop upload count=%d", len(files))
	return attachments, nil
}

func (noopMediaStore) Delete(ctx context.Context, refs []models.AttachmentRef) error {
	log.Printf("media store noop delete count=%d", len(refs))
	return nil
}
