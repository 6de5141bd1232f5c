package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"chatspace/internal/models"
)

// a minimal PNG signature, enough for content sniffing
var pngData = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

func TestUploadPreservesInputOrder(t *testing.T) {
	var uploads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/upload", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1 << 20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)

		n := atomic.AddInt32(&uploads, 1)
		json.NewEncoder(w).Encode(map[string]string{
			"public_id": fmt.Sprintf("blob-%d", n),
			"url":       "https://cdn.example.com/" + header.Filename,
		})
	}))
	defer server.Close()

	store := NewMediaStore(server.URL, "test-key")

	attachments, err := store.Upload(context.Background(), []UploadFile{
		{Name: "first.png", Data: pngData},
		{Name: "second.png", Data: pngData},
		{Name: "third.bin", Data: []byte("not an image")},
	})
	require.NoError(t, err)
	require.Len(t, attachments, 3)
	require.Equal(t, "blob-1", attachments[0].PublicID)
	require.Equal(t, "blob-3", attachments[2].PublicID)
	require.Equal(t, "https://cdn.example.com/first.png", attachments[0].URL)
	require.Equal(t, "image", attachments[0].ResourceType)
	require.Equal(t, "raw", attachments[2].ResourceType)
}

func TestUploadAbortsOnFirstFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			http.Error(w, "quota exceeded", http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"public_id": "blob", "url": "https://cdn.example.com/blob"})
	}))
	defer server.Close()

	store := NewMediaStore(server.URL, "test-key")

	_, err := store.Upload(context.Background(), []UploadFile{
		{Name: "a.png", Data: pngData},
		{Name: "b.png", Data: pngData},
		{Name: "c.png", Data: pngData},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "b.png")
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDeleteToleratesPerItemFailures(t *testing.T) {
	var deleted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/files", r.URL.Path)

		var ref models.AttachmentRef
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ref))
		if ref.PublicID == "broken" {
			http.Error(w, "backend down", http.StatusInternalServerError)
			return
		}
		deleted = append(deleted, ref.PublicID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := NewMediaStore(server.URL, "test-key")

	err := store.Delete(context.Background(), []models.AttachmentRef{
		{PublicID: "p1", ResourceType: "image"},
		{PublicID: "broken", ResourceType: "video"},
		{PublicID: "p2", ResourceType: "raw"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, deleted)
}

func TestDeleteTreatsMissingBlobAsDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := NewMediaStore(server.URL, "test-key")

	err := store.Delete(context.Background(), []models.AttachmentRef{{PublicID: "gone", ResourceType: "image"}})
	require.NoError(t, err)
}

func TestNoopStoreWhenUnconfigured(t *testing.T) {
	store := NewMediaStore("", "")

	attachments, err := store.Upload(context.Background(), []UploadFile{{Name: "a.png", Data: pngData}})
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	require.NotEmpty(t, attachments[0].PublicID)

	require.NoError(t, store.Delete(context.Background(), []models.AttachmentRef{{PublicID: "x"}}))
}

func TestResourceTypeBuckets(t *testing.T) {
	require.Equal(t, "image", resourceTypeOf(pngData))
	require.Equal(t, "raw", resourceTypeOf([]byte("plain text payload")))
}
