package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (u *memoryUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.key, u.contentType, u.body = key, contentType, buf.Bytes()
	return &UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memoryUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func drawRecord() *models.DrawRecord {
	completed := time.Date(2026, 5, 16, 10, 0, 0, 0, time.UTC)
	return &models.DrawRecord{
		EventID:    3,
		DivisionID: 12,
		Division:   "Men's Doubles 4.0",
		DrawOrder:  []int{7, 5, 6},
		Units: []*models.Unit{
			{ID: 5, DivisionID: 12, DisplayName: gofakeit.Name()},
			{ID: 6, DivisionID: 12, DisplayName: gofakeit.Name()},
			{ID: 7, DivisionID: 12, DisplayName: gofakeit.Name()},
		},
		StartedAt:   completed.Add(-15 * time.Minute),
		CompletedAt: completed,
	}
}

func TestDrawKey(t *testing.T) {
	rec := drawRecord()
	assert.Equal(t, "events/3/divisions/12/draw-1778925600.json", DrawKey(rec))
}

func TestDrawArchive_UploadsJSON(t *testing.T) {
	uploader := &memoryUploader{}
	archive := NewDrawArchive(uploader)
	rec := drawRecord()

	location, err := archive.ArchiveDraw(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+DrawKey(rec), location)
	assert.Equal(t, "application/json", uploader.contentType)

	var stored models.DrawRecord
	require.NoError(t, json.Unmarshal(uploader.body, &stored))
	assert.Equal(t, rec.DrawOrder, stored.DrawOrder)
	assert.Len(t, stored.Units, 3)
}

func TestDrawArchive_UploadError(t *testing.T) {
	boom := errors.New("access denied")
	archive := NewDrawArchive(&memoryUploader{err: boom})
	_, err := archive.ArchiveDraw(context.Background(), drawRecord())
	require.ErrorIs(t, err, boom)
}

func TestCloudflareR2Uploader_PublicURL(t *testing.T) {
	cfg := CloudflareR2UploaderConfig{
		AccountID:       "acc",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "draws",
		PublicBaseURL:   "https://cdn.example.com/public",
	}
	require.True(t, cfg.Enabled())

	u, err := NewCloudflareR2Uploader(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/public/events/1/draw.json", u.GetPublicURL("/events/1/draw.json"))
	assert.Empty(t, u.GetPublicURL(""))

	cfg.BucketName = ""
	assert.False(t, cfg.Enabled())
	_, err = NewCloudflareR2Uploader(context.Background(), cfg)
	require.Error(t, err)
}
