package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dosada05/pickleball-eventday/models"
)

// DrawArchive writes completed draws as JSON documents.
type DrawArchive struct {
	uploader FileUploader
}

func NewDrawArchive(uploader FileUploader) *DrawArchive {
	return &DrawArchive{uploader: uploader}
}

// DrawKey is the object key of a draw record.
func DrawKey(rec *models.DrawRecord) string {
	return fmt.Sprintf("events/%d/divisions/%d/draw-%d.json", rec.EventID, rec.DivisionID, rec.CompletedAt.Unix())
}

func (a *DrawArchive) ArchiveDraw(ctx context.Context, rec *models.DrawRecord) (string, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode draw record: %w", err)
	}
	res, err := a.uploader.Upload(ctx, DrawKey(rec), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
