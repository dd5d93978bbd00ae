package viewer

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// UploadState is the position of a session in the upload flow.
type UploadState string

const (
	UploadIdle      UploadState = "idle"
	UploadUploading UploadState = "uploading"
)

var (
	// ErrUploadInProgress rejects a second upload while one is running on
	// the same session.
	ErrUploadInProgress = errors.New("an upload is already in progress")

	ErrNotZip = errors.New("file must be a ZIP archive")
)

// Upload sends a feed archive upstream. On success the dataset list is
// cleared and reloaded; on failure the selection and dataset list are left
// as they were.
func (c *Controller) Upload(ctx context.Context, filename string, r io.Reader) error {
	c.mu.Lock()
	if c.upload == UploadUploading {
		c.mu.Unlock()
		return ErrUploadInProgress
	}
	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		c.setNotice(NoticeError, MsgNotZip)
		c.mu.Unlock()
		return ErrNotZip
	}
	c.upload = UploadUploading
	c.mu.Unlock()

	res, err := c.fetcher.Upload(ctx, filename, r)

	c.mu.Lock()
	c.upload = UploadIdle
	if err != nil {
		c.setNotice(NoticeError, userMessage(err, MsgUploadFailed))
		c.mu.Unlock()
		c.logger.Info("upload failed", "filename", filename, "error", err)
		return err
	}
	c.selection.SetDatasets(nil)
	c.invalidateView()
	c.mu.Unlock()

	var folderID string
	if res != nil {
		folderID = res.FolderID.String()
	}
	c.logger.Info("upload finished", "filename", filename, "folder_id", folderID)

	if err := c.LoadDatasets(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.setNotice(NoticeInfo, MsgUploadDone)
	c.mu.Unlock()
	return nil
}
