package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"whatsgate/internal/constants"
	"whatsgate/internal/models"
	"whatsgate/internal/security"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store persists message attachments to local disk and describes them as
// StoredMedia rows. Fetch failures degrade: the message survives without its
// attachment, so fetch methods log and return nil instead of erroring.
type Store struct {
	storageDir   string
	maxSizeBytes int64
	fetchTimeout time.Duration
	client       *http.Client
	logger       *logrus.Logger
}

func NewStore(cfg models.MediaConfig, logger *logrus.Logger) (*Store, error) {
	if err := security.ValidateDataPath(cfg.StorageDir); err != nil {
		return nil, fmt.Errorf("invalid storage directory: %w", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fetchTimeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	if cfg.FetchTimeoutSec <= 0 {
		fetchTimeout = time.Duration(constants.DefaultMediaFetchTimeoutSec) * time.Second
	}
	maxSizeMB := cfg.MaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = constants.DefaultMediaMaxSizeMB
	}

	return &Store{
		storageDir:   cfg.StorageDir,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		fetchTimeout: fetchTimeout,
		client:       &http.Client{Timeout: fetchTimeout},
		logger:       logger,
	}, nil
}

// FetchFromRemote downloads an attachment by URL and stores it. On any
// failure it logs and returns nil; the caller keeps the message without
// its attachment.
func (s *Store) FetchFromRemote(ctx context.Context, url, mimeType string) *models.StoredMedia {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("Failed to build media request")
		return nil
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("Failed to fetch media")
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"url":    url,
			"status": resp.StatusCode,
		}).Warn("Media fetch returned non-OK status")
		return nil
	}

	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}

	stored, err := s.StoreBuffer(resp.Body, mimeType)
	if err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("Failed to store fetched media")
		return nil
	}
	return stored
}

// StoreBuffer writes one attachment from r to disk and returns its
// descriptor. The database id is filled in by the caller after the row is
// inserted.
func (s *Store) StoreBuffer(r io.Reader, mimeType string) (*models.StoredMedia, error) {
	fileName := s.fileNameFor(mimeType)
	if err := security.ValidateFileName(fileName); err != nil {
		return nil, err
	}
	filePath := filepath.Join(s.storageDir, fileName)
	if !security.WithinBase(s.storageDir, fileName) {
		return nil, fmt.Errorf("file path escapes storage directory: %s", fileName)
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	// Read one byte past the cap so oversize content is detected rather than
	// silently truncated.
	written, err := io.Copy(f, io.LimitReader(r, s.maxSizeBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxSizeBytes {
		err = fmt.Errorf("media exceeds size limit of %d bytes", s.maxSizeBytes)
	}
	if err != nil {
		_ = os.Remove(filePath)
		return nil, err
	}

	if mimeType == "" {
		mimeType = constants.DefaultMimeType
	}

	return &models.StoredMedia{
		FileName:  fileName,
		FilePath:  filePath,
		MimeType:  mimeType,
		Size:      written,
		CreatedAt: time.Now(),
	}, nil
}

// Open returns a reader for a previously stored file, rejecting names that
// would escape the storage directory.
func (s *Store) Open(fileName string) (io.ReadCloser, error) {
	if err := security.ValidateFileName(fileName); err != nil {
		return nil, err
	}
	if !security.WithinBase(s.storageDir, fileName) {
		return nil, fmt.Errorf("file path escapes storage directory: %s", fileName)
	}
	return os.Open(filepath.Join(s.storageDir, fileName))
}

func (s *Store) fileNameFor(mimeType string) string {
	ext := constants.DefaultExtension
	if mimeType != "" {
		// Strip parameters like "; charset=utf-8".
		base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
		if mapped, ok := constants.MimeTypeToExtension[base]; ok {
			ext = mapped
		}
	}
	return fmt.Sprintf("media_%s.%s", uuid.NewString(), ext)
}
