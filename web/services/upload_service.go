package services

import (
	"io"
	"mime/multipart"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
	"contract-analyzer/utils"
)

// UploadService validates contract uploads at the boundary so bad input never
// reaches the pipeline.
type UploadService struct {
	maxSizeBytes int64
	logger       *zap.Logger
}

func NewUploadService(cfg *config.Config, logger *zap.Logger) *UploadService {
	return &UploadService{
		maxSizeBytes: cfg.MaxUploadSizeMB * 1024 * 1024,
		logger:       logger,
	}
}

// ValidateAndRead checks the filename, size, and content magic, returning the
// sanitized filename and the file bytes. Errors wrap ErrInvalidInput.
func (us *UploadService) ValidateAndRead(file *multipart.FileHeader) (string, []byte, error) {
	if !utils.HasPDFExtension(file.Filename) {
		return "", nil, apperrors.WrapError(apperrors.ErrInvalidInput, "only PDF files are supported")
	}

	sanitized := utils.SanitizeFilename(file.Filename)
	if sanitized == "" {
		return "", nil, apperrors.WrapError(apperrors.ErrInvalidInput, "invalid or unsafe filename")
	}

	if file.Size > us.maxSizeBytes {
		return "", nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "file exceeds maximum size of %d bytes", us.maxSizeBytes)
	}

	src, err := file.Open()
	if err != nil {
		return "", nil, apperrors.WrapError(apperrors.ErrInvalidInput, "failed to open uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, us.maxSizeBytes+1))
	if err != nil {
		return "", nil, apperrors.WrapError(apperrors.ErrInvalidInput, "failed to read uploaded file")
	}

	return sanitized, data, us.ValidateContent(data)
}

// ValidateContent checks the raw bytes independently of the multipart header.
func (us *UploadService) ValidateContent(data []byte) error {
	if len(data) == 0 {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "uploaded file is empty")
	}
	if int64(len(data)) > us.maxSizeBytes {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput, "file exceeds maximum size of %d bytes", us.maxSizeBytes)
	}
	if !utils.IsPDF(data) {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "file content is not a PDF")
	}
	return nil
}
