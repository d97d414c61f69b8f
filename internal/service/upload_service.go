package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/observability"
	"github.com/noah-isme/tripmate-api/internal/repository"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the content is not a supported image.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadMissing indicates the request carried no file.
	ErrUploadMissing = errors.New("file is required")
)

// Chat images are checked by content, never by the client's file name.
var chatImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// FileStorage is where accepted images end up. It returns the public URL.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates and stores images attached to chat messages. The
// same image sent twice into one room is stored once.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, userID, roomID string) (dto.UploadResponse, error)
}

type uploadService struct {
	storage FileStorage
	repo    repository.UploadRepository
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// chatImage is an upload that passed validation.
type chatImage struct {
	data     []byte
	mime     string
	name     string
	checksum string
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, repo repository.UploadRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage: storage,
		repo:    repo,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) << 20,
		tracer:  otel.Tracer("github.com/noah-isme/tripmate-api/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader, userID, roomID string) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "chat.upload", trace.WithAttributes(
		attribute.String("chat.room_id", roomID),
	))
	defer span.End()

	started := time.Now()
	defer func() { observability.UploadLatency().Observe(time.Since(started).Seconds()) }()

	image, reason, err := s.readImage(file)
	if err != nil {
		if reason != "" {
			observability.UploadRejected().WithLabelValues(reason).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return dto.UploadResponse{}, err
	}
	span.SetAttributes(
		attribute.String("upload.mime", image.mime),
		attribute.Int("upload.size_bytes", len(image.data)),
	)

	existing, err := s.repo.FindInRoom(ctx, roomID, image.checksum)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("upload dedupe lookup failed")
	case existing != nil:
		span.SetAttributes(attribute.Bool("upload.reused", true))
		return toUploadResponse(*existing, true), nil
	}

	url, err := s.storage.Upload(ctx, image.name, bytes.NewReader(image.data))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, err
	}

	record := models.UploadRecord{
		UserID:    userID,
		RoomID:    roomID,
		FileName:  image.name,
		URL:       url,
		MimeType:  image.mime,
		SizeBytes: int64(len(image.data)),
		Checksum:  image.checksum,
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	observability.UploadRequests().WithLabelValues(image.mime).Inc()
	s.logger.Debug().Str("user_id", userID).Str("room_id", roomID).Str("file_name", image.name).Msg("chat image stored")
	return toUploadResponse(record, false), nil
}

// readImage loads at most maxSize+1 bytes so oversized bodies are caught even
// when the multipart header lies about the size. The returned reason labels
// the rejection metric.
func (s *uploadService) readImage(file *multipart.FileHeader) (chatImage, string, error) {
	if file == nil {
		return chatImage{}, "missing", ErrUploadMissing
	}
	if file.Size > s.maxSize {
		return chatImage{}, "size", ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return chatImage{}, "", err
	}
	defer handle.Close()

	data, err := io.ReadAll(io.LimitReader(handle, s.maxSize+1))
	if err != nil {
		return chatImage{}, "", err
	}
	if int64(len(data)) > s.maxSize {
		return chatImage{}, "size", ErrUploadTooLarge
	}

	mime := strings.ToLower(mimetype.Detect(data).String())
	ext, ok := chatImageExtensions[mime]
	if !ok {
		return chatImage{}, "type", ErrUploadTypeNotAllowed
	}

	sum := sha256.Sum256(data)
	return chatImage{
		data:     data,
		mime:     mime,
		name:     chatImageName(file.Filename, ext),
		checksum: hex.EncodeToString(sum[:]),
	}, "", nil
}

func toUploadResponse(record models.UploadRecord, reused bool) dto.UploadResponse {
	return dto.UploadResponse{
		URL:       record.URL,
		SizeBytes: record.SizeBytes,
		MimeType:  record.MimeType,
		Checksum:  record.Checksum,
		FileName:  record.FileName,
		Reused:    reused,
	}
}

// chatImageName keeps [a-z0-9_-] from the client name and appends the
// extension of the detected type.
func chatImageName(name, ext string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		cleaned = "image"
	}
	return cleaned + ext
}
