// Пакет coldstore — клиент холодного хранилища (S3 Glacier / Deep Archive).
// Загрузка архивных объектов, запрос восстановления и скачивание
// восстановленной копии через minio-go.
package coldstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"

	"github.com/nambgit/archetype-data-audit/internal/config"
)

// Ошибки холодного хранилища.
var (
	// ErrStillRestoring — объект ещё в холодном классе, восстановление не завершено.
	ErrStillRestoring = errors.New("объект ещё восстанавливается из холодного хранилища")
	// ErrObjectNotFound — объект отсутствует в хранилище.
	ErrObjectNotFound = errors.New("объект не найден в холодном хранилище")
)

// Ключи пользовательских метаданных архивного объекта.
const (
	metaOriginalPath = "original-path"
	metaChecksum     = "checksum-sha256"
	metaArchivedAt   = "archived-at"
)

// UploadMeta — метаданные, сохраняемые вместе с архивным объектом.
type UploadMeta struct {
	// OriginalPath — исходный путь файла
	OriginalPath string
	// Fingerprint — SHA-256 содержимого, источник истины для верификации
	Fingerprint string
}

// ObjectInfo — метаданные объекта в хранилище.
type ObjectInfo struct {
	// Fingerprint — контрольная сумма из пользовательских метаданных
	// (пустая, если объект загружен без неё)
	Fingerprint string
	// Size — размер объекта в байтах
	Size int64
}

// Store — операции холодного хранилища.
type Store interface {
	// Upload загружает поток в архив. Возвращает ссылку вида s3://bucket/key.
	Upload(ctx context.Context, key string, r io.Reader, size int64, meta UploadMeta) (string, error)
	// Stat возвращает метаданные объекта по ссылке.
	Stat(ctx context.Context, ref string) (*ObjectInfo, error)
	// Restore запрашивает восстановление объекта на указанное число дней.
	// Уже идущее восстановление — успех (идемпотентность).
	Restore(ctx context.Context, ref string, days int) error
	// Download скачивает восстановленный объект в dst.
	// Возвращает контрольную сумму из метаданных объекта.
	// Объект ещё в холодном классе — ErrStillRestoring.
	Download(ctx context.Context, ref string, dst io.Writer) (string, error)
}

// Client — клиент холодного хранилища поверх minio-go.
type Client struct {
	mc           *minio.Client
	bucket       string
	storageClass string
	opTimeout    time.Duration
	logger       *slog.Logger
}

// New создаёт клиент холодного хранилища.
// Пустые ключи доступа — аутентификация через IAM-роль (EC2/ECS).
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	var creds *credentials.Credentials
	if cfg.S3AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")
	} else {
		creds = credentials.NewIAM("")
	}

	mc, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания S3-клиента: %w", err)
	}

	return &Client{
		mc:           mc,
		bucket:       cfg.ArchiveBucket,
		storageClass: cfg.S3StorageClass,
		opTimeout:    cfg.ColdOpTimeout,
		logger:       logger.With(slog.String("component", "coldstore")),
	}, nil
}

// FormatRef собирает ссылку на объект вида s3://bucket/key.
func FormatRef(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseRef разбирает ссылку s3://bucket/key на бакет и ключ.
func ParseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("некорректная ссылка на архив: %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("некорректная ссылка на архив: %q", ref)
	}
	return bucket, key, nil
}

func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, meta UploadMeta) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	opts := minio.PutObjectOptions{
		StorageClass: c.storageClass,
		UserMetadata: map[string]string{
			metaOriginalPath: meta.OriginalPath,
			metaChecksum:     meta.Fingerprint,
			metaArchivedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		ServerSideEncryption: encrypt.NewSSE(),
	}

	info, err := c.mc.PutObject(ctx, c.bucket, key, r, size, opts)
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки в холодное хранилище: %w", err)
	}

	c.logger.Info("Объект загружен в архив",
		slog.String("bucket", c.bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
		slog.String("storage_class", c.storageClass),
	)

	return FormatRef(c.bucket, key), nil
}

func (c *Client) Stat(ctx context.Context, ref string) (*ObjectInfo, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	info, err := c.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err, "ошибка проверки объекта")
	}

	return &ObjectInfo{
		Fingerprint: userMetaValue(info.UserMetadata, metaChecksum),
		Size:        info.Size,
	}, nil
}

func (c *Client) Restore(ctx context.Context, ref string, days int) error {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	req := minio.RestoreRequest{}
	req.SetDays(days)
	req.SetGlacierJobParameters(minio.GlacierJobParameters{Tier: minio.TierStandard})

	err = c.mc.RestoreObject(ctx, bucket, key, "", req)
	if err != nil {
		// Повторный запрос на уже идущее восстановление — успех
		if minio.ToErrorResponse(err).Code == "RestoreAlreadyInProgress" {
			c.logger.Info("Восстановление уже запущено",
				slog.String("bucket", bucket),
				slog.String("key", key),
			)
			return nil
		}
		return mapMinioError(err, "ошибка запроса восстановления")
	}

	c.logger.Info("Запрошено восстановление из архива",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("days", days),
	)
	return nil
}

func (c *Client) Download(ctx context.Context, ref string, dst io.Writer) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", mapMinioError(err, "ошибка скачивания объекта")
	}
	defer obj.Close()

	// GetObject ленивый: статус объекта выясняется при первом чтении
	info, err := obj.Stat()
	if err != nil {
		return "", mapMinioError(err, "ошибка скачивания объекта")
	}

	if _, err := io.Copy(dst, obj); err != nil {
		return "", mapMinioError(err, "ошибка чтения объекта")
	}

	return userMetaValue(info.UserMetadata, metaChecksum), nil
}

// mapMinioError транслирует коды ошибок S3 в ошибки пакета.
func mapMinioError(err error, msg string) error {
	switch minio.ToErrorResponse(err).Code {
	case "InvalidObjectState":
		// Объект в Glacier/Deep Archive и ещё не восстановлен
		return ErrStillRestoring
	case "NoSuchKey":
		return ErrObjectNotFound
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// userMetaValue ищет значение пользовательских метаданных без учёта регистра:
// S3 канонизирует ключи заголовков (checksum-sha256 → Checksum-Sha256).
func userMetaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
