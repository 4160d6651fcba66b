package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Кастомные ошибки хранилища.
var (
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
)

// SnapshotStorage определяет интерфейс объектного хранилища снимков контента.
// Каждая версия заметки хранит свой контент отдельным неизменяемым объектом.
type SnapshotStorage interface {
	UploadObject(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	DownloadObject(ctx context.Context, objectKey string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// MinioClient реализует SnapshotStorage для MinIO.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string // Логин
	SecretAccessKey string // Пароль
	UseSSL          bool   // Использовать SSL (обычно false для локальной разработки)
	BucketName      string // Имя бакета для хранения снимков
	Region          string // Регион (не обязательно для MinIO)
}

// Снимки контента — это текст заметок.
const snapshotContentType = "text/markdown; charset=utf-8"

// NewMinioClient создает новый клиент MinIO.
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	log.Printf("Инициализация клиента MinIO для эндпоинта %s...", cfg.Endpoint)

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	// Проверка доступности MinIO для раннего обнаружения проблем.
	// Не фатально: сервер может запуститься, даже если MinIO временно недоступен.
	if _, err = minioClient.ListBuckets(context.Background()); err != nil {
		log.Printf("Предупреждение: не удалось проверить соединение с MinIO: %v. Проверьте доступность и креды.", err)
	}

	// Проверка существования бакета и создание при необходимости
	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		log.Printf("Бакет '%s' не найден, попытка создания...", cfg.BucketName)
		if err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
		log.Printf("Бакет '%s' успешно создан.", cfg.BucketName)
	} else {
		log.Printf("Бакет '%s' уже существует.", cfg.BucketName)
	}

	log.Printf("Клиент MinIO успешно инициализирован для бакета '%s'.", cfg.BucketName)
	return &MinioClient{
		client:     minioClient,
		bucketName: cfg.BucketName,
	}, nil
}

// UploadObject загружает снимок контента в MinIO.
func (c *MinioClient) UploadObject(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
) error {
	log.Printf("[Minio] Загрузка снимка '%s' в бакет '%s'...", objectKey, c.bucketName)

	opts := minio.PutObjectOptions{
		ContentType: snapshotContentType,
	}

	uploadInfo, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size, opts)
	if err != nil {
		log.Printf("[Minio] Ошибка загрузки снимка '%s': %v", objectKey, err)
		return fmt.Errorf("ошибка загрузки снимка в MinIO: %w", err)
	}

	log.Printf("[Minio] Снимок '%s' успешно загружен, размер: %d, ETag: %s", objectKey, uploadInfo.Size, uploadInfo.ETag)
	return nil
}

// DownloadObject скачивает снимок контента из MinIO.
// Возвращает io.ReadCloser, который нужно закрыть после использования.
func (c *MinioClient) DownloadObject(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	log.Printf("[Minio] Скачивание снимка '%s' из бакета '%s'...", objectKey, c.bucketName)

	object, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		// Проверяем, является ли ошибка "NoSuchKey"
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			log.Printf("[Minio] Снимок '%s' не найден в бакете '%s'", objectKey, c.bucketName)
			return nil, ErrObjectNotFound
		}
		log.Printf("[Minio] Ошибка получения снимка '%s': %v", objectKey, err)
		return nil, fmt.Errorf("ошибка получения снимка из MinIO: %w", err)
	}

	// GetObject ленивый: ошибка "NoSuchKey" может проявиться только при чтении,
	// поэтому вызывающая сторона должна быть готова к ошибке из Read.
	return object, nil
}

// DeleteObject удаляет снимок контента из MinIO.
// Вызывается при удалении ручной контрольной точки; удаление отсутствующего
// объекта не считается ошибкой.
func (c *MinioClient) DeleteObject(ctx context.Context, objectKey string) error {
	log.Printf("[Minio] Удаление снимка '%s' из бакета '%s'...", objectKey, c.bucketName)

	err := c.client.RemoveObject(ctx, c.bucketName, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		log.Printf("[Minio] Ошибка удаления снимка '%s': %v", objectKey, err)
		return fmt.Errorf("ошибка удаления снимка из MinIO: %w", err)
	}

	log.Printf("[Minio] Снимок '%s' удален", objectKey)
	return nil
}
