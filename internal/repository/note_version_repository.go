package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zapisnik/zapisnik-server/internal/models"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

// Кастомные ошибки репозитория версий.
var (
	ErrVersionNotFound = errors.New("версия заметки не найдена")
)

// NoteVersionRepository определяет методы для работы с журналом версий заметок.
// Журнал append-only: записи создаются и удаляются, но никогда не изменяются.
type NoteVersionRepository interface {
	CreateVersion(ctx context.Context, version *models.NoteVersion) (int64, error)
	ListVersionsByNoteID(ctx context.Context, noteID int64, limit, offset int) ([]models.NoteVersion, error)
	GetVersionByID(ctx context.Context, versionID int64) (*models.NoteVersion, error)
	GetLatestVersionByNoteID(ctx context.Context, noteID int64) (*models.NoteVersion, error)
	DeleteVersion(ctx context.Context, versionID int64) error
}

// postgresNoteVersionRepository реализует NoteVersionRepository для PostgreSQL.
type postgresNoteVersionRepository struct {
	db *sqlx.DB
}

// NewPostgresNoteVersionRepository создает новый экземпляр репозитория версий.
func NewPostgresNoteVersionRepository(db *sqlx.DB) NoteVersionRepository {
	return &postgresNoteVersionRepository{db: db}
}

// CreateVersion создает новую запись о версии заметки.
// Возвращает ID созданной записи; сама запись после вставки неизменяема.
func (r *postgresNoteVersionRepository) CreateVersion(
	ctx context.Context,
	version *models.NoteVersion,
) (int64, error) {
	query := `INSERT INTO note_versions (note_id, version_type, title, tags, object_key, content_hash, size_bytes, comment)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	var versionID int64

	err := r.db.QueryRowxContext(ctx, query,
		version.NoteID, version.VersionType, version.Title, version.Tags,
		version.ObjectKey, version.ContentHash, version.SizeBytes, version.Comment,
	).Scan(&versionID)

	if err != nil {
		// Проверяем на ошибку уникальности object_key
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[NoteVerRepo] Ошибка создания версии: ключ объекта '%s' уже существует", version.ObjectKey)
			return 0, fmt.Errorf("версия с ключом объекта '%s' уже существует: %w", version.ObjectKey, err)
		}
		log.Printf("[NoteVerRepo] Непредвиденная ошибка при создании версии для заметки ID %d: %v", version.NoteID, err)
		return 0, fmt.Errorf("ошибка выполнения запроса на создание версии: %w", err)
	}

	log.Printf("[NoteVerRepo] Версия (ID: %d, тип: %s) успешно создана для заметки ID %d",
		versionID, version.VersionType, version.NoteID)
	return versionID, nil
}

// ListVersionsByNoteID возвращает список версий для указанной заметки с пагинацией.
// Сортировка по убыванию времени создания (сначала новые), id — разрешение
// неоднозначности для версий с одинаковым created_at.
func (r *postgresNoteVersionRepository) ListVersionsByNoteID(
	ctx context.Context,
	noteID int64,
	limit,
	offset int,
) ([]models.NoteVersion, error) {
	query := `SELECT id, note_id, version_type, title, tags, object_key, content_hash, size_bytes, comment, created_at
	          FROM note_versions
	          WHERE note_id=$1
	          ORDER BY created_at DESC, id DESC
	          LIMIT $2 OFFSET $3`

	versions := make([]models.NoteVersion, 0, limit)
	err := r.db.SelectContext(ctx, &versions, query, noteID, limit, offset)
	if err != nil {
		log.Printf("[NoteVerRepo] Ошибка при получении списка версий для заметки ID %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение списка версий: %w", err)
	}

	log.Printf("[NoteVerRepo] Получено %d версий для заметки ID %d (limit=%d, offset=%d)",
		len(versions), noteID, limit, offset)
	return versions, nil
}

// GetVersionByID находит конкретную версию по ее ID.
func (r *postgresNoteVersionRepository) GetVersionByID(
	ctx context.Context,
	versionID int64,
) (*models.NoteVersion, error) {
	query := `SELECT id, note_id, version_type, title, tags, object_key, content_hash, size_bytes, comment, created_at` +
		` FROM note_versions WHERE id=$1`
	var version models.NoteVersion

	err := r.db.GetContext(ctx, &version, query, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[NoteVerRepo] Версия с ID %d не найдена", versionID)
			return nil, ErrVersionNotFound
		}
		log.Printf("[NoteVerRepo] Ошибка при поиске версии ID %d: %v", versionID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение версии: %w", err)
	}

	log.Printf("[NoteVerRepo] Найдена версия ID %d (заметка ID: %d)", versionID, version.NoteID)
	return &version, nil
}

// GetLatestVersionByNoteID возвращает голову истории — самую свежую версию
// заметки любого типа. Используется политикой снимков для дедупликации.
// Возвращает ErrVersionNotFound, если у заметки еще нет ни одной версии.
func (r *postgresNoteVersionRepository) GetLatestVersionByNoteID(
	ctx context.Context,
	noteID int64,
) (*models.NoteVersion, error) {
	query := `SELECT id, note_id, version_type, title, tags, object_key, content_hash, size_bytes, comment, created_at
	          FROM note_versions
	          WHERE note_id=$1
	          ORDER BY created_at DESC, id DESC
	          LIMIT 1`
	var version models.NoteVersion

	err := r.db.GetContext(ctx, &version, query, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[NoteVerRepo] У заметки ID %d еще нет версий", noteID)
			return nil, ErrVersionNotFound
		}
		log.Printf("[NoteVerRepo] Ошибка при поиске головы истории заметки ID %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение последней версии: %w", err)
	}

	return &version, nil
}

// DeleteVersion безвозвратно удаляет запись о версии.
// Проверка типа версии (удалять можно только manual_save) выполняется
// на уровне сервиса; репозиторий удаляет любую существующую запись.
func (r *postgresNoteVersionRepository) DeleteVersion(ctx context.Context, versionID int64) error {
	query := `DELETE FROM note_versions WHERE id=$1`

	result, err := r.db.ExecContext(ctx, query, versionID)
	if err != nil {
		log.Printf("[NoteVerRepo] Ошибка при удалении версии ID %d: %v", versionID, err)
		return fmt.Errorf("ошибка выполнения запроса на удаление версии: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.Printf("[NoteVerRepo] Ошибка получения числа удаленных строк для версии ID %d: %v", versionID, err)
		return fmt.Errorf("ошибка получения результата удаления версии: %w", err)
	}
	if rows == 0 {
		log.Printf("[NoteVerRepo] Версия с ID %d не найдена, удалять нечего", versionID)
		return ErrVersionNotFound
	}

	log.Printf("[NoteVerRepo] Версия ID %d успешно удалена", versionID)
	return nil
}
