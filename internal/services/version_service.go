package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zapisnik/zapisnik-server/internal/gateway"
	"github.com/zapisnik/zapisnik-server/internal/models"
	"github.com/zapisnik/zapisnik-server/internal/repository"
	"github.com/zapisnik/zapisnik-server/internal/storage"
)

// Кастомные ошибки сервиса версий.
var (
	ErrNoteNotFound     = errors.New("заметка не найдена")
	ErrVersionNotFound  = errors.New("версия не найдена")
	ErrNotManualVersion = errors.New("удалять можно только ручные контрольные точки")
	ErrVersionWrongNote = errors.New("версии принадлежат разным заметкам")
	ErrSnapshotStorage  = errors.New("хранилище снимков недоступно")
)

// Ограничения пагинации списка версий. Лимит подрезается сервисом
// независимо от того, что прислал вызывающий, чтобы ограничить размер ответа.
const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// VersionService определяет интерфейс движка истории версий заметок.
//
// Все мутирующие операции для одной заметки сериализуются per-note мьютексом,
// поэтому порядок created_at в журнале однозначен. Операции для разных
// заметок полностью независимы и выполняются параллельно.
type VersionService interface {
	ListVersions(ctx context.Context, noteID int64, limit, offset int) ([]models.NoteVersion, error)
	GetVersion(ctx context.Context, versionID int64) (*models.NoteVersion, error)
	CreateManualVersion(ctx context.Context, noteID int64, comment *string) (*models.NoteVersion, error)
	AutoSnapshot(ctx context.Context, noteID int64) (*models.NoteVersion, error)
	RestoreVersion(ctx context.Context, versionID int64, comment *string) (*models.NoteVersion, error)
	DeleteVersion(ctx context.Context, versionID int64) error
	CompareVersions(ctx context.Context, noteID, versionAID, versionBID int64) (*models.VersionComparison, error)
}

// Убедимся, что versionService удовлетворяет интерфейсу VersionService.
var _ VersionService = (*versionService)(nil)

type versionService struct {
	versionRepo repository.NoteVersionRepository
	noteGateway gateway.NoteGateway
	snapshots   storage.SnapshotStorage
	locks       noteLocker
}

// NewVersionService создает новый экземпляр сервиса истории версий.
func NewVersionService(
	versionRepo repository.NoteVersionRepository,
	noteGateway gateway.NoteGateway,
	snapshots storage.SnapshotStorage,
) VersionService {
	return &versionService{
		versionRepo: versionRepo,
		noteGateway: noteGateway,
		snapshots:   snapshots,
	}
}

// noteLocker выдает мьютекс на заметку. Мьютексы живут до остановки процесса:
// их число ограничено числом заметок, с которыми работал этот процесс.
type noteLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *noteLocker) forNote(noteID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[noteID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[noteID] = m
	}
	return m
}

// ListVersions возвращает версии заметки, сначала новые.
// Контент в элементы списка не подгружается.
func (s *versionService) ListVersions(
	ctx context.Context,
	noteID int64,
	limit, offset int,
) ([]models.NoteVersion, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	versions, err := s.versionRepo.ListVersionsByNoteID(ctx, noteID, limit, offset)
	if err != nil {
		log.Printf("[VersionService] Ошибка репозитория при получении списка версий заметки %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка получения списка версий: %w", err)
	}
	return versions, nil
}

// GetVersion возвращает одну версию вместе с контентом снимка.
func (s *versionService) GetVersion(ctx context.Context, versionID int64) (*models.NoteVersion, error) {
	version, err := s.versionRepo.GetVersionByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		log.Printf("[VersionService] Ошибка репозитория при получении версии %d: %v", versionID, err)
		return nil, fmt.Errorf("ошибка получения версии: %w", err)
	}

	if err = s.materializeContent(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// CreateManualVersion создает ручную контрольную точку текущего живого
// состояния заметки. Явное намерение пользователя всегда выполняется:
// дедупликация с головой истории здесь сознательно не применяется,
// даже если состояние не изменилось с последнего снимка.
func (s *versionService) CreateManualVersion(
	ctx context.Context,
	noteID int64,
	comment *string,
) (*models.NoteVersion, error) {
	lock := s.locks.forNote(noteID)
	lock.Lock()
	defer lock.Unlock()

	note, err := s.noteGateway.GetNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, gateway.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		log.Printf("[VersionService] Ошибка шлюза при чтении заметки %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка чтения заметки: %w", err)
	}

	version, err := s.appendVersion(ctx, note, models.VersionTypeManualSave, comment)
	if err != nil {
		return nil, err
	}

	log.Printf("[VersionService] Создана ручная контрольная точка (версия %d) для заметки %d", version.ID, noteID)
	return version, nil
}

// AutoSnapshot создает автосохранение, если живое состояние заметки
// отличается от головы истории. Если состояние не изменилось — это no-op:
// возвращается (nil, nil), новая версия не создается.
//
// Сравнение выполняется по заголовку, множеству тегов и хешу контента;
// голова истории всегда перечитывается из хранилища, чтобы решение
// о дедупликации не могло устареть (в том числе после рестарта процесса).
func (s *versionService) AutoSnapshot(ctx context.Context, noteID int64) (*models.NoteVersion, error) {
	lock := s.locks.forNote(noteID)
	lock.Lock()
	defer lock.Unlock()

	note, err := s.noteGateway.GetNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, gateway.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		log.Printf("[VersionService] Ошибка шлюза при чтении заметки %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка чтения заметки: %w", err)
	}

	head, err := s.versionRepo.GetLatestVersionByNoteID(ctx, noteID)
	switch {
	case err == nil:
		if head.Title == note.Title &&
			head.ContentHash == contentHash(note.Content) &&
			tagsEqual(head.Tags, note.Tags) {
			log.Printf("[VersionService] Заметка %d не изменилась с версии %d, автосохранение пропущено",
				noteID, head.ID)
			return nil, nil
		}
	case errors.Is(err, repository.ErrVersionNotFound):
		// Истории еще нет — создаем первую версию
	default:
		log.Printf("[VersionService] Ошибка репозитория при чтении головы истории заметки %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка чтения головы истории: %w", err)
	}

	version, err := s.appendVersion(ctx, note, models.VersionTypeAutoSave, nil)
	if err != nil {
		return nil, err
	}

	log.Printf("[VersionService] Создано автосохранение (версия %d) для заметки %d", version.ID, noteID)
	return version, nil
}

// RestoreVersion откатывает живое состояние заметки к указанной версии
// и фиксирует сам откат новой записью типа restore. История при этом
// никогда не переписывается: откат всегда обратим повторным откатом.
//
// Снимок restore-записи равен состоянию заметки ПОСЛЕ применения целевой
// версии, поэтому инвариант "голова истории == живое состояние" сохраняется.
func (s *versionService) RestoreVersion(
	ctx context.Context,
	versionID int64,
	comment *string,
) (*models.NoteVersion, error) {
	target, err := s.versionRepo.GetVersionByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		log.Printf("[VersionService] Ошибка репозитория при получении целевой версии %d: %v", versionID, err)
		return nil, fmt.Errorf("ошибка получения целевой версии: %w", err)
	}

	if err = s.materializeContent(ctx, target); err != nil {
		return nil, err
	}

	lock := s.locks.forNote(target.NoteID)
	lock.Lock()
	defer lock.Unlock()

	// Перезапись живого состояния и добавление restore-записи — это два
	// отдельных хранилища без общей транзакции. Начатую запись нельзя
	// оборвать отменой контекста вызывающего: иначе при таймауте клиента
	// заметка осталась бы перезаписанной без следа в истории.
	detached := context.WithoutCancel(ctx)

	err = s.noteGateway.UpdateNote(detached, target.NoteID, target.Title, target.Content, target.Tags)
	if err != nil {
		if errors.Is(err, gateway.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		log.Printf("[VersionService] Ошибка шлюза при перезаписи заметки %d: %v", target.NoteID, err)
		return nil, fmt.Errorf("ошибка перезаписи заметки: %w", err)
	}

	restored := &models.Note{
		ID:      target.NoteID,
		Title:   target.Title,
		Content: target.Content,
		Tags:    target.Tags,
	}
	version, err := s.appendVersion(detached, restored, models.VersionTypeRestore, comment)
	if err != nil {
		return nil, err
	}

	log.Printf("[VersionService] Заметка %d откачена к версии %d, создана restore-запись %d",
		target.NoteID, target.ID, version.ID)
	return version, nil
}

// DeleteVersion безвозвратно удаляет ручную контрольную точку.
// Автосохранения и restore-записи не удаляются: они сохраняют
// доверие к журналу как к аудиту.
func (s *versionService) DeleteVersion(ctx context.Context, versionID int64) error {
	version, err := s.versionRepo.GetVersionByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return ErrVersionNotFound
		}
		log.Printf("[VersionService] Ошибка репозитория при получении версии %d: %v", versionID, err)
		return fmt.Errorf("ошибка получения версии: %w", err)
	}

	if !version.IsManual() {
		log.Printf("[VersionService] Отказ в удалении версии %d: тип %s", versionID, version.VersionType)
		return ErrNotManualVersion
	}

	lock := s.locks.forNote(version.NoteID)
	lock.Lock()
	defer lock.Unlock()

	if err = s.versionRepo.DeleteVersion(ctx, versionID); err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			// Версию успели удалить параллельно
			return ErrVersionNotFound
		}
		log.Printf("[VersionService] Ошибка репозитория при удалении версии %d: %v", versionID, err)
		return fmt.Errorf("ошибка удаления версии: %w", err)
	}

	// Строка в БД — источник истины; снимок подчищаем по возможности.
	// Осиротевший объект при неудаче безвреден.
	if err = s.snapshots.DeleteObject(context.WithoutCancel(ctx), version.ObjectKey); err != nil {
		log.Printf("[VersionService] Не удалось удалить снимок '%s' версии %d: %v",
			version.ObjectKey, versionID, err)
	}

	log.Printf("[VersionService] Версия %d заметки %d удалена", versionID, version.NoteID)
	return nil
}

// CompareVersions вычисляет структурную разницу между двумя версиями
// одной заметки. Обе версии обязаны принадлежать заметке noteID, иначе
// сравнение не имеет смысла и отклоняется.
func (s *versionService) CompareVersions(
	ctx context.Context,
	noteID, versionAID, versionBID int64,
) (*models.VersionComparison, error) {
	versionA, err := s.getVersionForCompare(ctx, versionAID)
	if err != nil {
		return nil, err
	}
	versionB, err := s.getVersionForCompare(ctx, versionBID)
	if err != nil {
		return nil, err
	}

	if versionA.NoteID != noteID || versionB.NoteID != noteID {
		log.Printf("[VersionService] Отказ в сравнении версий %d и %d: ожидалась заметка %d, получены %d и %d",
			versionAID, versionBID, noteID, versionA.NoteID, versionB.NoteID)
		return nil, ErrVersionWrongNote
	}

	if err = s.materializeContent(ctx, versionA); err != nil {
		return nil, err
	}
	if err = s.materializeContent(ctx, versionB); err != nil {
		return nil, err
	}

	added, removed := tagsDiff(versionA.Tags, versionB.Tags)
	result := &models.VersionComparison{
		VersionA:       versionA,
		VersionB:       versionB,
		TitleChanged:   versionA.Title != versionB.Title,
		ContentChanged: versionA.ContentHash != versionB.ContentHash,
		TagsChanged:    !tagsEqual(versionA.Tags, versionB.Tags),
		TitleDelta:     int64(len(versionB.Title)) - int64(len(versionA.Title)),
		ContentDelta:   versionB.SizeBytes - versionA.SizeBytes,
		TagsAdded:      added,
		TagsRemoved:    removed,
	}

	log.Printf("[VersionService] Сравнение версий %d и %d заметки %d: title=%t content=%t tags=%t",
		versionAID, versionBID, noteID, result.TitleChanged, result.ContentChanged, result.TagsChanged)
	return result, nil
}

func (s *versionService) getVersionForCompare(ctx context.Context, versionID int64) (*models.NoteVersion, error) {
	version, err := s.versionRepo.GetVersionByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		log.Printf("[VersionService] Ошибка репозитория при получении версии %d для сравнения: %v", versionID, err)
		return nil, fmt.Errorf("ошибка получения версии для сравнения: %w", err)
	}
	return version, nil
}

// appendVersion добавляет в журнал новую запись с полным снимком состояния
// заметки. Порядок долговечности: сначала объект контента в MinIO, затем
// строка в PostgreSQL — точкой фиксации версии является вставка строки.
// Запись выполняется на отвязанном от отмены контексте: начатый append
// либо завершается, либо падает целиком, но не обрывается на полпути.
func (s *versionService) appendVersion(
	ctx context.Context,
	note *models.Note,
	versionType string,
	comment *string,
) (*models.NoteVersion, error) {
	detached := context.WithoutCancel(ctx)

	objectKey := fmt.Sprintf("notes/%d/%s", note.ID, uuid.NewString())
	size := int64(len(note.Content))

	err := s.snapshots.UploadObject(detached, objectKey, strings.NewReader(note.Content), size)
	if err != nil {
		log.Printf("[VersionService] Ошибка загрузки снимка для заметки %d: %v", note.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrSnapshotStorage, err)
	}

	version := &models.NoteVersion{
		NoteID:      note.ID,
		VersionType: versionType,
		Title:       note.Title,
		Tags:        note.Tags,
		ObjectKey:   objectKey,
		ContentHash: contentHash(note.Content),
		SizeBytes:   size,
		Comment:     comment,
	}

	versionID, err := s.versionRepo.CreateVersion(detached, version)
	if err != nil {
		// Строка не вставлена — версии нет. Загруженный объект остается
		// сиротой, это безопасно.
		log.Printf("[VersionService] Ошибка фиксации версии для заметки %d: %v", note.ID, err)
		return nil, fmt.Errorf("ошибка фиксации версии: %w", err)
	}

	// Перечитываем запись, чтобы вернуть вызывающему created_at из БД
	created, err := s.versionRepo.GetVersionByID(detached, versionID)
	if err != nil {
		log.Printf("[VersionService] Версия %d создана, но не перечитана: %v", versionID, err)
		return nil, fmt.Errorf("ошибка чтения созданной версии: %w", err)
	}
	created.Content = note.Content
	return created, nil
}

// materializeContent подгружает контент снимка из объектного хранилища
// в поле Content версии.
func (s *versionService) materializeContent(ctx context.Context, version *models.NoteVersion) error {
	object, err := s.snapshots.DownloadObject(ctx, version.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("[VersionService] Снимок '%s' версии %d отсутствует в хранилище",
				version.ObjectKey, version.ID)
			return fmt.Errorf("%w: снимок версии %d отсутствует", ErrSnapshotStorage, version.ID)
		}
		log.Printf("[VersionService] Ошибка скачивания снимка '%s' версии %d: %v",
			version.ObjectKey, version.ID, err)
		return fmt.Errorf("%w: %v", ErrSnapshotStorage, err)
	}
	defer func() {
		if closeErr := object.Close(); closeErr != nil {
			log.Printf("[VersionService] Ошибка закрытия снимка '%s': %v", version.ObjectKey, closeErr)
		}
	}()

	content, err := io.ReadAll(object)
	if err != nil {
		log.Printf("[VersionService] Ошибка чтения снимка '%s' версии %d: %v",
			version.ObjectKey, version.ID, err)
		return fmt.Errorf("%w: %v", ErrSnapshotStorage, err)
	}

	version.Content = string(content)
	return nil
}

// contentHash возвращает SHA-256 контента в hex — отпечаток для
// дедупликации и детекции изменений без скачивания снимков.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// tagsEqual сравнивает наборы тегов как множества: порядок и дубликаты
// не влияют на результат.
func tagsEqual(a, b []string) bool {
	added, removed := tagsDiff(a, b)
	return len(added) == 0 && len(removed) == 0
}

// tagsDiff возвращает отсортированные списки тегов, добавленных в b
// и пропавших из a.
func tagsDiff(a, b []string) (added, removed []string) {
	inA := make(map[string]bool, len(a))
	for _, tag := range a {
		inA[tag] = true
	}
	inB := make(map[string]bool, len(b))
	for _, tag := range b {
		inB[tag] = true
	}

	added = make([]string, 0)
	for tag := range inB {
		if !inA[tag] {
			added = append(added, tag)
		}
	}
	removed = make([]string, 0)
	for tag := range inA {
		if !inB[tag] {
			removed = append(removed, tag)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
