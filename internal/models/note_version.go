package models

import (
	"time"

	"github.com/lib/pq"
)

// Типы версий. Тип фиксируется при создании и больше не меняется.
const (
	VersionTypeAutoSave   = "auto_save"   // автосохранение по таймеру бездействия
	VersionTypeManualSave = "manual_save" // явная контрольная точка пользователя
	VersionTypeRestore    = "restore"     // запись-след отката к прошлой версии
)

// NoteVersion представляет неизменяемый снимок заметки на момент создания.
// Метаданные снимка хранятся в PostgreSQL, контент — отдельным объектом
// в S3/MinIO под ключом ObjectKey (по аналогии с хранением файлов хранилищ).
type NoteVersion struct {
	ID          int64          `db:"id" json:"id"`
	NoteID      int64          `db:"note_id" json:"note_id"`
	VersionType string         `db:"version_type" json:"version_type"`
	Title       string         `db:"title" json:"title"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	ObjectKey   string         `db:"object_key" json:"-"`
	ContentHash string         `db:"content_hash" json:"content_hash"`
	SizeBytes   int64          `db:"size_bytes" json:"size_bytes"`
	Comment     *string        `db:"comment" json:"comment,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`

	// Контент не хранится в строке БД: он подгружается из объектного
	// хранилища по требованию (получение одной версии, сравнение, откат).
	// В списках версий поле остается пустым.
	Content string `db:"-" json:"content,omitempty"`
}

// IsManual сообщает, является ли версия ручной контрольной точкой.
// Только такие версии разрешено удалять.
func (v *NoteVersion) IsManual() bool {
	return v.VersionType == VersionTypeManualSave
}
