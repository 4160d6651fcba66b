package models

import (
	"time"

	"github.com/lib/pq"
)

// Note представляет текущее (живое) состояние заметки.
// Записи в таблице notes принадлежат внешнему CRUD-сервису заметок,
// движок истории версий обращается к ним только через NoteGateway.
type Note struct {
	ID        int64          `db:"id" json:"id"`
	Title     string         `db:"title" json:"title"`
	Content   string         `db:"content" json:"content"`
	Tags      pq.StringArray `db:"tags" json:"tags"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
