// Package gateway содержит граничный контракт движка истории версий
// к CRUD-хранилищу заметок. Движок не владеет таблицей notes: он лишь
// читает текущее состояние заметки для снимков и перезаписывает его
// при откате к исторической версии.
package gateway

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

// Кастомные ошибки шлюза заметок.
var (
	ErrNoteNotFound = errors.New("заметка не найдена")
)

// NoteGateway определяет методы доступа к живому состоянию заметки.
type NoteGateway interface {
	GetNote(ctx context.Context, noteID int64) (*models.Note, error)
	UpdateNote(ctx context.Context, noteID int64, title, content string, tags []string) error
}

// postgresNoteGateway реализует NoteGateway поверх таблицы notes в PostgreSQL.
type postgresNoteGateway struct {
	db *sqlx.DB
}

// NewPostgresNoteGateway создает новый экземпляр шлюза заметок.
func NewPostgresNoteGateway(db *sqlx.DB) NoteGateway {
	return &postgresNoteGateway{db: db}
}

// GetNote возвращает текущее состояние заметки по ее ID.
// Возвращает ErrNoteNotFound, если заметка отсутствует или удалена.
func (g *postgresNoteGateway) GetNote(ctx context.Context, noteID int64) (*models.Note, error) {
	query := `SELECT id, title, content, tags, created_at, updated_at FROM notes WHERE id=$1`
	var note models.Note

	err := g.db.GetContext(ctx, &note, query, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[NoteGateway] Заметка с ID %d не найдена", noteID)
			return nil, ErrNoteNotFound
		}
		log.Printf("[NoteGateway] Ошибка при получении заметки ID %d: %v", noteID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение заметки: %w", err)
	}

	return &note, nil
}

// UpdateNote полностью перезаписывает живое состояние заметки.
// Операция идемпотентна: повторная запись тех же значений безопасна.
// Возвращает ErrNoteNotFound, если заметка отсутствует.
func (g *postgresNoteGateway) UpdateNote(
	ctx context.Context,
	noteID int64,
	title, content string,
	tags []string,
) error {
	query := `UPDATE notes SET title=$2, content=$3, tags=$4, updated_at=NOW() WHERE id=$1`

	result, err := g.db.ExecContext(ctx, query, noteID, title, content, pq.StringArray(tags))
	if err != nil {
		log.Printf("[NoteGateway] Ошибка при перезаписи заметки ID %d: %v", noteID, err)
		return fmt.Errorf("ошибка выполнения запроса на перезапись заметки: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.Printf("[NoteGateway] Ошибка получения числа обновленных строк для заметки ID %d: %v", noteID, err)
		return fmt.Errorf("ошибка получения результата перезаписи заметки: %w", err)
	}
	if rows == 0 {
		log.Printf("[NoteGateway] Заметка с ID %d не найдена, перезаписывать нечего", noteID)
		return ErrNoteNotFound
	}

	log.Printf("[NoteGateway] Живое состояние заметки ID %d перезаписано", noteID)
	return nil
}
