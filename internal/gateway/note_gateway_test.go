package gateway_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapisnik/zapisnik-server/internal/gateway"
	"github.com/zapisnik/zapisnik-server/internal/models"
)

// Вспомогательная функция для создания мока БД и шлюза заметок.
func setupNoteGatewayMock(t *testing.T) (gateway.NoteGateway, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return gateway.NewPostgresNoteGateway(sqlxDB), mock
}

func TestGetNote(t *testing.T) {
	now := time.Now()
	getQuery := regexp.QuoteMeta(
		`SELECT id, title, content, tags, created_at, updated_at FROM notes WHERE id=$1`,
	)

	testNote := &models.Note{
		ID:        42,
		Title:     "Список покупок",
		Content:   "- хлеб\n- молоко",
		Tags:      pq.StringArray{"быт"},
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}

	tests := []struct {
		name         string
		noteID       int64
		mockSetup    func(mock sqlmock.Sqlmock, noteID int64)
		expectedNote *models.Note
		expectedErr  error
	}{
		{
			name:   "Успешный поиск",
			noteID: 42,
			mockSetup: func(mock sqlmock.Sqlmock, noteID int64) {
				rows := sqlmock.NewRows([]string{"id", "title", "content", "tags", "created_at", "updated_at"}).
					AddRow(testNote.ID, testNote.Title, testNote.Content, "{быт}",
						testNote.CreatedAt, testNote.UpdatedAt)
				mock.ExpectQuery(getQuery).WithArgs(noteID).WillReturnRows(rows)
			},
			expectedNote: testNote,
			expectedErr:  nil,
		},
		{
			name:   "Заметка не найдена",
			noteID: 43,
			mockSetup: func(mock sqlmock.Sqlmock, noteID int64) {
				mock.ExpectQuery(getQuery).WithArgs(noteID).WillReturnError(sql.ErrNoRows)
			},
			expectedNote: nil,
			expectedErr:  gateway.ErrNoteNotFound,
		},
		{
			name:   "Ошибка базы данных",
			noteID: 44,
			mockSetup: func(mock sqlmock.Sqlmock, noteID int64) {
				mock.ExpectQuery(getQuery).WithArgs(noteID).WillReturnError(errors.New("get error"))
			},
			expectedNote: nil,
			expectedErr:  errors.New("ошибка выполнения запроса на получение заметки"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, mock := setupNoteGatewayMock(t)
			tt.mockSetup(mock, tt.noteID)

			note, err := gw.GetNote(context.Background(), tt.noteID)

			assert.Equal(t, tt.expectedNote, note)
			if tt.expectedErr == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				if errors.Is(tt.expectedErr, gateway.ErrNoteNotFound) {
					assert.ErrorIs(t, err, gateway.ErrNoteNotFound)
				} else {
					assert.Contains(t, err.Error(), tt.expectedErr.Error())
				}
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "Не все ожидания мока были выполнены")
		})
	}
}

func TestUpdateNote(t *testing.T) {
	updateQuery := regexp.QuoteMeta(
		`UPDATE notes SET title=$2, content=$3, tags=$4, updated_at=NOW() WHERE id=$1`,
	)

	t.Run("Успешная перезапись", func(t *testing.T) {
		gw, mock := setupNoteGatewayMock(t)
		mock.ExpectExec(updateQuery).
			WithArgs(int64(42), "Новый заголовок", "новый контент", pq.StringArray{"быт"}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := gw.UpdateNote(context.Background(), 42, "Новый заголовок", "новый контент", []string{"быт"})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Заметка не найдена", func(t *testing.T) {
		gw, mock := setupNoteGatewayMock(t)
		mock.ExpectExec(updateQuery).
			WithArgs(int64(43), "Заголовок", "контент", pq.StringArray{}).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := gw.UpdateNote(context.Background(), 43, "Заголовок", "контент", []string{})

		require.Error(t, err)
		assert.ErrorIs(t, err, gateway.ErrNoteNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка базы данных", func(t *testing.T) {
		gw, mock := setupNoteGatewayMock(t)
		mock.ExpectExec(updateQuery).
			WithArgs(int64(44), "Заголовок", "контент", pq.StringArray{}).
			WillReturnError(errors.New("update error"))

		err := gw.UpdateNote(context.Background(), 44, "Заголовок", "контент", []string{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка выполнения запроса на перезапись заметки")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
