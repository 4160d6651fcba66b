package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zapisnik/zapisnik-server/internal/handlers"
	"github.com/zapisnik/zapisnik-server/internal/models"
	"github.com/zapisnik/zapisnik-server/internal/services"
)

// MockVersionService is a mock for VersionService.
type MockVersionService struct {
	mock.Mock
}

func (m *MockVersionService) ListVersions(
	ctx context.Context,
	noteID int64,
	limit, offset int,
) ([]models.NoteVersion, error) {
	args := m.Called(ctx, noteID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).([]models.NoteVersion), args.Error(1)
}

func (m *MockVersionService) GetVersion(ctx context.Context, versionID int64) (*models.NoteVersion, error) {
	args := m.Called(ctx, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.NoteVersion), args.Error(1)
}

func (m *MockVersionService) CreateManualVersion(
	ctx context.Context,
	noteID int64,
	comment *string,
) (*models.NoteVersion, error) {
	args := m.Called(ctx, noteID, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.NoteVersion), args.Error(1)
}

func (m *MockVersionService) AutoSnapshot(ctx context.Context, noteID int64) (*models.NoteVersion, error) {
	args := m.Called(ctx, noteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.NoteVersion), args.Error(1)
}

func (m *MockVersionService) RestoreVersion(
	ctx context.Context,
	versionID int64,
	comment *string,
) (*models.NoteVersion, error) {
	args := m.Called(ctx, versionID, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.NoteVersion), args.Error(1)
}

func (m *MockVersionService) DeleteVersion(ctx context.Context, versionID int64) error {
	args := m.Called(ctx, versionID)
	return args.Error(0)
}

func (m *MockVersionService) CompareVersions(
	ctx context.Context,
	noteID, versionAID, versionBID int64,
) (*models.VersionComparison, error) {
	args := m.Called(ctx, noteID, versionAID, versionBID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(*models.VersionComparison), args.Error(1)
}

// fakeActivityRecorder записывает полученные сигналы редактирования.
type fakeActivityRecorder struct {
	touched []int64
}

func (f *fakeActivityRecorder) Touch(noteID int64) {
	f.touched = append(f.touched, noteID)
}

// Вспомогательная функция: поднимает роутер с маршрутами истории версий,
// как их монтирует сервер.
func setupVersionRouter(t *testing.T) (*chi.Mux, *MockVersionService, *fakeActivityRecorder) {
	t.Helper()
	mockService := new(MockVersionService)
	activity := &fakeActivityRecorder{}
	handler := handlers.NewVersionHandler(mockService, activity)

	r := chi.NewRouter()
	r.Route("/api/versions", func(r chi.Router) {
		r.Post("/restore", handler.Restore)
		r.Get("/version/{versionID}", handler.GetVersion)
		r.Delete("/{versionID}", handler.DeleteVersion)
		r.Route("/{noteID}", func(r chi.Router) {
			r.Get("/", handler.ListVersions)
			r.Post("/manual-save", handler.CreateManualVersion)
			r.Post("/activity", handler.RecordActivity)
			r.Get("/compare/{versionA}/{versionB}", handler.Compare)
		})
	})
	return r, mockService, activity
}

func performRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestListVersionsHandler(t *testing.T) {
	now := time.Now()
	versions := []models.NoteVersion{
		{ID: 2, NoteID: 7, VersionType: models.VersionTypeAutoSave, Title: "Черновик", CreatedAt: now},
		{ID: 1, NoteID: 7, VersionType: models.VersionTypeManualSave, Title: "Черновик", CreatedAt: now.Add(-time.Hour)},
	}

	t.Run("Успех: параметры пагинации передаются в сервис", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("ListVersions", mock.Anything, int64(7), 5, 10).Return(versions, nil).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/7?limit=5&offset=10", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"version_type":"auto_save"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Без параметров пагинации передаются нули", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("ListVersions", mock.Anything, int64(7), 0, 0).
			Return([]models.NoteVersion{}, nil).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/7", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Неверный ID заметки", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)

		rr := performRequest(router, http.MethodGet, "/api/versions/abc", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "ListVersions",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Внутренняя ошибка сервиса", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("ListVersions", mock.Anything, int64(7), 0, 0).
			Return(nil, errors.New("db down")).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/7", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestGetVersionHandler(t *testing.T) {
	version := &models.NoteVersion{
		ID: 11, NoteID: 7, VersionType: models.VersionTypeManualSave,
		Title: "Черновик", Content: "текст заметки",
	}

	t.Run("Успех: версия возвращается с контентом", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("GetVersion", mock.Anything, int64(11)).Return(version, nil).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/version/11", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"content":"текст заметки"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Версия не найдена", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("GetVersion", mock.Anything, int64(99)).
			Return(nil, services.ErrVersionNotFound).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/version/99", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Хранилище снимков недоступно", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("GetVersion", mock.Anything, int64(11)).
			Return(nil, fmt.Errorf("%w: minio down", services.ErrSnapshotStorage)).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/version/11", "")

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestCreateManualVersionHandler(t *testing.T) {
	created := &models.NoteVersion{
		ID: 101, NoteID: 7, VersionType: models.VersionTypeManualSave, Title: "Черновик",
	}

	t.Run("Успех: с комментарием", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("CreateManualVersion", mock.Anything, int64(7),
			mock.MatchedBy(func(c *string) bool { return c != nil && *c == "контрольная точка" })).
			Return(created, nil).Once()

		rr := performRequest(router, http.MethodPost, "/api/versions/7/manual-save",
			`{"comment":"контрольная точка"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), `"version_type":"manual_save"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Успех: без тела запроса комментарий nil", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("CreateManualVersion", mock.Anything, int64(7), (*string)(nil)).
			Return(created, nil).Once()

		rr := performRequest(router, http.MethodPost, "/api/versions/7/manual-save", "")

		assert.Equal(t, http.StatusCreated, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Невалидный JSON", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)

		rr := performRequest(router, http.MethodPost, "/api/versions/7/manual-save", `{некорректно`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "CreateManualVersion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Заметка не найдена", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("CreateManualVersion", mock.Anything, int64(8), (*string)(nil)).
			Return(nil, services.ErrNoteNotFound).Once()

		rr := performRequest(router, http.MethodPost, "/api/versions/8/manual-save", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestRecordActivityHandler(t *testing.T) {
	t.Run("Успех: сигнал принят и передан планировщику", func(t *testing.T) {
		router, _, activity := setupVersionRouter(t)

		rr := performRequest(router, http.MethodPost, "/api/versions/7/activity", "")

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, []int64{7}, activity.touched)
	})

	t.Run("Неверный ID заметки", func(t *testing.T) {
		router, _, activity := setupVersionRouter(t)

		rr := performRequest(router, http.MethodPost, "/api/versions/-1/activity", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, activity.touched)
	})
}

func TestRestoreHandler(t *testing.T) {
	restored := &models.NoteVersion{
		ID: 41, NoteID: 7, VersionType: models.VersionTypeRestore, Title: "Черновик",
	}

	t.Run("Успех: возвращается созданная restore-запись", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("RestoreVersion", mock.Anything, int64(40), (*string)(nil)).
			Return(restored, nil).Once()

		rr := performRequest(router, http.MethodPost, "/api/versions/restore", `{"version_id":40}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), `"version_type":"restore"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Невалидный JSON", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)

		rr := performRequest(router, http.MethodPost, "/api/versions/restore", `не json`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "RestoreVersion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Отсутствует ID версии", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)

		rr := performRequest(router, http.MethodPost, "/api/versions/restore", `{"comment":"revert"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "RestoreVersion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Целевая версия не найдена", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("RestoreVersion", mock.Anything, int64(99), (*string)(nil)).
			Return(nil, services.ErrVersionNotFound).Once()

		rr := performRequest(router, http.MethodPost, "/api/versions/restore", `{"version_id":99}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDeleteVersionHandler(t *testing.T) {
	t.Run("Успех", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("DeleteVersion", mock.Anything, int64(60)).Return(nil).Once()

		rr := performRequest(router, http.MethodDelete, "/api/versions/60", "")

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Body.String())
		mockService.AssertExpectations(t)
	})

	t.Run("Неручная версия", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("DeleteVersion", mock.Anything, int64(62)).
			Return(services.ErrNotManualVersion).Once()

		rr := performRequest(router, http.MethodDelete, "/api/versions/62", "")

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Версия не найдена", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("DeleteVersion", mock.Anything, int64(64)).
			Return(services.ErrVersionNotFound).Once()

		rr := performRequest(router, http.MethodDelete, "/api/versions/64", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCompareHandler(t *testing.T) {
	result := &models.VersionComparison{
		VersionA:       &models.NoteVersion{ID: 70, NoteID: 7},
		VersionB:       &models.NoteVersion{ID: 71, NoteID: 7},
		ContentChanged: true,
		ContentDelta:   12,
	}

	t.Run("Успех", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("CompareVersions", mock.Anything, int64(7), int64(70), int64(71)).
			Return(result, nil).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/7/compare/70/71", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"content_changed":true`)
		mockService.AssertExpectations(t)
	})

	t.Run("Версии разных заметок", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)
		mockService.On("CompareVersions", mock.Anything, int64(7), int64(70), int64(80)).
			Return(nil, services.ErrVersionWrongNote).Once()

		rr := performRequest(router, http.MethodGet, "/api/versions/7/compare/70/80", "")

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Неверный ID версии в пути", func(t *testing.T) {
		router, mockService, _ := setupVersionRouter(t)

		rr := performRequest(router, http.MethodGet, "/api/versions/7/compare/70/xyz", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "CompareVersions",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// Убедимся на уровне компиляции, что мок реализует интерфейс сервиса.
var _ services.VersionService = (*MockVersionService)(nil)
