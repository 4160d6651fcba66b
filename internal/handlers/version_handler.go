package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zapisnik/zapisnik-server/internal/models"
	"github.com/zapisnik/zapisnik-server/internal/services"
)

// ActivityRecorder принимает сигналы редактирования для отложенных
// автосохранений. Реализуется services.AutosaveScheduler.
type ActivityRecorder interface {
	Touch(noteID int64)
}

// VersionHandler обрабатывает HTTP-запросы к истории версий заметок.
type VersionHandler struct {
	versionService services.VersionService
	activity       ActivityRecorder
}

// NewVersionHandler создает новый экземпляр VersionHandler.
func NewVersionHandler(vs services.VersionService, activity ActivityRecorder) *VersionHandler {
	return &VersionHandler{versionService: vs, activity: activity}
}

// ListVersions обрабатывает GET запрос на получение списка версий заметки.
// Версии возвращаются сначала новые, без контента снимков.
func (h *VersionHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	noteID, ok := parseIDParam(w, r, "noteID")
	if !ok {
		return
	}

	// Параметры пагинации; сервис дополнительно подрежет limit до максимума
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")
	limit, _ := strconv.Atoi(limitStr)
	offset, _ := strconv.Atoi(offsetStr)

	log.Printf("[VersionHandler:ListVersions] Запрос списка версий заметки %d (limit=%d, offset=%d)",
		noteID, limit, offset)

	versions, err := h.versionService.ListVersions(r.Context(), noteID, limit, offset)
	if err != nil {
		h.writeServiceError(w, "ListVersions", err)
		return
	}

	writeJSON(w, http.StatusOK, versions)
}

// GetVersion обрабатывает GET запрос на получение одной версии с контентом.
func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	versionID, ok := parseIDParam(w, r, "versionID")
	if !ok {
		return
	}

	log.Printf("[VersionHandler:GetVersion] Запрос версии %d", versionID)

	version, err := h.versionService.GetVersion(r.Context(), versionID)
	if err != nil {
		h.writeServiceError(w, "GetVersion", err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// CreateManualVersion обрабатывает POST запрос на ручную контрольную точку.
// Тело запроса может содержать необязательный комментарий.
func (h *VersionHandler) CreateManualVersion(w http.ResponseWriter, r *http.Request) {
	noteID, ok := parseIDParam(w, r, "noteID")
	if !ok {
		return
	}

	var req models.ManualSaveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("[VersionHandler:CreateManualVersion] Ошибка декодирования запроса: %v", err)
			http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
			return
		}
	}

	log.Printf("[VersionHandler:CreateManualVersion] Запрос контрольной точки для заметки %d", noteID)

	version, err := h.versionService.CreateManualVersion(r.Context(), noteID, req.Comment)
	if err != nil {
		h.writeServiceError(w, "CreateManualVersion", err)
		return
	}

	writeJSON(w, http.StatusCreated, version)
}

// RecordActivity обрабатывает POST сигнал о редактировании заметки.
// Сигнал перевзводит таймер автосохранения; сам снимок (если состояние
// изменилось) будет создан после окна бездействия.
func (h *VersionHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	noteID, ok := parseIDParam(w, r, "noteID")
	if !ok {
		return
	}

	h.activity.Touch(noteID)
	w.WriteHeader(http.StatusAccepted)
}

// Restore обрабатывает POST запрос на откат заметки к указанной версии.
// Возвращает созданную restore-запись — новую голову истории.
func (h *VersionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req models.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[VersionHandler:Restore] Ошибка декодирования запроса на откат: %v", err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	if req.VersionID <= 0 {
		http.Error(w, "Неверный ID версии", http.StatusBadRequest)
		return
	}

	log.Printf("[VersionHandler:Restore] Запрос на откат к версии %d", req.VersionID)

	version, err := h.versionService.RestoreVersion(r.Context(), req.VersionID, req.Comment)
	if err != nil {
		h.writeServiceError(w, "Restore", err)
		return
	}

	log.Printf("[VersionHandler:Restore] Успешный откат, создана restore-запись %d", version.ID)
	writeJSON(w, http.StatusCreated, version)
}

// DeleteVersion обрабатывает DELETE запрос на удаление ручной контрольной точки.
func (h *VersionHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	versionID, ok := parseIDParam(w, r, "versionID")
	if !ok {
		return
	}

	log.Printf("[VersionHandler:DeleteVersion] Запрос на удаление версии %d", versionID)

	if err := h.versionService.DeleteVersion(r.Context(), versionID); err != nil {
		h.writeServiceError(w, "DeleteVersion", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Compare обрабатывает GET запрос на сравнение двух версий одной заметки.
func (h *VersionHandler) Compare(w http.ResponseWriter, r *http.Request) {
	noteID, ok := parseIDParam(w, r, "noteID")
	if !ok {
		return
	}
	versionAID, ok := parseIDParam(w, r, "versionA")
	if !ok {
		return
	}
	versionBID, ok := parseIDParam(w, r, "versionB")
	if !ok {
		return
	}

	log.Printf("[VersionHandler:Compare] Запрос сравнения версий %d и %d заметки %d",
		versionAID, versionBID, noteID)

	result, err := h.versionService.CompareVersions(r.Context(), noteID, versionAID, versionBID)
	if err != nil {
		h.writeServiceError(w, "Compare", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeServiceError транслирует ошибки сервиса в HTTP-статусы:
// не найдено — 404, недопустимая операция — 409, недоступность
// хранилища снимков — 503, прочее — 500.
func (h *VersionHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrNoteNotFound):
		log.Printf("[VersionHandler:%s] Заметка не найдена", op)
		http.Error(w, "Заметка не найдена", http.StatusNotFound)
	case errors.Is(err, services.ErrVersionNotFound):
		log.Printf("[VersionHandler:%s] Версия не найдена", op)
		http.Error(w, "Версия не найдена", http.StatusNotFound)
	case errors.Is(err, services.ErrNotManualVersion):
		log.Printf("[VersionHandler:%s] Попытка удалить неручную версию", op)
		http.Error(w, "Удалять можно только ручные контрольные точки", http.StatusConflict)
	case errors.Is(err, services.ErrVersionWrongNote):
		log.Printf("[VersionHandler:%s] Версии принадлежат разным заметкам", op)
		http.Error(w, "Версии принадлежат разным заметкам", http.StatusConflict)
	case errors.Is(err, services.ErrSnapshotStorage):
		log.Printf("[VersionHandler:%s] Хранилище снимков недоступно: %v", op, err)
		http.Error(w, "Хранилище снимков временно недоступно, повторите запрос", http.StatusServiceUnavailable)
	default:
		log.Printf("[VersionHandler:%s] Внутренняя ошибка: %v", op, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
	}
}

// parseIDParam извлекает положительный числовой параметр маршрута.
// При неверном значении пишет 400 и возвращает ok=false.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		log.Printf("[VersionHandler] Неверный параметр %s: '%s'", name, raw)
		http.Error(w, "Неверный ID в пути запроса", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeJSON кодирует ответ в JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[VersionHandler] Ошибка кодирования JSON-ответа: %v", err)
	}
}
