package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// Значения по умолчанию для планировщика автосохранений.
const (
	DefaultAutosaveDebounce = 30 * time.Second
	autosaveTimeout         = 30 * time.Second
)

// AutosaveScheduler превращает сигналы редактирования в отложенные
// автосохранения. На каждую заметку — не более одного взведенного таймера:
// новый сигнал сбрасывает прежний таймер, а не ставит второй рядом.
// Снимок создается только после окна бездействия.
//
// Планировщик не хранит состояния снимков: решение о дедупликации
// принимает VersionService, перечитывая голову истории из БД.
type AutosaveScheduler struct {
	service  VersionService
	debounce time.Duration

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	stopped bool
}

// NewAutosaveScheduler создает планировщик с указанным окном бездействия.
// При debounce <= 0 используется значение по умолчанию.
func NewAutosaveScheduler(service VersionService, debounce time.Duration) *AutosaveScheduler {
	if debounce <= 0 {
		debounce = DefaultAutosaveDebounce
	}
	return &AutosaveScheduler{
		service:  service,
		debounce: debounce,
		timers:   make(map[int64]*time.Timer),
	}
}

// Touch регистрирует активность редактирования заметки и перевзводит
// ее таймер автосохранения.
func (s *AutosaveScheduler) Touch(noteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if timer, ok := s.timers[noteID]; ok {
		timer.Stop()
	}
	s.timers[noteID] = time.AfterFunc(s.debounce, func() {
		s.fire(noteID)
	})
}

// fire вызывается по истечении окна бездействия заметки.
func (s *AutosaveScheduler) fire(noteID int64) {
	s.mu.Lock()
	delete(s.timers, noteID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()

	version, err := s.service.AutoSnapshot(ctx, noteID)
	switch {
	case err != nil:
		log.Printf("[Autosave] Ошибка автосохранения заметки %d: %v", noteID, err)
	case version == nil:
		log.Printf("[Autosave] Заметка %d без изменений, снимок не создан", noteID)
	default:
		log.Printf("[Autosave] Создано автосохранение %d для заметки %d", version.ID, noteID)
	}
}

// Stop отменяет все взведенные таймеры. Дальнейшие вызовы Touch игнорируются.
func (s *AutosaveScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for noteID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, noteID)
	}
	log.Printf("[Autosave] Планировщик автосохранений остановлен")
}
