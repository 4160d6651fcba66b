package models

// VersionComparison — результат структурного сравнения двух версий одной
// заметки. Флаги считаются точным сравнением значений полей (не семантикой),
// дельты размеров направлены от версии A к версии B.
type VersionComparison struct {
	VersionA *NoteVersion `json:"version_a"`
	VersionB *NoteVersion `json:"version_b"`

	TitleChanged   bool `json:"title_changed"`
	ContentChanged bool `json:"content_changed"`
	TagsChanged    bool `json:"tags_changed"`

	// Дельты длины заголовка и размера контента (B минус A), в байтах.
	TitleDelta   int64 `json:"title_delta"`
	ContentDelta int64 `json:"content_delta"`

	// Разница множеств тегов: что появилось в B и что из A пропало.
	TagsAdded   []string `json:"tags_added"`
	TagsRemoved []string `json:"tags_removed"`
}

// ManualSaveRequest представляет тело запроса на ручную контрольную точку.
type ManualSaveRequest struct {
	Comment *string `json:"comment,omitempty"`
}

// RestoreRequest представляет тело запроса на откат к версии.
type RestoreRequest struct {
	VersionID int64   `json:"version_id"`
	Comment   *string `json:"comment,omitempty"`
}
