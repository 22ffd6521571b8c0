package tts

// AvailableVoices содержит список поддерживаемых голосов Murf.
// Голоса выбраны из каталога вендора для разговорного английского.
var AvailableVoices = []VoiceInfo{
	{
		ID:          "en-US-natalie",
		Name:        "Natalie",
		Description: "Женский голос, разговорный американский английский",
	},
	{
		ID:          "en-US-terrell",
		Name:        "Terrell",
		Description: "Мужской голос, спокойный тембр",
	},
	{
		ID:          "en-US-miles",
		Name:        "Miles",
		Description: "Мужской голос, энергичная подача",
	},
	{
		ID:          "en-UK-ruby",
		Name:        "Ruby",
		Description: "Женский голос, британский английский",
	},
	{
		ID:          "en-US-amara",
		Name:        "Amara",
		Description: "Женский голос, мягкая подача",
	},
}

// VoiceInfo описывает информацию о голосе.
type VoiceInfo struct {
	ID          string `json:"id"`          // Идентификатор голоса для API
	Name        string `json:"name"`        // Короткое название для отображения
	Description string `json:"description"` // Описание голоса
}

// GetVoiceByID возвращает информацию о голосе по его ID.
// Если голос не найден, возвращает nil.
func GetVoiceByID(voiceID string) *VoiceInfo {
	for _, v := range AvailableVoices {
		if v.ID == voiceID {
			return &v
		}
	}
	return nil
}

// IsValidVoice проверяет, является ли voiceID поддерживаемым голосом.
func IsValidVoice(voiceID string) bool {
	return GetVoiceByID(voiceID) != nil
}

// GetVoiceName возвращает короткое название голоса по его ID.
// Если голос не найден, возвращает сам ID.
func GetVoiceName(voiceID string) string {
	if info := GetVoiceByID(voiceID); info != nil {
		return info.Name
	}
	return voiceID
}
