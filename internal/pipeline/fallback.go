package pipeline

// fallbackPhrases озвучиваемые ответы для каждого вида ошибки.
// Клиент проговаривает их пользователю вместо ответа ассистента.
var fallbackPhrases = map[ErrorKind]string{
	ErrKindSTT:    "I'm having trouble understanding your voice right now. Please try again.",
	ErrKindLLM:    "I'm having trouble processing your request. Please try again.",
	ErrKindTTS:    "I'm having trouble speaking right now. Please try again.",
	ErrKindConfig: "I'm not properly configured. Please check the server setup.",
}

const generalFallback = "I'm experiencing technical difficulties. Please try again later."

// FallbackText возвращает озвучиваемый ответ для вида ошибки.
func FallbackText(kind ErrorKind) string {
	if phrase, ok := fallbackPhrases[kind]; ok {
		return phrase
	}
	return generalFallback
}
