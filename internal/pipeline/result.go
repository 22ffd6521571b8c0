package pipeline

// ErrorKind машиночитаемый вид ошибки одного обмена.
// Значения стабильны: веб-слой отображает их в статусы и сообщения.
type ErrorKind string

const (
	ErrKindNone   ErrorKind = ""
	ErrKindSTT    ErrorKind = "stt_failure"
	ErrKindLLM    ErrorKind = "llm_failure"
	ErrKindTTS    ErrorKind = "tts_failure"
	ErrKindConfig ErrorKind = "config_failure"
)

// ExchangeResult итог одного голосового обмена.
// При частичном сбое поля успевших стадий остаются заполненными:
// частичный результат всегда лучше полного отказа.
type ExchangeResult struct {
	SessionID     string
	Transcription string
	ReplyText     string
	AudioURL      string
	TurnCount     int
	ErrorKind     ErrorKind
	FallbackText  string
}

// Success сообщает, завершился ли обмен без ошибок.
func (r ExchangeResult) Success() bool {
	return r.ErrorKind == ErrKindNone
}

// Degraded сообщает, что обмен логически состоялся, но без аудио
// (синтез не удался, пара реплик уже в истории).
func (r ExchangeResult) Degraded() bool {
	return r.ErrorKind == ErrKindTTS
}
