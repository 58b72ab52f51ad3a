package chat

// Result is the payload produced by one chat request. AudioURL may be empty
// when speech synthesis degraded to a text-only reply.
type Result struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
	LLMText    string `json:"llm_text"`
	AudioURL   string `json:"audio_url"`
}
