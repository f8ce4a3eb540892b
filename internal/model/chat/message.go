package chat

import "time"

// Message is one analysed utterance. It is never modified after creation.
type Message struct {
	ID            string    `json:"id"`
	Transcription string    `json:"transcription"`
	Emotion       string    `json:"emotion"`
	Response      string    `json:"gemini_response"`
	Timestamp     time.Time `json:"timestamp"`
}

// AnalysisResult is the validated payload returned by the analysis service.
type AnalysisResult struct {
	Transcription  string `json:"transcription"`
	Emotion        string `json:"emotion"`
	GeminiResponse string `json:"gemini_response"`
}
