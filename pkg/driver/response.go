package driver

import "encoding/json"

// StructuredResponse is the parsed model output for one turn: text for the
// screen and text for the speech synthesizer.
type StructuredResponse struct {
	DisplayText string `json:"display_text"`
	SpeechText  string `json:"speech_text"`
}

// ParseStructuredResponse decodes the raw model output. When the body is not
// the expected JSON object, or a field is absent, the raw text takes its
// place so no output is ever silently dropped.
func ParseStructuredResponse(raw string) StructuredResponse {
	parsed := StructuredResponse{DisplayText: raw, SpeechText: raw}
	var decoded struct {
		DisplayText *string `json:"display_text"`
		SpeechText  *string `json:"speech_text"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return parsed
	}
	if decoded.DisplayText != nil {
		parsed.DisplayText = *decoded.DisplayText
	}
	if decoded.SpeechText != nil {
		parsed.SpeechText = *decoded.SpeechText
	}
	return parsed
}
