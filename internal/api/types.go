package api

// Session is a capture session as stored by the backend.
type Session struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
	Transcript       string            `json:"transcript,omitempty"`
	ScreenSummary    string            `json:"screen_summary,omitempty"`
	StructuredIntent *StructuredIntent `json:"structured_intent,omitempty"`
}

// StructuredIntent is the intent the backend extracted from a session.
type StructuredIntent struct {
	Goal          string   `json:"goal"`
	CurrentState  string   `json:"current_state"`
	Constraints   []string `json:"constraints"`
	Tools         []string `json:"tools"`
	SkillLevel    string   `json:"skill_level"`
	DesiredOutput string   `json:"desired_output"`
}

// CaptureResult is the response to a capture, audio or screen upload. Fields
// the upload did not produce are empty.
type CaptureResult struct {
	SessionID     string `json:"session_id"`
	Transcript    string `json:"transcript,omitempty"`
	ScreenSummary string `json:"screen_summary,omitempty"`
}

// GenerateRequest optionally overrides the session's stored values.
type GenerateRequest struct {
	Transcript    string `json:"transcript,omitempty"`
	ScreenSummary string `json:"screen_summary,omitempty"`
}

// Prompts are the generated prompts for a session.
type Prompts struct {
	SessionID        string            `json:"session_id"`
	ShortPrompt      string            `json:"short_prompt"`
	DetailedPrompt   string            `json:"detailed_prompt"`
	ExpertPrompt     string            `json:"expert_prompt"`
	StructuredIntent *StructuredIntent `json:"structured_intent,omitempty"`
}

// ModelStatus is the backend's report on model availability.
type ModelStatus struct {
	ProjectID string         `json:"project_id"`
	Location  string         `json:"location"`
	Gemini    map[string]any `json:"gemini"`
}
