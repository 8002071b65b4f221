package pipeline

import (
	"strings"
)

// Kind is the discriminator of a SlideResponse.
type Kind string

const (
	KindHTML         Kind = "HTML_CODE"
	KindConversation Kind = "CONVERSATION"
	KindError        Kind = "ERROR"
)

// IntentChat is the architect intent for a conversational reply.
const IntentChat = "CHAT"

// Strategy is the architect's content plan for one slide.
type Strategy struct {
	ActionTitle    string   `json:"actionTitle"`
	SlideArchetype string   `json:"slideArchetype"`
	Components     []string `json:"components"`
	NarrativeGoal  string   `json:"narrativeGoal"`
	DesignBrief    string   `json:"designBrief"`
	LoadingStrings []string `json:"loadingStrings"`
}

// Analysis is the architect stage result.
type Analysis struct {
	Intent   string    `json:"intent" validate:"required"`
	Reply    string    `json:"reply"`
	Strategy *Strategy `json:"slideStrategy"`
}

// Conversational reports whether the architect chose to reply instead of
// building a slide.
func (a *Analysis) Conversational() bool {
	return strings.EqualFold(a.Intent, IntentChat)
}

// StageOutput is what the designer and corrector stages return.
type StageOutput struct {
	Explanation string `json:"layout_strategy"`
	Markup      string `json:"htmlCode" validate:"required"`
}

// SlideResponse is the artifact returned to callers and stored in history.
type SlideResponse struct {
	Kind            Kind           `json:"layout"`
	ExplanatoryText string         `json:"conversationText"`
	MarkupCode      *string        `json:"htmlCode"`
	ActionTitle     string         `json:"actionTitle"`
	Subtitle        *string        `json:"subtitle"`
	Blocks          []ContentBlock `json:"blocks"`
}

type ContentBlock struct {
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	ChartData   *ChartData `json:"chartData,omitempty"`
	Metric      *Metric    `json:"metric,omitempty"`
}

type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
	Color string    `json:"color"`
}

type Metric struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Trend string `json:"trend"`
}

// State is a step of one pipeline run.
type State string

const (
	StateAnalyzing        State = "ANALYZING"
	StateConversationDone State = "CONVERSATION_DONE"
	StateDesigning        State = "DESIGNING"
	StateCorrecting       State = "CORRECTING"
	StateMerging          State = "MERGING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

func conversation(reply string) *SlideResponse {
	return &SlideResponse{Kind: KindConversation, ExplanatoryText: reply}
}

func failure(reason string) *SlideResponse {
	subtitle := "Analysis Failed"
	return &SlideResponse{
		Kind:            KindError,
		ExplanatoryText: reason,
		ActionTitle:     "System Error",
		Subtitle:        &subtitle,
		Blocks:          []ContentBlock{},
	}
}
