package model

// Provider defaults carried over from the original media services.
const (
	DefaultSceneCount     = 7
	DefaultCharacterCount = 2
	DefaultImageModel     = "gemini-3-pro-image-preview-hd"
	DefaultImageSize      = "1024x1024"
	DefaultVideoModel     = "sora-1"
	DefaultVideoSeconds   = "10"
)

// ScriptParams are the params of a script task
type ScriptParams struct {
	Prompt         string   `json:"prompt" validate:"required"`
	UserImages     []string `json:"userImages,omitempty" validate:"omitempty,max=4"`
	SceneCount     int      `json:"sceneCount,omitempty" validate:"omitempty,min=1,max=20"`
	CharacterCount int      `json:"characterCount,omitempty" validate:"omitempty,min=1,max=10"`
}

// ApplyDefaults fills unset knobs.
func (p *ScriptParams) ApplyDefaults() {
	if p.SceneCount == 0 {
		p.SceneCount = DefaultSceneCount
	}
	if p.CharacterCount == 0 {
		p.CharacterCount = DefaultCharacterCount
	}
}

// ImageParams are the params of an image task
type ImageParams struct {
	Prompt          string   `json:"prompt" validate:"required"`
	Model           string   `json:"model,omitempty"`
	Size            string   `json:"size,omitempty" validate:"omitempty,oneof=256x256 512x512 1024x1024 1024x1792 1792x1024"`
	ReferenceImages []string `json:"referenceImages,omitempty" validate:"omitempty,max=4,dive,required"`
}

func (p *ImageParams) ApplyDefaults() {
	if p.Model == "" {
		p.Model = DefaultImageModel
	}
	if p.Size == "" {
		p.Size = DefaultImageSize
	}
}

// VideoParams are the params of a video task
type VideoParams struct {
	Prompt          string   `json:"prompt" validate:"required"`
	ImageURL        string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Seconds         string   `json:"seconds,omitempty" validate:"omitempty,oneof=5 10 15 20"`
	Model           string   `json:"model,omitempty"`
	ReferenceImages []string `json:"referenceImages,omitempty" validate:"omitempty,max=4,dive,url"`
}

func (p *VideoParams) ApplyDefaults() {
	if p.Model == "" {
		p.Model = DefaultVideoModel
	}
	if p.Seconds == "" {
		p.Seconds = DefaultVideoSeconds
	}
}

// Script is the structured output of a script task
type Script struct {
	Title      string      `json:"title" validate:"required"`
	Scenes     []Scene     `json:"scenes" validate:"required,min=1,dive"`
	Characters []Character `json:"characters" validate:"omitempty,dive"`
}

// Scene is one narrated shot of a script
type Scene struct {
	SceneID              int    `json:"sceneId" validate:"required,min=1"`
	Narration            string `json:"narration" validate:"required"`
	ImagePrompt          string `json:"imagePrompt" validate:"required"`
	VideoPrompt          string `json:"videoPrompt" validate:"required"`
	CharacterDescription string `json:"characterDescription,omitempty"`
}

// Character is a recurring character of a script
type Character struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}

// MediaResult is the result of an image or video task
type MediaResult struct {
	URL           string `json:"url"`
	StorageURL    string `json:"storageUrl,omitempty"`
	ProviderJobID string `json:"providerJobId,omitempty"`
	Model         string `json:"model,omitempty"`
	Size          string `json:"size,omitempty"`
	Seconds       string `json:"seconds,omitempty"`
}
