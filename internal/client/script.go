package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/model"
)

var scriptValidator = validator.New()

// screenplaySystemPrompt constrains the model to the script JSON schema.
func screenplaySystemPrompt(sceneCount, characterCount int) string {
	return fmt.Sprintf(`You are DirectorAI, a SCREENPLAY CREATION AGENT for short video production.

YOUR MISSION: Convert the user's creative idea into a multi-scene screenplay with exactly %[1]d scenes and %[2]d main characters.
Each scene will be turned into: Narration (Chinese) -> Image -> Video.

CRITICAL OUTPUT FORMAT:
You MUST respond with ONLY a valid JSON object. No markdown, no explanations, no thinking process.

JSON SCHEMA:
{
  "script_title": "script title",
  "scenes": [
    {
      "scene_id": 1,
      "narration": "Chinese narration describing the scene",
      "image_prompt": "Detailed English visual description for image generation",
      "video_prompt": "English motion description for video animation",
      "character_description": "Detailed character description for consistency across scenes"
    }
  ],
  "characters": [
    {
      "name": "character name",
      "description": "character description"
    }
  ]
}

GUIDELINES:
1. NUMBER OF SCENES: EXACTLY %[1]d SCENES
2. CHARACTER CONSISTENCY: The first scene's image_prompt MUST contain detailed character appearance
3. NARRATION: Short, evocative descriptions in Chinese (1-2 sentences per scene)
4. IMAGE_PROMPT: Always start with "anime style, manga art, 2D animation, cel shaded"
5. VIDEO_PROMPT: Motion description in English
`, sceneCount, characterCount)
}

// wireScript is the snake_case shape the models are asked to emit.
type wireScript struct {
	Title  string `json:"script_title"`
	Scenes []struct {
		SceneID              int    `json:"scene_id"`
		Narration            string `json:"narration"`
		ImagePrompt          string `json:"image_prompt"`
		VideoPrompt          string `json:"video_prompt"`
		CharacterDescription string `json:"character_description"`
	} `json:"scenes"`
	Characters []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"characters"`
}

// parseScript decodes raw model output into a validated Script. Output that
// is not JSON or misses required keys is a provider error.
func parseScript(provider, raw string) (*model.Script, error) {
	var ws wireScript
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &ws); err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "%s returned a script that is not valid JSON", provider)
	}

	script := &model.Script{Title: ws.Title}
	for _, s := range ws.Scenes {
		script.Scenes = append(script.Scenes, model.Scene{
			SceneID:              s.SceneID,
			Narration:            s.Narration,
			ImagePrompt:          s.ImagePrompt,
			VideoPrompt:          s.VideoPrompt,
			CharacterDescription: s.CharacterDescription,
		})
	}
	for _, c := range ws.Characters {
		script.Characters = append(script.Characters, model.Character{Name: c.Name, Description: c.Description})
	}

	if err := scriptValidator.Struct(script); err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "%s returned an incomplete script: %v", provider, err)
	}
	return script, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
