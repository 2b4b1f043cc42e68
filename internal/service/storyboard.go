package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"promo-server/internal/models"
)

// storyboardSystemPrompt instructs the model to answer with the storyboard
// JSON shape parseStoryboard expects.
const storyboardSystemPrompt = `You are a promotional video storyboard writer for a financial services brand.
Given raw lead context, respond with a single JSON object and nothing else:
{
  "pillar": "<content pillar>",
  "detected_mindset": "<lead mindset>",
  "template_used": "<narrative template name>",
  "refined_content": "<refined narration text>",
  "scenes": [
    {
      "number": 1,
      "script": "<narration for this scene>",
      "asset_type": "image" | "video" | "avatar_video",
      "image_prompt": "<prompt for still generation>",
      "video_prompt": "<prompt for motion generation>",
      "avatar_id": "<avatar identifier, avatar_video scenes only>",
      "voice_id": "<voice identifier, avatar_video scenes only>",
      "background": "<background hint, optional>"
    }
  ]
}
Produce exactly the number of scenes requested. Ground every claim in the provided context.`

// sceneCounts maps a duration tag to its mandated scene count.
var sceneCounts = map[string]int{
	"15s": 3,
	"30s": 5,
	"60s": 8,
}

// SceneCountForDuration returns the mandated scene count for a duration tag.
func SceneCountForDuration(durationTag string) (int, bool) {
	n, ok := sceneCounts[strings.ToLower(strings.TrimSpace(durationTag))]
	return n, ok
}

func buildSynthesisInput(rawText, durationTag string) string {
	var sb strings.Builder
	sb.WriteString("Lead context:\n")
	sb.WriteString(rawText)
	sb.WriteString("\n\nTarget duration: ")
	sb.WriteString(durationTag)
	if count, ok := SceneCountForDuration(durationTag); ok {
		fmt.Fprintf(&sb, " (%d scenes)", count)
	}
	return sb.String()
}

// storyboardPayload is the wire shape produced by the model.
type storyboardPayload struct {
	Pillar          string      `json:"pillar"`
	DetectedMindset string      `json:"detected_mindset"`
	TemplateUsed    string      `json:"template_used"`
	RefinedContent  string      `json:"refined_content"`
	Scenes          []sceneWire `json:"scenes"`
}

type sceneWire struct {
	Number      int    `json:"number"`
	Script      string `json:"script"`
	AssetType   string `json:"asset_type"`
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
	AvatarID    string `json:"avatar_id"`
	VoiceID     string `json:"voice_id"`
	Background  string `json:"background"`
}

// parseStoryboard decodes the model output into a SynthesisResult. Markdown
// fences around the JSON are tolerated. An empty scene list or a scene count
// that contradicts the duration tag is a synthesis failure.
func parseStoryboard(raw, durationTag string) (*models.SynthesisResult, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrSynthesisFailed)
	}

	var payload storyboardPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid storyboard JSON: %v", ErrSynthesisFailed, err)
	}
	if len(payload.Scenes) == 0 {
		return nil, fmt.Errorf("%w: storyboard is empty", ErrSynthesisFailed)
	}
	if expected, ok := SceneCountForDuration(durationTag); ok && len(payload.Scenes) != expected {
		return nil, fmt.Errorf("%w: storyboard has %d scenes, duration %q mandates %d",
			ErrSynthesisFailed, len(payload.Scenes), durationTag, expected)
	}

	result := &models.SynthesisResult{
		Pillar:          strings.TrimSpace(payload.Pillar),
		DetectedMindset: strings.TrimSpace(payload.DetectedMindset),
		TemplateUsed:    strings.TrimSpace(payload.TemplateUsed),
		RefinedContent:  strings.TrimSpace(payload.RefinedContent),
		Storyboard:      make([]models.Scene, 0, len(payload.Scenes)),
	}
	for i, sc := range payload.Scenes {
		number := sc.Number
		if number <= 0 {
			number = i + 1
		}
		result.Storyboard = append(result.Storyboard, models.Scene{
			Number:      number,
			Script:      strings.TrimSpace(sc.Script),
			AssetType:   normalizeAssetType(sc.AssetType),
			ImagePrompt: strings.TrimSpace(sc.ImagePrompt),
			VideoPrompt: strings.TrimSpace(sc.VideoPrompt),
			AvatarID:    strings.TrimSpace(sc.AvatarID),
			VoiceID:     strings.TrimSpace(sc.VoiceID),
			Background:  strings.TrimSpace(sc.Background),
		})
	}
	return result, nil
}

func normalizeAssetType(raw string) models.AssetType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "video":
		return models.AssetTypeVideo
	case "avatar_video", "avatar-video", "avatar":
		return models.AssetTypeAvatarVideo
	default:
		return models.AssetTypeImage
	}
}

// extractJSON returns the outermost JSON object in the text, stripping any
// surrounding prose or markdown fences.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
