package generation

import (
	"fmt"
	"strings"

	"bannerly/internal/types"
)

// Model identifiers for the generation API. The reference variant accepts
// logo/product images alongside the text prompt.
const (
	modelText      = "banner-v2"
	modelReference = "banner-v2-ref"
)

// BuildPrompt assembles the text prompt sent to the generation API from the
// user's input and their brand kit. The output is deterministic for a given
// input so repeated requests produce identical prompts.
func BuildPrompt(text, theme, details string, kit *types.BrandKit) string {
	var parts []string

	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	if t := strings.TrimSpace(theme); t != "" {
		parts = append(parts, fmt.Sprintf("Theme: %s.", t))
	}

	if kit != nil {
		switch {
		case kit.PrimaryColor != "" && kit.SecondaryColor != "":
			parts = append(parts, fmt.Sprintf("Brand colors: %s and %s.", kit.PrimaryColor, kit.SecondaryColor))
		case kit.PrimaryColor != "":
			parts = append(parts, fmt.Sprintf("Brand color: %s.", kit.PrimaryColor))
		case kit.SecondaryColor != "":
			parts = append(parts, fmt.Sprintf("Brand color: %s.", kit.SecondaryColor))
		}
		if kit.BusinessDescription != "" {
			parts = append(parts, fmt.Sprintf("Business: %s.", kit.BusinessDescription))
		}
	}

	if d := strings.TrimSpace(details); d != "" {
		parts = append(parts, fmt.Sprintf("Banner details: %s.", d))
	}

	return strings.Join(parts, " ")
}

// selectModel picks the reference-image model when any logo or product
// reference images accompany the request.
func selectModel(referenceImageURLs []string) string {
	if len(referenceImageURLs) > 0 {
		return modelReference
	}
	return modelText
}
