package generation

import (
	"testing"

	"bannerly/internal/types"
)

func TestBuildPromptWithFullBrandKit(t *testing.T) {
	kit := &types.BrandKit{
		PrimaryColor:        "#FF5733",
		SecondaryColor:      "#1A1A2E",
		BusinessDescription: "artisanal coffee roastery",
	}

	got := BuildPrompt("Summer sale banner", "minimalist", "include a 20% off badge", kit)
	want := "Summer sale banner Theme: minimalist. Brand colors: #FF5733 and #1A1A2E. " +
		"Business: artisanal coffee roastery. Banner details: include a 20% off badge."

	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestBuildPromptWithoutBrandKit(t *testing.T) {
	got := BuildPrompt("Launch announcement", "bold", "", nil)
	want := "Launch announcement Theme: bold."

	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestBuildPromptSingleColor(t *testing.T) {
	kit := &types.BrandKit{PrimaryColor: "#00FF00"}

	got := BuildPrompt("Grand opening", "", "", kit)
	want := "Grand opening Brand color: #00FF00."

	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestBuildPromptTrimsInput(t *testing.T) {
	got := BuildPrompt("  padded text  ", " retro ", "", nil)
	want := "padded text Theme: retro."

	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	kit := &types.BrandKit{PrimaryColor: "#111111", BusinessDescription: "bakery"}
	first := BuildPrompt("text", "theme", "details", kit)
	second := BuildPrompt("text", "theme", "details", kit)

	if first != second {
		t.Errorf("BuildPrompt() not deterministic: %q vs %q", first, second)
	}
}

func TestSelectModel(t *testing.T) {
	if got := selectModel(nil); got != modelText {
		t.Errorf("selectModel(nil) = %q, want %q", got, modelText)
	}
	if got := selectModel([]string{"https://cdn.example.com/logo.png"}); got != modelReference {
		t.Errorf("selectModel(refs) = %q, want %q", got, modelReference)
	}
}
