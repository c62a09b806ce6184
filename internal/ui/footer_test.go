package ui

import (
	"strings"
	"testing"
)

func TestKeyPill(t *testing.T) {
	pill := keyPill("Esc", "Back")

	t.Run("ContainsKey", func(t *testing.T) {
		if !strings.Contains(pill, "Esc") {
			t.Error("expected pill to contain key")
		}
	})

	t.Run("ContainsDesc", func(t *testing.T) {
		if !strings.Contains(pill, "Back") {
			t.Error("expected pill to contain description")
		}
	})
}

func TestFooterHintsFollowScreen(t *testing.T) {
	m := &App{}
	about := m.footerHints()
	if about[0] != aboutFooterHints[0] {
		t.Errorf("expected about hints first, got %v", about)
	}

	m.settingsOpen = true
	settings := m.footerHints()
	if len(settings) != len(settingsFooterHints)+len(globalFooterHints) {
		t.Fatalf("unexpected settings hints %v", settings)
	}
	if settings[len(settings)-1] != globalFooterHints[len(globalFooterHints)-1] {
		t.Errorf("expected global hints last, got %v", settings)
	}
}

func TestRenderFooterListsHints(t *testing.T) {
	got := stripANSI(renderFooter([]footerHint{{"s", "Settings"}, {"q", "Quit"}}, 80, "ubuntu 24.04"))
	for _, want := range []string{"s", "Settings", "q", "Quit", "ubuntu 24.04"} {
		if !strings.Contains(got, want) {
			t.Errorf("footer %q missing %q", got, want)
		}
	}
	if w := len([]rune(got)); w != 80 {
		t.Errorf("expected host right-aligned at width 80, got %d", w)
	}
}

func TestTrimHintsToFitDropsContextFirst(t *testing.T) {
	hints := append(append([]footerHint{}, settingsFooterHints...), globalFooterHints...)
	full := renderHintsWidth(hints)

	trimmed := trimHintsToFit(hints, full-1)
	if len(trimmed) != len(hints)-1 || trimmed[0] != settingsFooterHints[1] {
		t.Fatalf("expected first context hint dropped, got %v", trimmed)
	}

	onlyGlobal := trimHintsToFit(hints, renderHintsWidth(globalFooterHints))
	if len(onlyGlobal) != len(globalFooterHints) {
		t.Fatalf("expected only global hints, got %v", onlyGlobal)
	}
	if got := trimHintsToFit(hints, 0); len(got) != 0 {
		t.Fatalf("expected no hints at zero width, got %v", got)
	}
}
