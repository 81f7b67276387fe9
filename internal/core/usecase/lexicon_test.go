package usecase

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func TestLoadLexiconCoversTaxonomies(t *testing.T) {
	lexicon, err := LoadLexicon()
	if err != nil {
		t.Fatalf("LoadLexicon() error = %v", err)
	}
	if len(lexicon.categories) != len(domain.KnownIntents()) {
		t.Fatalf("expected %d intent entries, got %d", len(domain.KnownIntents()), len(lexicon.categories))
	}
	for _, stage := range domain.FunnelOrder() {
		if lexicon.Guidance(stage) == "" {
			t.Errorf("stage %s has no guidance", stage)
		}
		if lexicon.StuckAfter(stage) <= 0 {
			t.Errorf("stage %s has no stuck threshold", stage)
		}
	}
	if lexicon.StuckAfter(domain.StageGreeting) != 5*time.Minute {
		t.Fatalf("expected 5m greeting threshold, got %s", lexicon.StuckAfter(domain.StageGreeting))
	}
}

func TestParseLexiconRejectsUnknownIntent(t *testing.T) {
	raw := []byte("intents:\n  smalltalk:\n    keywords:\n      en: [weather]\n")
	if _, err := parseLexicon(raw); err == nil || !strings.Contains(err.Error(), "unknown intent") {
		t.Fatalf("expected unknown intent error, got %v", err)
	}
}

func TestParseLexiconRejectsUnknownStage(t *testing.T) {
	lexicon := string(lexiconYAML) + "  haggling:\n    guidance: \"nope\"\n"
	if _, err := parseLexicon([]byte(lexicon)); err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestParseLexiconRequiresEveryIntent(t *testing.T) {
	raw := []byte("intents:\n  greeting:\n    keywords:\n      en: [hello]\n")
	if _, err := parseLexicon(raw); err == nil || !strings.Contains(err.Error(), "no lexicon entry") {
		t.Fatalf("expected missing intent error, got %v", err)
	}
}

func TestParseLexiconRejectsBadPattern(t *testing.T) {
	raw := []byte("intents:\n  greeting:\n    patterns: ['([']\n")
	if _, err := parseLexicon(raw); err == nil {
		t.Fatalf("expected pattern compile error")
	}
}

func TestScoreSentimentPolarity(t *testing.T) {
	lexicon := testLexicon(t)

	if got := lexicon.ScoreSentiment("this is great, thanks"); got != 1.0 {
		t.Fatalf("expected fully positive, got %.2f", got)
	}
	if got := lexicon.ScoreSentiment("это ужасно и бесполезно"); got != -1.0 {
		t.Fatalf("expected fully negative, got %.2f", got)
	}
	if got := lexicon.ScoreSentiment("the setup was good but slow"); math.Abs(got) > 1e-9 {
		t.Fatalf("expected balanced polarity 0, got %.2f", got)
	}
	if got := lexicon.ScoreSentiment("neutral text with no polarity"); got != 0 {
		t.Fatalf("expected 0 without polarity words, got %.2f", got)
	}
}
