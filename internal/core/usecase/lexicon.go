package usecase

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

type lexiconFile struct {
	Intents map[string]struct {
		Keywords map[string][]string `yaml:"keywords"`
		Patterns []string            `yaml:"patterns"`
	} `yaml:"intents"`
	Sentiment struct {
		Positive map[string][]string `yaml:"positive"`
		Negative map[string][]string `yaml:"negative"`
	} `yaml:"sentiment"`
	Stages map[string]struct {
		Guidance   string `yaml:"guidance"`
		StuckAfter string `yaml:"stuck_after"`
	} `yaml:"stages"`
}

type categoryLexicon struct {
	tokens   map[string]struct{}
	phrases  []string
	patterns []*regexp.Regexp
}

// Lexicon is the compiled classification material: per-category keyword sets
// with all languages unioned, compiled patterns, sentiment polarity sets, and
// per-stage guidance. Immutable after load, safe for concurrent use.
type Lexicon struct {
	categories map[domain.IntentCategory]categoryLexicon
	positive   map[string]struct{}
	negative   map[string]struct{}
	guidance   map[domain.Stage]string
	stuckAfter map[domain.Stage]time.Duration
}

// LoadLexicon parses the embedded lexicon. The intent and stage names in the
// file must belong to the closed taxonomies; anything else is a load error,
// not a silent extension.
func LoadLexicon() (*Lexicon, error) {
	return parseLexicon(lexiconYAML)
}

func parseLexicon(raw []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := &Lexicon{
		categories: make(map[domain.IntentCategory]categoryLexicon, len(file.Intents)),
		positive:   make(map[string]struct{}),
		negative:   make(map[string]struct{}),
		guidance:   make(map[domain.Stage]string, len(file.Stages)),
		stuckAfter: make(map[domain.Stage]time.Duration, len(file.Stages)),
	}

	known := make(map[domain.IntentCategory]bool, len(domain.KnownIntents()))
	for _, category := range domain.KnownIntents() {
		known[category] = true
	}
	for name, entry := range file.Intents {
		category := domain.IntentCategory(name)
		if !known[category] {
			return nil, fmt.Errorf("parse lexicon: unknown intent %q", name)
		}
		compiled := categoryLexicon{tokens: make(map[string]struct{})}
		for _, words := range entry.Keywords {
			for _, word := range words {
				normalized := strings.ToLower(strings.TrimSpace(word))
				if normalized == "" {
					continue
				}
				if strings.Contains(normalized, " ") {
					compiled.phrases = append(compiled.phrases, normalized)
				} else {
					compiled.tokens[normalized] = struct{}{}
				}
			}
		}
		for _, pattern := range entry.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("parse lexicon: intent %q pattern %q: %w", name, pattern, err)
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		lex.categories[category] = compiled
	}
	for _, category := range domain.KnownIntents() {
		if _, ok := lex.categories[category]; !ok {
			return nil, fmt.Errorf("parse lexicon: intent %q has no lexicon entry", category)
		}
	}

	for _, words := range file.Sentiment.Positive {
		for _, word := range words {
			lex.positive[strings.ToLower(strings.TrimSpace(word))] = struct{}{}
		}
	}
	for _, words := range file.Sentiment.Negative {
		for _, word := range words {
			lex.negative[strings.ToLower(strings.TrimSpace(word))] = struct{}{}
		}
	}

	for name, entry := range file.Stages {
		stage := domain.Stage(name)
		if stage.Position() < 0 {
			return nil, fmt.Errorf("parse lexicon: unknown stage %q", name)
		}
		lex.guidance[stage] = strings.TrimSpace(entry.Guidance)
		if entry.StuckAfter != "" {
			d, err := time.ParseDuration(entry.StuckAfter)
			if err != nil {
				return nil, fmt.Errorf("parse lexicon: stage %q stuck_after: %w", name, err)
			}
			lex.stuckAfter[stage] = d
		}
	}
	for _, stage := range domain.FunnelOrder() {
		if _, ok := lex.guidance[stage]; !ok {
			return nil, fmt.Errorf("parse lexicon: stage %q has no guidance entry", stage)
		}
	}

	return lex, nil
}

// Guidance returns the prompt steering text for a stage.
func (l *Lexicon) Guidance(stage domain.Stage) string {
	return l.guidance[stage]
}

// StuckAfter returns the stage-specific threshold after which a
// non-progressing stage is flagged stuck. Zero means never.
func (l *Lexicon) StuckAfter(stage domain.Stage) time.Duration {
	return l.stuckAfter[stage]
}

// ScoreSentiment returns a polarity score in [-1, 1] from the bilingual
// sentiment lists, 0 when no polarity word is present. A trend signal, not
// model-grade sentiment.
func (l *Lexicon) ScoreSentiment(text string) float64 {
	pos, neg := 0, 0
	for token := range toTokenSet(text) {
		if _, ok := l.positive[token]; ok {
			pos++
		}
		if _, ok := l.negative[token]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
