package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrBannedContent  = errors.New("message contains banned words")
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	maxLength    int
	rejectOnHit  bool
}

type Options struct {
	BannedWords []string
	Replacement rune
	// MaxLength counts runes; zero disables the limit.
	MaxLength int
	// RejectOnMatch refuses messages with banned words instead of redacting them.
	RejectOnMatch bool
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the banned words.
func NewModerator(opts Options) (*Moderator, error) {
	patterns := make([][]rune, 0, len(opts.BannedWords))
	for _, word := range opts.BannedWords {
		if p := normalizeRunes([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if opts.Replacement == 0 {
		opts.Replacement = '*'
	}
	m := &Moderator{censoredChar: opts.Replacement, maxLength: opts.MaxLength, rejectOnHit: opts.RejectOnMatch}
	if len(patterns) == 0 {
		return m, nil
	}
	m.matcher = new(goahocorasick.Machine)
	if err := m.matcher.Build(patterns); err != nil {
		return nil, fmt.Errorf("build moderation automaton: %w", err)
	}
	return m, nil
}

// Filter implements the chat moderation pipeline: trim, length check, then censor or reject.
func (m *Moderator) Filter(_ context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if m.maxLength > 0 && utf8.RuneCountInString(text) > m.maxLength {
		return "", fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, m.maxLength)
	}
	censored, words := m.Censor(text)
	if len(words) > 0 {
		log.Debug().Str("module", "moderation").Int("hits", len(words)).Msg("banned words found")
		if m.rejectOnHit {
			return "", ErrBannedContent
		}
	}
	return censored, nil
}

// Censor replaces banned words with the replacement character while preserving spacing.
// It returns the matched words in order of appearance.
func (m *Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	words := make([]string, 0, len(spans))
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
		words = append(words, string(span.Word))
	}
	return string(origRunes), words
}

// normalize transforms the input into a searchable form and tracks original rune positions.
func normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet speak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
