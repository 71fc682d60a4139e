package policy

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision is the transient outcome of one policy evaluation. Only its
// summary ends up in an audit record; it is never persisted on its own.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Reasons       []string  `json:"reasons,omitempty"`
	FacesDetected int       `json:"faces_detected"`
}

// Engine evaluates edit instructions against the tiered vocabulary. Pure
// decision logic: face detection happens upstream and only its count is
// passed in. The vocabulary pointer is swapped atomically on reload.
type Engine struct {
	vocab atomic.Pointer[Vocabulary]
	log   *zap.Logger
}

func NewEngine(vocab Vocabulary, log *zap.Logger) *Engine {
	e := &Engine{log: log.Named("policy")}
	v := vocab.withDefaults()
	e.vocab.Store(&v)
	return e
}

func (e *Engine) SetVocabulary(vocab Vocabulary) error {
	v := vocab.withDefaults()
	if err := v.validate(); err != nil {
		return err
	}
	e.vocab.Store(&v)
	return nil
}

// Evaluate applies the tiers in order, short-circuiting on the first match.
// Text intent is checked before and independently of image content: a
// forbidden term denies even when no face was detected.
func (e *Engine) Evaluate(instruction string, facesDetected int, preserveIdentity bool) Decision {
	v := e.vocab.Load()
	text := normalize(instruction)

	if term := matchAny(text, v.Forbidden); term != "" {
		return Decision{
			Allowed:       false,
			RiskLevel:     RiskHigh,
			Reasons:       []string{term},
			FacesDetected: facesDetected,
		}
	}

	if term := matchAny(text, v.Structural); term != "" {
		return Decision{
			Allowed:       false,
			RiskLevel:     RiskHigh,
			Reasons:       []string{term},
			FacesDetected: facesDetected,
		}
	}

	if facesDetected > 0 && preserveIdentity {
		if residual := residualIntents(text, v); len(residual) > 0 {
			return Decision{
				Allowed:       false,
				RiskLevel:     RiskMedium,
				Reasons:       residual,
				FacesDetected: facesDetected,
			}
		}
		return Decision{
			Allowed:       true,
			RiskLevel:     RiskMedium,
			FacesDetected: facesDetected,
		}
	}

	return Decision{
		Allowed:       true,
		RiskLevel:     RiskLow,
		FacesDetected: facesDetected,
	}
}

// residualIntents returns the intent segments that express an edit (carry an
// edit verb) but map to no allowed cosmetic term. Segments with neither a
// verb nor a known term are treated as ambiguous and allowed; see DESIGN.md.
func residualIntents(text string, v *Vocabulary) []string {
	var residual []string
	for _, segment := range splitIntents(text) {
		if matchAny(segment, v.Cosmetic) != "" {
			continue
		}
		if !containsWord(segment, v.EditVerbs) {
			continue
		}
		residual = append(residual, segment)
	}
	return residual
}

var intentSeparators = []string{",", ";", " and ", " then ", " plus ", " also "}

// splitIntents breaks an instruction into independent edit-intent segments.
func splitIntents(text string) []string {
	segments := []string{text}
	for _, sep := range intentSeparators {
		var next []string
		for _, segment := range segments {
			next = append(next, strings.Split(segment, sep)...)
		}
		segments = next
	}

	out := segments[:0]
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			out = append(out, segment)
		}
	}
	return out
}

func normalize(instruction string) string {
	return strings.ToLower(strings.TrimSpace(instruction))
}

// matchAny returns the first term occurring in text on word boundaries, so
// "tone" does not fire inside "stone".
func matchAny(text string, terms []string) string {
	for _, term := range terms {
		if term != "" && containsPhrase(text, term) {
			return term
		}
	}
	return ""
}

func containsPhrase(text, term string) bool {
	for offset := 0; offset+len(term) <= len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		i += offset
		end := i + len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		offset = i + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsWord matches whole words only, so "change" does not fire on
// "exchange".
func containsWord(text string, words []string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '.' || r == '!' || r == '?' || r == ':'
	}) {
		for _, word := range words {
			if field == word {
				return true
			}
		}
	}
	return false
}
