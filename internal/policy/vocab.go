package policy

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// Vocabulary holds the tiered term lists the engine matches against.
// Forbidden and Structural terms always deny; Cosmetic terms whitelist edit
// intents on identity-preserved images; EditVerbs mark a segment as an edit
// intent in the first place.
type Vocabulary struct {
	Forbidden  []string `json:"forbidden"`
	Structural []string `json:"structural"`
	Cosmetic   []string `json:"cosmetic"`
	EditVerbs  []string `json:"edit_verbs"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Forbidden: []string{
			"replace face", "face swap", "swap face", "swap the face",
			"deepfake", "impersonate", "impersonation",
			"someone else's face", "another person's face", "celebrity face",
			"different person", "change identity", "steal identity",
		},
		Structural: []string{
			"face shape", "reshape face", "reshape my face", "facial structure",
			"bone structure", "jawline", "jaw line", "cheekbone", "cheekbones",
			"chin shape", "nose shape", "nose job", "resize nose",
			"eye shape", "enlarge eyes", "widen eyes", "face geometry",
		},
		Cosmetic: []string{
			"hair", "hairstyle", "haircut", "hair color", "hair colour",
			"makeup", "lipstick", "eyeshadow", "eyeliner", "blush",
			"lighting", "light", "shadow", "exposure",
			"background", "backdrop", "scene",
			"clothing", "clothes", "outfit", "dress", "shirt", "jacket", "suit",
			"color grade", "colour grade", "color grading", "filter",
			"brightness", "contrast", "saturation", "tone", "warmth",
		},
		EditVerbs: []string{
			"change", "make", "turn", "replace", "swap", "remove", "erase",
			"add", "put", "give", "transform", "modify", "adjust", "alter",
			"reshape", "redraw", "morph", "edit",
		},
	}
}

// LoadVocabularyFile reads a JSON vocabulary. Empty lists fall back to the
// defaults, so a file can override a single tier.
func LoadVocabularyFile(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, err
	}

	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, err
	}
	return v.withDefaults(), nil
}

func (v Vocabulary) withDefaults() Vocabulary {
	defaults := DefaultVocabulary()
	if len(v.Forbidden) == 0 {
		v.Forbidden = defaults.Forbidden
	}
	if len(v.Structural) == 0 {
		v.Structural = defaults.Structural
	}
	if len(v.Cosmetic) == 0 {
		v.Cosmetic = defaults.Cosmetic
	}
	if len(v.EditVerbs) == 0 {
		v.EditVerbs = defaults.EditVerbs
	}
	return v
}

func (v Vocabulary) validate() error {
	if len(v.Forbidden) == 0 || len(v.Structural) == 0 || len(v.Cosmetic) == 0 {
		return errors.New("vocabulary tiers must not be empty")
	}
	for _, list := range [][]string{v.Forbidden, v.Structural, v.Cosmetic, v.EditVerbs} {
		for _, term := range list {
			if strings.TrimSpace(term) == "" {
				return errors.New("vocabulary contains an empty term")
			}
		}
	}
	return nil
}
