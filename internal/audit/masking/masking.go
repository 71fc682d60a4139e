package masking

import "strings"

const maskToken = "****"

// Keys whose values are always fully redacted, whatever their shape.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"secret":        {},
	"signature":     {},
	"password":      {},
	"authorization": {},
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return maskToken
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskDetails returns a copy of the input safe to persist in an audit record:
// sensitive keys are redacted and email-shaped strings are reduced.
func MaskDetails(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
		if s, ok := value.(string); ok {
			return MaskSecret(s)
		}
		return maskToken
	}

	switch cast := value.(type) {
	case string:
		if strings.Count(cast, "@") == 1 && strings.Contains(cast, ".") {
			return MaskEmail(cast)
		}
		return cast
	case map[string]any:
		return MaskDetails(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue("", item))
		}
		return out
	default:
		return value
	}
}
