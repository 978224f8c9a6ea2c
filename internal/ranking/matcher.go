package ranking

import (
	"strings"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
)

// FindMention returns the first entity, in the supplied order, whose
// normalized name or alias is a substring of the normalized fragment.
// Callers pass the measured brand first so it wins on overlapping names.
func FindMention(fragment string, entities []models.NamedEntity) (models.NamedEntity, bool) {
	normalized := Normalize(fragment)
	if normalized == "" {
		return models.NamedEntity{}, false
	}

	for _, entity := range entities {
		if containsNormalized(normalized, entity.Name) {
			return entity, true
		}
		for _, alias := range entity.Aliases {
			if containsNormalized(normalized, alias) {
				return entity, true
			}
		}
	}
	return models.NamedEntity{}, false
}

// containsNormalized never matches a name that normalizes to nothing, since
// the empty string is a substring of every fragment.
func containsNormalized(normalizedFragment, name string) bool {
	needle := Normalize(name)
	if needle == "" {
		return false
	}
	return strings.Contains(normalizedFragment, needle)
}
