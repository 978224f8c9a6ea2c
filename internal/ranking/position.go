package ranking

import (
	"strings"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
)

// ResolvePosition returns the position of the first entry naming the brand.
//
// The comparison is a plain case fold, not Normalize: stored rankings were
// resolved this way and must keep resolving to the same positions. An entry
// that matched the brand during extraction through diacritic or punctuation
// folding can therefore fail to resolve here.
func ResolvePosition(r models.Ranking, brandName string, brandAliases []string) (int, bool) {
	for _, entry := range r {
		if strings.EqualFold(entry.EntityName, brandName) {
			return entry.Position, true
		}
		for _, alias := range brandAliases {
			if strings.EqualFold(entry.EntityName, alias) {
				return entry.Position, true
			}
		}
	}
	return 0, false
}

// Diagnose raises the outcome-level flags that depend on the resolved brand
// position and the ranking content. Extraction flags already set are kept.
func Diagnose(r models.Ranking, flags models.ExtractionFlags, brandFound bool) models.ExtractionFlags {
	if !brandFound {
		flags.BrandNotDetected = true
	}
	for _, entry := range r {
		if entry.EntityKind == models.EntityKindCompetitor {
			flags.CompetitorDetected = true
			break
		}
	}
	return flags
}
