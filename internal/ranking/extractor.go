package ranking

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
)

// MaxRankedEntries is the size of the extracted top list.
const MaxRankedEntries = 3

// Strategy names reported by ExtractWithStrategy.
const (
	StrategyNumberedList = "numbered_list"
	StrategyBulletedList = "bulleted_list"
	StrategyParagraphs   = "paragraphs"
	StrategyUnstructured = "unstructured"
)

var (
	numberedLinePattern   = regexp.MustCompile(`^[ \t]*(\d+)[.)][ \t]*(\S.*)$`)
	bulletedLinePattern   = regexp.MustCompile(`^[ \t]*[•\-*][ \t]+(\S.*)$`)
	paragraphBreakPattern = regexp.MustCompile(`\n[ \t]*\n`)
)

// strategy turns a reply into a ranking, or an empty ranking when its
// structural cue is absent or nothing in it names a known entity.
type strategy struct {
	name string
	try  func(lines []string, text string, entities []models.NamedEntity) models.Ranking
}

// strategies run in priority order; the first non-empty ranking wins.
var strategies = []strategy{
	{name: StrategyNumberedList, try: tryNumberedList},
	{name: StrategyBulletedList, try: tryBulletedList},
	{name: StrategyParagraphs, try: tryParagraphs},
}

// Extract produces the ranked top entries of a reply. It is deterministic and
// never calls out to a model.
func Extract(replyText string, entities []models.NamedEntity) (models.Ranking, models.ExtractionFlags) {
	r, flags, _ := ExtractWithStrategy(replyText, entities)
	return r, flags
}

// ExtractWithStrategy is Extract plus the name of the strategy that produced
// the result.
func ExtractWithStrategy(replyText string, entities []models.NamedEntity) (models.Ranking, models.ExtractionFlags, string) {
	text := strings.ReplaceAll(replyText, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	for _, s := range strategies {
		if r := s.try(lines, text, entities); len(r) > 0 {
			return r, models.ExtractionFlags{}, s.name
		}
	}

	return models.Ranking{}, models.ExtractionFlags{AmbiguousRanking: true, NoRanking: true}, StrategyUnstructured
}

// tryNumberedList keeps the marker number as the position, so positions can
// be sparse. Repeated entities are passed through, not de-duplicated.
func tryNumberedList(lines []string, _ string, entities []models.NamedEntity) models.Ranking {
	var ranking models.Ranking
	seen := 0
	for _, line := range lines {
		if seen == MaxRankedEntries {
			break
		}
		m := numberedLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		position, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen++

		if entity, ok := FindMention(m[2], entities); ok {
			ranking = append(ranking, entryFor(position, entity))
		}
	}
	return ranking
}

func tryBulletedList(lines []string, _ string, entities []models.NamedEntity) models.Ranking {
	var fragments []string
	for _, line := range lines {
		if len(fragments) == MaxRankedEntries {
			break
		}
		if m := bulletedLinePattern.FindStringSubmatch(line); m != nil {
			fragments = append(fragments, m[1])
		}
	}
	return rankSequential(fragments, entities)
}

// tryParagraphs needs at least one blank-line boundary; a single block of
// prose is not structure.
func tryParagraphs(_ []string, text string, entities []models.NamedEntity) models.Ranking {
	var paragraphs []string
	for _, p := range paragraphBreakPattern.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) < 2 {
		return nil
	}
	if len(paragraphs) > MaxRankedEntries {
		paragraphs = paragraphs[:MaxRankedEntries]
	}
	return rankSequential(paragraphs, entities)
}

// rankSequential numbers matching fragments 1, 2, 3 in order, skipping
// fragments without a match and entities already placed.
func rankSequential(fragments []string, entities []models.NamedEntity) models.Ranking {
	var ranking models.Ranking
	placed := make(map[string]bool)
	for _, fragment := range fragments {
		entity, ok := FindMention(fragment, entities)
		if !ok || placed[entity.Name] {
			continue
		}
		placed[entity.Name] = true
		ranking = append(ranking, entryFor(len(ranking)+1, entity))
	}
	return ranking
}

func entryFor(position int, entity models.NamedEntity) models.RankEntry {
	kind := entity.Kind
	if kind != models.EntityKindBrand {
		kind = models.EntityKindCompetitor
	}
	return models.RankEntry{Position: position, EntityName: entity.Name, EntityKind: kind}
}
