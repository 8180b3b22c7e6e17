package aiassist

import (
	"sort"
	"strings"
)

// conditionDrugKeywords maps complaint keywords to the drug-name
// keywords relevant to them. Matching is plain substring over the
// lowercased complaint and drug names.
var conditionDrugKeywords = map[string][]string{
	"fever":       {"paracetamol", "ibuprofen", "acetaminophen"},
	"headache":    {"paracetamol", "ibuprofen", "aspirin"},
	"pain":        {"ibuprofen", "diclofenac", "paracetamol", "naproxen"},
	"infection":   {"amoxicillin", "azithromycin", "ciprofloxacin", "metronidazole"},
	"cough":       {"dextromethorphan", "guaifenesin", "ambroxol"},
	"cold":        {"chlorpheniramine", "paracetamol", "pseudoephedrine"},
	"allergy":     {"cetirizine", "loratadine", "chlorpheniramine"},
	"itch":        {"cetirizine", "loratadine", "hydrocortisone"},
	"rash":        {"hydrocortisone", "cetirizine", "calamine"},
	"diarrhea":    {"oral rehydration", "loperamide", "zinc"},
	"diarrhoea":   {"oral rehydration", "loperamide", "zinc"},
	"vomit":       {"ondansetron", "promethazine", "oral rehydration"},
	"nausea":      {"ondansetron", "promethazine"},
	"malaria":     {"artemether", "lumefantrine", "quinine"},
	"asthma":      {"salbutamol", "budesonide", "montelukast"},
	"wheez":       {"salbutamol", "budesonide"},
	"hypertension": {"amlodipine", "lisinopril", "losartan"},
	"blood pressure": {"amlodipine", "lisinopril", "losartan"},
	"diabetes":    {"metformin", "glibenclamide", "insulin"},
	"ulcer":       {"omeprazole", "ranitidine", "antacid"},
	"heartburn":   {"omeprazole", "antacid"},
	"worm":        {"albendazole", "mebendazole"},
	"anemia":      {"ferrous", "folic acid"},
	"anaemia":     {"ferrous", "folic acid"},
}

// RankCatalog orders drug names by relevance to a free-text complaint
// and returns the top n. Scoring counts the drug keywords, across every
// condition mentioned in the complaint, that appear in the drug name.
// Ties and unscored drugs keep their catalog order.
func RankCatalog(complaint string, drugNames []string, n int) []string {
	lower := strings.ToLower(complaint)

	var wanted []string
	for condition, drugs := range conditionDrugKeywords {
		if strings.Contains(lower, condition) {
			wanted = append(wanted, drugs...)
		}
	}

	type scored struct {
		name  string
		score int
		order int
	}
	ranked := make([]scored, 0, len(drugNames))
	for i, name := range drugNames {
		nameLower := strings.ToLower(name)
		score := 0
		for _, kw := range wanted {
			if strings.Contains(nameLower, kw) {
				score++
			}
		}
		ranked = append(ranked, scored{name: name, score: score, order: i})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.name)
	}
	return out
}
