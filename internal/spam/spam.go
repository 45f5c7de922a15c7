// Package spam flags method and dataset rows that are advertising rather
// than research entities. The dumps carry a small number of such rows,
// mostly airline support-line adverts with phone numbers.
package spam

import (
	"regexp"
	"strings"
)

// Match describes why a row was flagged
type Match struct {
	Family  string // rule family, e.g. "phone_number"
	Pattern string // the pattern or combination that matched
}

type family struct {
	name     string
	patterns []*regexp.Regexp
}

func compile(name string, exprs ...string) family {
	f := family{name: name}
	for _, e := range exprs {
		f.patterns = append(f.patterns, regexp.MustCompile(`(?i)`+e))
	}
	return f
}

// Families are checked in order; the first match wins.
var methodFamilies = []family{
	compile("customer_service",
		`customer\s+service`,
		`support\s+line`,
		`\bhelpline\b`,
		`toll\s+free`,
		`call\s+cent(er|re)`,
		`24/7\s+customer`,
		`speak\s+to\s+a\s+(real\s+)?(person|human|agent)`,
		`get\s+(a\s+)?human\s+immediately`,
		`bypass\s+(the\s+)?automated\s+system`,
		`atenci[oó]n\s+al\s+cliente`,
		`(asistencia|soporte)\s+en\s+espa[nñ]ol`,
	),
	compile("phone_number",
		`\+\s*1[\s-]*\(?\d{3}\)?[\s-]*\(?\d{3}\)?[\s-]*\(?\d{4}\)?`,
		`\(\d{3}\)\s*\d{3}-\d{4}`,
		`\b\d{3}-\d{3}-\d{4}\b`,
		`\d{3}\s*[→➤~]\s*\d{3}\s*[→➤~]\s*\d{4}`,
		`\b1\s*-\s*8\d\d\s*-\s*\(\d{3}\)`,
		`☎`,
	),
	compile("travel_booking",
		`american\s+(airlines?|air|representative|agente|operador)`,
		`(lufthansa|british|delta|united|spirit|frontier)\s+airlines?`,
		`\bexpedia\b`,
		`flight\s+booking`,
		`hotel\s+reservation`,
		`travel\s+emergency`,
		`cancel(l)?ed\s+flight`,
		`last\s+minute\s+booking`,
		`refund\s+delays`,
		`itinerary\s+number`,
		`booking\s+issue`,
		`cambio\s+de\s+vuelo`,
	),
	compile("question",
		`how\s+do\s+i\s+(get|talk|speak|contact|reach)`,
		`can\s+i\s+cancel`,
		`what\s+are\s+the\s+policies`,
		`c[oó]mo\s+(hablar|llamar|contactar|hablo|puedo\s+hablar)`,
		`qu[eé]\s+es\s+la\s+pol[ií]tica`,
		`cu[aá]l\s+es\s+el\s+n[uú]mero`,
	),
	compile("commercial",
		`available\s+24/7`,
		`help\s+resolve\s+your\s+issue`,
		`related\s+search\s+phrases`,
		`best\s+for\s+help\s+with`,
		`(brinda|brindar)\s+soporte`,
		`te\s+conecta\s+con`,
		`ofrece\s+asistencia`,
	),
	compile("spanish",
		`¿c[oó]mo\s+`,
		`para\s+(hablar|llamar)\s+(con|a)`,
		`aseg[uú]rate\s+de\s+tener`,
		`el\s+centro\s+de\s+llamadas`,
		`horarios\s+amplios`,
		`cualquier\s+consulta`,
		`relacionada\s+a\s+tu\s+viaje`,
		`disponibles\s+para\s+resolver`,
	),
}

var (
	questionWords = regexp.MustCompile(`(?i)\b(how|what|when|why|c[oó]mo|qu[eé]|cu[aá]l)\b`)
	travelWords   = regexp.MustCompile(`(?i)\b(airlines?|flights?|vuelos?|reservas?|booking|reservations?|cancel|cancelar)\b`)
	phoneLike     = regexp.MustCompile(`\+?\d{1,3}\s*[-~⇌→➤(]\s*\(?\d{2,4}\)?\s*[-~⇌→➤.(]\s*\(?\d{2,4}\)?\s*[-~⇌→➤.(]\s*\(?\d{2,4}\)?`)
)

// Method reports whether a method row looks like spam. Rows without a
// name are never flagged.
func Method(name, fullName, description string) (Match, bool) {
	if strings.TrimSpace(name) == "" {
		return Match{}, false
	}
	text := name + " " + fullName + " " + description

	for _, f := range methodFamilies {
		for _, re := range f.patterns {
			if re.MatchString(text) {
				return Match{Family: f.name, Pattern: re.String()}, true
			}
		}
	}

	// combinations that are only suspicious together
	phone := phoneLike.MatchString(text)
	travel := travelWords.MatchString(text)
	switch {
	case phone && questionWords.MatchString(text):
		return Match{Family: "question_phone", Pattern: "question_with_phone"}, true
	case phone && travel:
		return Match{Family: "travel_phone", Pattern: "travel_with_phone"}, true
	case travel && questionWords.MatchString(name+" "+fullName):
		return Match{Family: "question_travel", Pattern: "question_with_travel"}, true
	}
	return Match{}, false
}

// slug fragments seen in the names of advert datasets
var datasetNameFragments = []string{
	"can-you-change", "how-do-i", "what-if-i", "how-much-does",
	"how-to-cancel", "can-i-cancel", "how-can-i-change", "whats-the",
	"support-line-for", "customer-service-hotline",
	"lufthansa-airlines", "british-airlines", "american-airlines", "delta-airlines",
}

// InvalidHomepage reports whether a dataset homepage is empty or points
// back into the dump site itself.
func InvalidHomepage(homepage string) bool {
	h := strings.TrimSpace(homepage)
	return h == "" || strings.HasPrefix(h, "/") || strings.HasPrefix(h, "http://paperswithcode.com")
}

// Dataset reports whether a dataset row looks like spam: an invalid
// homepage together with either an advert-style name or a description
// that never mentions a dataset.
func Dataset(name, homepage, description string) (Match, bool) {
	if !InvalidHomepage(homepage) {
		return Match{}, false
	}
	lower := strings.ToLower(name)
	for _, frag := range datasetNameFragments {
		if strings.Contains(lower, frag) {
			return Match{Family: "dataset_name", Pattern: frag}, true
		}
	}
	if strings.TrimSpace(homepage) == "" && !strings.Contains(strings.ToLower(description), "dataset") {
		return Match{Family: "dataset_no_mention", Pattern: "empty_homepage_without_dataset"}, true
	}
	return Match{}, false
}
