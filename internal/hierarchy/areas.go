// Package hierarchy derives the two-level area → category taxonomy for
// methods. Every category is bound to exactly one area the first time
// it is seen; later references reuse that binding unchanged.
package hierarchy

// Area is one of the fixed method areas
type Area struct {
	Slug string `json:"area_id" yaml:"area_id"`
	Name string `json:"area" yaml:"area"`
}

// The fixed area enumeration. General is the fallback for categories
// the classifier does not recognise.
var (
	General                   = Area{Slug: "general", Name: "General"}
	ComputerVision            = Area{Slug: "computer-vision", Name: "Computer Vision"}
	NaturalLanguageProcessing = Area{Slug: "natural-language-processing", Name: "Natural Language Processing"}
	ReinforcementLearning     = Area{Slug: "reinforcement-learning", Name: "Reinforcement Learning"}
	Audio                     = Area{Slug: "audio", Name: "Audio"}
	Sequential                = Area{Slug: "sequential", Name: "Sequential"}
	Graphs                    = Area{Slug: "graphs", Name: "Graphs"}
)

// Areas lists the enumeration in display order
var Areas = []Area{
	General,
	ComputerVision,
	NaturalLanguageProcessing,
	ReinforcementLearning,
	Audio,
	Sequential,
	Graphs,
}

// areaAliases maps folded source spellings to areas, on top of each
// area's own name and slug.
var areaAliases = map[string]Area{
	"vision":                ComputerVision,
	"cv":                    ComputerVision,
	"nlp":                   NaturalLanguageProcessing,
	"language":              NaturalLanguageProcessing,
	"natural language":      NaturalLanguageProcessing,
	"rl":                    ReinforcementLearning,
	"reinforcement":         ReinforcementLearning,
	"speech":                Audio,
	"audio and speech":      Audio,
	"sequence":              Sequential,
	"time series":           Sequential,
	"graph":                 Graphs,
	"graph neural networks": Graphs,
	"miscellaneous":         General,
	"other":                 General,
}

// AreaBySlug returns the area with the given slug
func AreaBySlug(slug string) (Area, bool) {
	for _, a := range Areas {
		if a.Slug == slug {
			return a, true
		}
	}
	return Area{}, false
}
