package hierarchy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// keywordRule maps any of its keywords to an area. Rules are tried in
// order; the first match wins.
type keywordRule struct {
	area     Area
	keywords []string
}

// Curated category names, folded. Exact matches take precedence over
// keyword rules.
var exactCategories = map[string]Area{
	"activation functions":     General,
	"normalization":            General,
	"regularization":           General,
	"stochastic optimization":  General,
	"attention mechanisms":     General,
	"attention modules":        General,
	"skip connections":         General,
	"skip connection blocks":   General,
	"feedforward networks":     General,
	"loss functions":           General,
	"learning rate schedules":  General,
	"output functions":         General,
	"initialization":           General,
	"parameter norm penalties": General,
	"generative models":        General,
	"distributed methods":      General,
	"fine tuning":              General,
	"hyperparameter search":    General,
	"clustering":               General,
	"dimensionality reduction": General,
	"knowledge distillation":   General,
	"meta learning algorithms": General,
	"self supervised learning": General,

	"convolutional neural networks":   ComputerVision,
	"convolutions":                    ComputerVision,
	"pooling operations":              ComputerVision,
	"image models":                    ComputerVision,
	"image data augmentation":         ComputerVision,
	"image feature extractors":        ComputerVision,
	"generative adversarial networks": ComputerVision,
	"object detection models":         ComputerVision,
	"semantic segmentation models":    ComputerVision,
	"instance segmentation models":    ComputerVision,
	"vision transformers":             ComputerVision,
	"backbone architectures":          ComputerVision,
	"feature pyramid blocks":          ComputerVision,
	"region proposal":                 ComputerVision,
	"roi feature extractors":          ComputerVision,
	"pose estimation models":          ComputerVision,

	"transformers":                NaturalLanguageProcessing,
	"language models":             NaturalLanguageProcessing,
	"autoregressive transformers": NaturalLanguageProcessing,
	"word embeddings":             NaturalLanguageProcessing,
	"sentence embeddings":         NaturalLanguageProcessing,
	"tokenizers":                  NaturalLanguageProcessing,
	"subword segmentation":        NaturalLanguageProcessing,
	"machine translation models":  NaturalLanguageProcessing,
	"question answering models":   NaturalLanguageProcessing,

	"policy gradient methods":   ReinforcementLearning,
	"q learning networks":       ReinforcementLearning,
	"value function estimation": ReinforcementLearning,
	"off policy td control":     ReinforcementLearning,
	"on policy td control":      ReinforcementLearning,
	"exploration strategies":    ReinforcementLearning,
	"replay memory":             ReinforcementLearning,

	"speech synthesis models": Audio,
	"text to speech models":   Audio,
	"audio model blocks":      Audio,
	"audio artifact removal":  Audio,
	"phase reconstruction":    Audio,

	"recurrent neural networks":   Sequential,
	"time series models":          Sequential,
	"sequence to sequence models": Sequential,
	"temporal convolutions":       Sequential,

	"graph embeddings":              Graphs,
	"graph models":                  Graphs,
	"graph representation learning": Graphs,
}

// Keyword rules. Graphs and Audio come first because their vocabulary
// overlaps the broader areas ("graph convolution", "speech transformer").
var keywordRules = []keywordRule{
	{Graphs, []string{"graph", "node embedding", "message passing", "knowledge graph"}},
	{Audio, []string{"speech", "audio", "vocoder", "voice", "speaker", "sound", "music"}},
	{ReinforcementLearning, []string{"reinforcement", "policy", "q learning", "reward", "bandit", "actor critic", "td control", "agent"}},
	{ComputerVision, []string{"image", "vision", "visual", "object detection", "segmentation", "convolution", "pose", "face", "video", "point cloud", "3d", "gan", "super resolution", "style transfer", "detector", "pixel"}},
	{Sequential, []string{"recurrent", "rnn", "lstm", "time series", "sequence", "temporal"}},
	{NaturalLanguageProcessing, []string{"language", "text", "word", "sentence", "token", "translation", "transformer", "bert", "dialogue", "question answering"}},
}

// Classifier assigns an area to a category name. It is not safe for
// concurrent use.
type Classifier struct {
	caser cases.Caser
	exact map[string]Area
	rules []keywordRule
}

// NewClassifier creates a classifier with the curated tables
func NewClassifier() *Classifier {
	return &Classifier{
		caser: cases.Fold(),
		exact: exactCategories,
		rules: keywordRules,
	}
}

// Fold normalises a label for matching: Unicode NFKC, case folding,
// and hyphens, underscores and slashes read as spaces.
func (c *Classifier) Fold(label string) string {
	s := c.caser.String(norm.NFKC.String(label))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '/', '(', ')', ',', '.':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Classify returns the area for a category name; unknown names map to
// General.
func (c *Classifier) Classify(category string) Area {
	folded := c.Fold(category)
	if area, ok := c.exact[folded]; ok {
		return area
	}

	words := strings.Fields(folded)
	padded := " " + folded + " "
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if matchKeyword(kw, words, padded) {
				return rule.area
			}
		}
	}
	return General
}

// CanonicalArea maps a source-supplied area label onto the enumeration.
func (c *Classifier) CanonicalArea(label string) (Area, bool) {
	folded := c.Fold(label)
	if folded == "" {
		return Area{}, false
	}
	for _, a := range Areas {
		if folded == c.Fold(a.Name) || folded == c.Fold(a.Slug) {
			return a, true
		}
	}
	area, ok := areaAliases[folded]
	return area, ok
}

// matchKeyword matches whole words, allowing a plural suffix.
func matchKeyword(kw string, words []string, padded string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(padded, " "+kw+" ") ||
			strings.Contains(padded, " "+kw+"s ")
	}
	for _, w := range words {
		if w == kw || w == kw+"s" || w == kw+"es" {
			return true
		}
	}
	return false
}
