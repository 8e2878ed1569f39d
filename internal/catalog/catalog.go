package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"coptic-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed coptic.yaml
var copticYAML []byte

// Catalog is immutable reference content: alphabet letters and vocabulary words.
type Catalog struct {
	letters  []domain.Letter
	words    []domain.Word
	bySymbol map[string]int
	byScript map[string]int
}

type document struct {
	Letters []domain.Letter `yaml:"letters"`
	Words   []domain.Word   `yaml:"words"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded Coptic catalog. It panics if the embedded
// document is malformed, since that is a build defect.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(copticYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded coptic.yaml: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(doc.Letters, doc.Words)
}

// New builds a catalog, rejecting blank or duplicate identities.
func New(letters []domain.Letter, words []domain.Word) (*Catalog, error) {
	c := &Catalog{
		letters:  append([]domain.Letter(nil), letters...),
		words:    append([]domain.Word(nil), words...),
		bySymbol: make(map[string]int, len(letters)),
		byScript: make(map[string]int, len(words)),
	}
	for i, l := range c.letters {
		if l.Symbol == "" || l.Sound == "" {
			return nil, fmt.Errorf("letter %d: symbol and sound are required", i)
		}
		if _, dup := c.bySymbol[l.Symbol]; dup {
			return nil, fmt.Errorf("duplicate letter %q", l.Symbol)
		}
		c.bySymbol[l.Symbol] = i
	}
	for i, w := range c.words {
		if w.Script == "" || w.Pronunciation == "" {
			return nil, fmt.Errorf("word %d: script and pronunciation are required", i)
		}
		if _, dup := c.byScript[w.Script]; dup {
			return nil, fmt.Errorf("duplicate word %q", w.Script)
		}
		switch w.Difficulty {
		case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
		default:
			return nil, fmt.Errorf("word %q: unknown difficulty %q", w.Script, w.Difficulty)
		}
		c.byScript[w.Script] = i
	}
	return c, nil
}

// Letters returns the alphabet in catalog order. Callers must not modify it.
func (c *Catalog) Letters() []domain.Letter { return c.letters }

// Words returns the vocabulary in catalog order. Callers must not modify it.
func (c *Catalog) Words() []domain.Word { return c.words }

// Letter looks up a letter by symbol.
func (c *Catalog) Letter(symbol string) (domain.Letter, bool) {
	i, ok := c.bySymbol[symbol]
	if !ok {
		return domain.Letter{}, false
	}
	return c.letters[i], true
}

// Word looks up a word by its script form.
func (c *Catalog) Word(script string) (domain.Word, bool) {
	i, ok := c.byScript[script]
	if !ok {
		return domain.Word{}, false
	}
	return c.words[i], true
}

// WordsByDifficulty filters the vocabulary, keeping catalog order.
func (c *Catalog) WordsByDifficulty(d domain.Difficulty) []domain.Word {
	var out []domain.Word
	for _, w := range c.words {
		if w.Difficulty == d {
			out = append(out, w)
		}
	}
	return out
}
