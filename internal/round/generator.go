package round

import (
	"math/rand/v2"
	"sync"
	"time"

	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/domain"
)

// OptionCount is the number of choices shown per round.
const OptionCount = 4

// Source is the randomness a generator draws from. *rand.Rand satisfies it;
// tests pass a seeded one for deterministic rounds.
type Source interface {
	IntN(n int) int
}

// NewSource returns a clock-seeded PCG source.
func NewSource() *rand.Rand {
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>1|1))
}

// Build draws a target from items and three distractors whose distinguishing
// value differs from the target's, then shuffles the four values. Items sharing
// a value are collapsed so no option appears twice.
func Build[T any](rnd Source, items []T, value func(T) string) (T, []string, error) {
	var zero T
	if len(items) == 0 {
		return zero, nil, domain.ErrInsufficientCatalog
	}
	target := items[rnd.IntN(len(items))]
	answer := value(target)

	seen := map[string]struct{}{answer: {}}
	wrong := make([]string, 0, len(items))
	for _, it := range items {
		v := value(it)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		wrong = append(wrong, v)
	}
	if len(wrong) < OptionCount-1 {
		return zero, nil, domain.ErrInsufficientCatalog
	}

	// partial Fisher-Yates: the first three slots end up a uniform sample
	for i := 0; i < OptionCount-1; i++ {
		j := i + rnd.IntN(len(wrong)-i)
		wrong[i], wrong[j] = wrong[j], wrong[i]
	}

	options := make([]string, 0, OptionCount)
	options = append(options, answer)
	options = append(options, wrong[:OptionCount-1]...)
	shuffle(rnd, options)
	return target, options, nil
}

func shuffle(rnd Source, s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Generator produces rounds for each activity from a catalog. It is safe for
// concurrent use; draws from the shared source are serialized.
type Generator struct {
	catalog *catalog.Catalog

	mu  sync.Mutex
	rnd Source
}

// NewGenerator binds a catalog and a random source. A nil source means a
// clock-seeded one.
func NewGenerator(c *catalog.Catalog, rnd Source) *Generator {
	if rnd == nil {
		rnd = NewSource()
	}
	return &Generator{catalog: c, rnd: rnd}
}

// Generate builds one round for the activity. Calls are independent.
func (g *Generator) Generate(activity domain.ActivityKind) (*domain.Round, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch activity {
	case domain.ActivityLetterSounds:
		letter, options, err := Build(g.rnd, g.catalog.Letters(), func(l domain.Letter) string { return l.Sound })
		if err != nil {
			return nil, err
		}
		return &domain.Round{Activity: activity, Letter: &letter, Options: options, Answer: letter.Sound}, nil
	case domain.ActivityLetterRecognition:
		letter, options, err := Build(g.rnd, g.catalog.Letters(), func(l domain.Letter) string { return l.Symbol })
		if err != nil {
			return nil, err
		}
		return &domain.Round{Activity: activity, Letter: &letter, Options: options, Answer: letter.Symbol}, nil
	case domain.ActivityWordPronunciation:
		word, options, err := Build(g.rnd, g.catalog.Words(), func(w domain.Word) string { return w.Pronunciation })
		if err != nil {
			return nil, err
		}
		return &domain.Round{Activity: activity, Word: &word, Options: options, Answer: word.Pronunciation}, nil
	default:
		return nil, domain.ErrUnknownActivity
	}
}
