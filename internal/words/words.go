// Package words generates nonsense prose from embedded dictionaries, used to
// answer conversation requests on the command topic. The sentence shape is
// fixed: pronoun adverb verb preposition "the" adjective noun.
package words

import (
	"embed"
	"fmt"
	"math/rand"
	"strings"
)

//go:embed wordlists/*.txt
var wordlists embed.FS

var dictionaries = mustLoad()

type dictionarySet struct {
	pronouns     []string
	adverbs      []string
	verbs        []string
	prepositions []string
	adjectives   []string
	nouns        []string
}

func mustLoad() dictionarySet {
	return dictionarySet{
		pronouns:     mustWords("pronoun"),
		adverbs:      mustWords("adverb"),
		verbs:        mustWords("verb"),
		prepositions: mustWords("preposition"),
		adjectives:   mustWords("adjective"),
		nouns:        mustWords("noun"),
	}
}

func mustWords(name string) []string {
	raw, err := wordlists.ReadFile(fmt.Sprintf("wordlists/%s.txt", name))
	if err != nil {
		panic(fmt.Sprintf("words: embedded dictionary %s: %v", name, err))
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		if word := strings.TrimSpace(line); word != "" {
			out = append(out, word)
		}
	}
	if len(out) == 0 {
		panic(fmt.Sprintf("words: embedded dictionary %s is empty", name))
	}
	return out
}

func pick(r *rand.Rand, dict []string) string {
	return dict[r.Intn(len(dict))]
}

// Sentence returns one random sentence drawn from the embedded dictionaries.
// The rand source is supplied by the caller so output can be seeded.
func Sentence(r *rand.Rand) string {
	return fmt.Sprintf("%s %s %s %s the %s %s.",
		pick(r, dictionaries.pronouns),
		pick(r, dictionaries.adverbs),
		pick(r, dictionaries.verbs),
		pick(r, dictionaries.prepositions),
		pick(r, dictionaries.adjectives),
		pick(r, dictionaries.nouns),
	)
}
