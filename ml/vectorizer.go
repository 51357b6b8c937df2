package ml

import (
	"errors"
	"math"
	"sort"
)

type VectorizerConfig struct {
	MaxFeatures int `json:"max_features"`
	NGramMax    int `json:"ngram_max"`
	MinDF       int `json:"min_df"`
}

func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{MaxFeatures: 5000, NGramMax: 2, MinDF: 1}
}

// TfidfVectorizer maps text to L2-normalized TF-IDF vectors using smoothed
// idf: ln((1+n)/(1+df)) + 1.
type TfidfVectorizer struct {
	Config     VectorizerConfig `json:"config"`
	Tokenizer  Tokenizer        `json:"tokenizer"`
	Vocabulary map[string]int   `json:"vocabulary"`
	IDF        []float64        `json:"idf"`
}

func NewTfidfVectorizer(cfg VectorizerConfig) *TfidfVectorizer {
	if cfg.NGramMax < 1 {
		cfg.NGramMax = 1
	}
	if cfg.MinDF < 1 {
		cfg.MinDF = 1
	}
	return &TfidfVectorizer{Config: cfg, Tokenizer: Tokenizer{NGramMax: cfg.NGramMax}}
}

func (v *TfidfVectorizer) Dim() int {
	return len(v.IDF)
}

func (v *TfidfVectorizer) Fitted() bool {
	return len(v.Vocabulary) > 0 && len(v.IDF) == len(v.Vocabulary)
}

// Fit learns the vocabulary and idf weights. When MaxFeatures is set only
// the most frequent terms are kept, ties broken alphabetically.
func (v *TfidfVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("no documents to fit")
	}

	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, tok := range v.Tokenizer.Tokens(doc) {
			tf[tok]++
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count >= v.Config.MinDF {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return errors.New("empty vocabulary; documents contain no usable tokens")
	}

	if v.Config.MaxFeatures > 0 && len(terms) > v.Config.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.Config.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

func (v *TfidfVectorizer) Transform(doc string) SparseVector {
	counts := make(map[int]float64)
	for _, tok := range v.Tokenizer.Tokens(doc) {
		if idx, ok := v.Vocabulary[tok]; ok {
			counts[idx]++
		}
	}

	var norm float64
	for idx, c := range counts {
		w := c * v.IDF[idx]
		counts[idx] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for idx := range counts {
			counts[idx] /= norm
		}
	}
	return sparseFromMap(counts)
}

func (v *TfidfVectorizer) TransformAll(docs []string) []SparseVector {
	out := make([]SparseVector, len(docs))
	for i, doc := range docs {
		out[i] = v.Transform(doc)
	}
	return out
}

func (v *TfidfVectorizer) FitTransform(docs []string) ([]SparseVector, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.TransformAll(docs), nil
}
