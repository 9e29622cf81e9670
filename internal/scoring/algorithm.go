package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// DefaultAlgorithm is used when a query does not name one.
const DefaultAlgorithm = "logic-v1"

// Feature names reported with each scored candidate.
const (
	FeatureName       = "name_similarity"
	FeaturePhonetic   = "name_phonetic"
	FeatureIdentifier = "identifier_match"
	FeatureDate       = "date_match"
	FeatureCountry    = "country_match"
	FeatureAddress    = "address_match"
)

// Algorithm scores a candidate against a query entity.
type Algorithm interface {
	// Name is the registry key, e.g. "logic-v1".
	Name() string

	// Description explains the algorithm to API users.
	Description() string

	// Weights returns the feature weights, for documentation.
	Weights() map[string]float64

	// Score returns the aggregate score in [0, 1] and the per-feature
	// scores it was computed from.
	Score(m *domain.Model, query, candidate *domain.Entity, opts Options) (float64, map[string]float64)
}

var registry = map[string]Algorithm{}

// Register adds an algorithm to the registry. Registering a name twice
// panics.
func Register(a Algorithm) {
	if _, exists := registry[a.Name()]; exists {
		panic(fmt.Sprintf("scoring: algorithm %q registered twice", a.Name()))
	}
	registry[a.Name()] = a
}

func init() {
	Register(&WeightedAlgorithm{
		name:        DefaultAlgorithm,
		description: "Weighted mean of name, identifier, date, country and address similarity. Features missing on either side are left out.",
		weights: map[string]float64{
			FeatureName:       3.0,
			FeatureIdentifier: 3.0,
			FeatureDate:       1.5,
			FeatureCountry:    0.5,
			FeatureAddress:    0.5,
		},
	})
	Register(&NameBasedAlgorithm{})
	Register(&OFACAlgorithm{})
}

// Get returns the named algorithm; an empty name selects the default.
func Get(name string) (Algorithm, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAlgorithm, name)
	}
	return a, nil
}

// All returns every registered algorithm sorted by name.
func All() []Algorithm {
	out := make([]Algorithm, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Describe converts an algorithm to its API description.
func Describe(a Algorithm) domain.AlgorithmInfo {
	return domain.AlgorithmInfo{
		Name:        a.Name(),
		Description: a.Description(),
		Features:    a.Weights(),
		Default:     a.Name() == DefaultAlgorithm,
	}
}

// WeightedAlgorithm combines typed comparators with fixed weights.
type WeightedAlgorithm struct {
	name        string
	description string
	weights     map[string]float64
}

// Name implements Algorithm.
func (a *WeightedAlgorithm) Name() string { return a.name }

// Description implements Algorithm.
func (a *WeightedAlgorithm) Description() string { return a.description }

// Weights implements Algorithm.
func (a *WeightedAlgorithm) Weights() map[string]float64 {
	out := make(map[string]float64, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

var featureTypes = []struct {
	feature string
	typ     domain.PropertyType
}{
	{FeatureName, domain.TypeName},
	{FeatureIdentifier, domain.TypeIdentifier},
	{FeatureDate, domain.TypeDate},
	{FeatureCountry, domain.TypeCountry},
	{FeatureAddress, domain.TypeAddress},
}

// Score implements Algorithm.
func (a *WeightedAlgorithm) Score(m *domain.Model, query, candidate *domain.Entity, opts Options) (float64, map[string]float64) {
	features := make(map[string]float64)
	var total, weight float64
	for _, ft := range featureTypes {
		w := a.weights[ft.feature]
		if w == 0 {
			continue
		}
		s, ok := Compare(ft.typ, query.TypeValues(m, ft.typ), candidate.TypeValues(m, ft.typ), opts)
		if !ok {
			continue
		}
		features[ft.feature] = s
		total += w * s
		weight += w
	}
	if weight == 0 {
		return 0, features
	}
	return clamp(total / weight), features
}

// NameBasedAlgorithm scores on names alone.
type NameBasedAlgorithm struct{}

// Name implements Algorithm.
func (*NameBasedAlgorithm) Name() string { return "name-based" }

// Description implements Algorithm.
func (*NameBasedAlgorithm) Description() string {
	return "Best of Jaro-Winkler name similarity and phonetic name part overlap. Ignores all other properties."
}

// Weights implements Algorithm.
func (*NameBasedAlgorithm) Weights() map[string]float64 {
	return map[string]float64{FeatureName: 1, FeaturePhonetic: 1}
}

// Score implements Algorithm.
func (*NameBasedAlgorithm) Score(m *domain.Model, query, candidate *domain.Entity, opts Options) (float64, map[string]float64) {
	qn, cn := query.Names(m), candidate.Names(m)
	if len(qn) == 0 || len(cn) == 0 {
		return 0, map[string]float64{}
	}
	features := map[string]float64{
		FeatureName:     CompareNames(qn, cn, opts),
		FeaturePhonetic: ComparePhonetic(qn, cn),
	}
	return math.Max(features[FeatureName], features[FeaturePhonetic]), features
}

// OFACAlgorithm approximates the US Treasury sanctions search tool:
// the best of Jaro-Winkler and phonetic name scores, rounded to steps
// of 0.05.
type OFACAlgorithm struct{}

// Name implements Algorithm.
func (*OFACAlgorithm) Name() string { return "ofac-249" }

// Description implements Algorithm.
func (*OFACAlgorithm) Description() string {
	return "Name-only scoring modelled on the OFAC sanctions list search: max of Jaro-Winkler and Soundex scores in 0.05 steps."
}

// Weights implements Algorithm.
func (*OFACAlgorithm) Weights() map[string]float64 {
	return map[string]float64{FeatureName: 1, FeaturePhonetic: 1}
}

// Score implements Algorithm.
func (*OFACAlgorithm) Score(m *domain.Model, query, candidate *domain.Entity, _ Options) (float64, map[string]float64) {
	qn, cn := query.Names(m), candidate.Names(m)
	if len(qn) == 0 || len(cn) == 0 {
		return 0, map[string]float64{}
	}
	features := map[string]float64{
		FeatureName:     CompareNames(qn, cn, Options{}),
		FeaturePhonetic: ComparePhonetic(qn, cn),
	}
	score := math.Max(features[FeatureName], features[FeaturePhonetic])
	return math.Round(score*20) / 20, features
}
