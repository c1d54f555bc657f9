package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pharmalytics/backend/internal/domain/analytics"
)

// Cache namespaces, one per endpoint
const (
	NamespaceCompetitive  = "competitive:analysis:"
	NamespaceProducts     = "products:list:"
	NamespaceLaboratories = "laboratories:market-share:"
	NamespacePharmacies   = "pharmacies:analytics:"
	NamespaceEvolution    = "sales:evolution:"
	NamespaceRuptures     = "stock:ruptures:"
)

// cacheKeyInput is the canonical form hashed into a cache key.
// Field order is fixed; every slice is sorted.
type cacheKeyInput struct {
	Start           string   `json:"start"`
	End             string   `json:"end"`
	ComparisonStart string   `json:"comparisonStart,omitempty"`
	ComparisonEnd   string   `json:"comparisonEnd,omitempty"`
	ProductCodes    []string `json:"productCodes"`
	PharmacyIDs     []string `json:"pharmacyIds"`
	Role            string   `json:"role"`

	HasProductFilter    bool `json:"hasProductFilter"`
	HasPharmacyFilter   bool `json:"hasPharmacyFilter"`
	HasLaboratoryFilter bool `json:"hasLaboratoryFilter"`
	HasCategoryFilter   bool `json:"hasCategoryFilter"`

	Laboratories         []string              `json:"laboratories"`
	Categories           []string              `json:"categories"`
	ExcludedProductCodes []string              `json:"excludedProductCodes"`
	ExcludedLaboratories []string              `json:"excludedLaboratories"`
	ExcludedCategories   []string              `json:"excludedCategories"`
	TVARates             []float64             `json:"tvaRates"`
	GenericStatus        string                `json:"genericStatus"`
	ReimbursementStatus  string                `json:"reimbursementStatus"`
	Ranges               []cacheKeyRange       `json:"ranges"`
	Operators            []analytics.Operator  `json:"operators"`
	Granularity          analytics.Granularity `json:"granularity"`
}

type cacheKeyRange struct {
	Group string  `json:"group"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// KeyOptions selects the request parts an endpoint reads beyond the period and filters
type KeyOptions struct {
	// ProductFilter includes the product codes
	ProductFilter bool
	// Comparison includes the comparison period
	Comparison bool
}

// DeriveKey returns namespace + sha256 hex of the canonical request.
// Requests differing only in array order map to the same key, and so do
// requests whose operators differ only in the slot joining the pharmacy group.
func DeriveKey(namespace string, filters analytics.EnforcedFilters, opts KeyOptions) (string, error) {
	fs := filters.Filters()
	_, operators := fs.RowChain()

	in := cacheKeyInput{
		Start:        fs.DateRange.StartString(),
		End:          fs.DateRange.EndString(),
		ProductCodes: []string{},
		PharmacyIDs:  []string{},
		Role:         string(filters.Role()),

		HasProductFilter:    opts.ProductFilter,
		HasPharmacyFilter:   len(fs.PharmacyIDs) > 0,
		HasLaboratoryFilter: len(fs.Laboratories) > 0,
		HasCategoryFilter:   len(fs.Categories) > 0,

		Laboratories:         sorted(fs.Laboratories),
		Categories:           sorted(fs.Categories),
		ExcludedProductCodes: sorted(fs.ExcludedProductCodes),
		ExcludedLaboratories: sorted(fs.ExcludedLaboratories),
		ExcludedCategories:   sorted(fs.ExcludedCategories),
		TVARates:             sorted(fs.TVARates),
		GenericStatus:        string(fs.GenericStatus),
		ReimbursementStatus:  string(fs.ReimbursementStatus),
		Ranges:               []cacheKeyRange{},
		Operators:            operators,
		Granularity:          fs.Granularity,
	}
	if opts.ProductFilter {
		in.ProductCodes = sorted(fs.ProductCodes)
	}
	if opts.Comparison {
		comparison := filters.ComparisonPeriod()
		in.ComparisonStart = comparison.StartString()
		in.ComparisonEnd = comparison.EndString()
	}
	for _, id := range filters.Scope() {
		in.PharmacyIDs = append(in.PharmacyIDs, id.String())
	}
	slices.Sort(in.PharmacyIDs)
	for _, g := range analytics.CanonicalGroups {
		if !g.IsRange() || !fs.IsActive(g) {
			continue
		}
		r := fs.Range(g)
		in.Ranges = append(in.Ranges, cacheKeyRange{Group: g.String(), Min: r.Min, Max: r.Max})
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return namespace + hex.EncodeToString(sum[:]), nil
}

func sorted[T string | float64](values []T) []T {
	out := slices.Clone(values)
	if out == nil {
		return []T{}
	}
	slices.Sort(out)
	return out
}
