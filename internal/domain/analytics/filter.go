// Package analytics holds the pharmacy analytics domain: composable filter sets,
// security scoping, query mode selection and the metric calculator.
package analytics

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/shared"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses and validates an inclusive date range.
// start must not be after end and end must not be after today.
func ParseDateRange(start, end string, today time.Time) (DateRange, error) {
	if start == "" || end == "" {
		return DateRange{}, shared.ErrInvalidInput.WithMessage("date range start and end are required")
	}
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, shared.ErrInvalidInput.WithMessage("invalid start date: " + start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, shared.ErrInvalidInput.WithMessage("invalid end date: " + end)
	}
	if s.After(e) {
		return DateRange{}, shared.ErrInvalidInput.WithMessage("date range start is after end")
	}
	t := truncateDay(today)
	if e.After(t) {
		return DateRange{}, shared.ErrInvalidInput.WithMessage("date range end is in the future")
	}
	return DateRange{Start: s, End: e}, nil
}

// PreviousYear returns the same calendar period one year earlier (N-1).
// Feb 29 maps to Feb 28 so the period never spills into March.
func (r DateRange) PreviousYear() DateRange {
	return DateRange{Start: previousYearDay(r.Start), End: previousYearDay(r.End)}
}

func previousYearDay(t time.Time) time.Time {
	y, m, d := t.Date()
	// day 0 of the next month is the last day of m
	last := time.Date(y-1, m+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(y-1, m, min(d, last), 0, 0, 0, 0, t.Location())
}

// StartString returns the start date in wire format
func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }

// EndString returns the end date in wire format
func (r DateRange) EndString() string { return r.End.Format(DateLayout) }

// EndExclusive returns the day after End, for half-open timestamp predicates
func (r DateRange) EndExclusive() time.Time { return r.End.AddDate(0, 0, 1) }

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NumericRange is an inclusive [Min, Max] bound on a numeric column
type NumericRange struct {
	Min float64
	Max float64
}

// GenericStatus restricts products by generic classification
type GenericStatus string

const (
	GenericStatusAll             GenericStatus = "ALL"
	GenericStatusGeneric         GenericStatus = "GENERIC"
	GenericStatusPrinceps        GenericStatus = "PRINCEPS"
	GenericStatusPrincepsGeneric GenericStatus = "PRINCEPS_GENERIC"
)

// IsValid reports whether the status is a known value
func (s GenericStatus) IsValid() bool {
	switch s {
	case GenericStatusAll, GenericStatusGeneric, GenericStatusPrinceps, GenericStatusPrincepsGeneric:
		return true
	}
	return false
}

// ReimbursementStatus restricts products by social security reimbursement
type ReimbursementStatus string

const (
	ReimbursementAll           ReimbursementStatus = "ALL"
	ReimbursementReimbursed    ReimbursementStatus = "REIMBURSED"
	ReimbursementNotReimbursed ReimbursementStatus = "NOT_REIMBURSED"
)

// IsValid reports whether the status is a known value
func (s ReimbursementStatus) IsValid() bool {
	switch s {
	case ReimbursementAll, ReimbursementReimbursed, ReimbursementNotReimbursed:
		return true
	}
	return false
}

// Operator joins two consecutive active filter groups
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ParseOperator parses an operator, case-insensitively
func ParseOperator(s string) (Operator, error) {
	switch Operator(strings.ToUpper(strings.TrimSpace(s))) {
	case OperatorAnd:
		return OperatorAnd, nil
	case OperatorOr:
		return OperatorOr, nil
	}
	return "", shared.ErrInvalidInput.WithMessage("unknown filter operator: " + s)
}

// Granularity is the bucket size of a sales time series
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity parses a granularity; empty means month
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case "", GranularityMonth:
		return GranularityMonth, nil
	case GranularityWeek:
		return GranularityWeek, nil
	case GranularityDay:
		return GranularityDay, nil
	}
	return "", shared.ErrInvalidInput.WithMessage("unknown granularity: " + s)
}

// FilterGroup identifies an optional filter group
type FilterGroup int

const (
	GroupLaboratories FilterGroup = iota
	GroupCategories
	GroupProducts
	GroupPharmacies
	GroupTVARates
	GroupGenericStatus
	GroupReimbursementStatus
	GroupPurchasePriceNet
	GroupPurchasePriceGross
	GroupSellPrice
	GroupDiscount
	GroupMargin
)

// CanonicalGroups is the fixed order in which active groups are joined by operators
var CanonicalGroups = []FilterGroup{
	GroupLaboratories,
	GroupCategories,
	GroupProducts,
	GroupPharmacies,
	GroupTVARates,
	GroupGenericStatus,
	GroupReimbursementStatus,
	GroupPurchasePriceNet,
	GroupPurchasePriceGross,
	GroupSellPrice,
	GroupDiscount,
	GroupMargin,
}

var groupNames = map[FilterGroup]string{
	GroupLaboratories:        "laboratories",
	GroupCategories:          "categories",
	GroupProducts:            "products",
	GroupPharmacies:          "pharmacies",
	GroupTVARates:            "tvaRates",
	GroupGenericStatus:       "genericStatus",
	GroupReimbursementStatus: "reimbursementStatus",
	GroupPurchasePriceNet:    "purchasePriceNet",
	GroupPurchasePriceGross:  "purchasePriceGross",
	GroupSellPrice:           "sellPrice",
	GroupDiscount:            "discount",
	GroupMargin:              "margin",
}

// String returns the wire name of the group
func (g FilterGroup) String() string {
	if n, ok := groupNames[g]; ok {
		return n
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// IsRange reports whether the group is a numeric range filter
func (g FilterGroup) IsRange() bool {
	return g >= GroupPurchasePriceNet && g <= GroupMargin
}

// Default upper bounds of the range filters; [0, default] means "no filter".
const (
	DefaultMaxPrice    = 10000.0
	DefaultMaxDiscount = 100.0
	DefaultMaxMargin   = 100.0
)

// DefaultMax returns the default upper bound of a range group
func DefaultMax(g FilterGroup) float64 {
	switch g {
	case GroupDiscount:
		return DefaultMaxDiscount
	case GroupMargin:
		return DefaultMaxMargin
	default:
		return DefaultMaxPrice
	}
}

// FilterSet is the composable filter state of an analytics request.
// Mutations through the Set*/Clear* methods keep
// len(FilterOperators) == max(0, active groups - 1).
type FilterSet struct {
	DateRange           DateRange
	ComparisonDateRange *DateRange

	// ProductCodes is the merged, de-duplicated allProductCodes set
	ProductCodes []string
	Laboratories []string
	Categories   []string
	PharmacyIDs  []uuid.UUID

	ExcludedProductCodes []string
	ExcludedLaboratories []string
	ExcludedCategories   []string

	TVARates            []float64
	GenericStatus       GenericStatus
	ReimbursementStatus ReimbursementStatus

	PurchasePriceNet   *NumericRange
	PurchasePriceGross *NumericRange
	SellPrice          *NumericRange
	Discount           *NumericRange
	Margin             *NumericRange

	FilterOperators []Operator
	Granularity     Granularity
}

// NewFilterSet returns an empty filter set over the given period
func NewFilterSet(period DateRange) FilterSet {
	return FilterSet{
		DateRange:           period,
		GenericStatus:       GenericStatusAll,
		ReimbursementStatus: ReimbursementAll,
		Granularity:         GranularityMonth,
	}
}

// Range returns the range bound for a range group
func (f *FilterSet) Range(g FilterGroup) *NumericRange {
	if p := f.rangeRef(g); p != nil {
		return *p
	}
	return nil
}

func (f *FilterSet) rangeRef(g FilterGroup) **NumericRange {
	switch g {
	case GroupPurchasePriceNet:
		return &f.PurchasePriceNet
	case GroupPurchasePriceGross:
		return &f.PurchasePriceGross
	case GroupSellPrice:
		return &f.SellPrice
	case GroupDiscount:
		return &f.Discount
	case GroupMargin:
		return &f.Margin
	}
	return nil
}

// IsActive reports whether a group contributes a condition
func (f *FilterSet) IsActive(g FilterGroup) bool {
	switch g {
	case GroupLaboratories:
		return len(f.Laboratories) > 0
	case GroupCategories:
		return len(f.Categories) > 0
	case GroupProducts:
		return len(f.ProductCodes) > 0
	case GroupPharmacies:
		return len(f.PharmacyIDs) > 0
	case GroupTVARates:
		return len(f.TVARates) > 0
	case GroupGenericStatus:
		return f.GenericStatus != "" && f.GenericStatus != GenericStatusAll
	case GroupReimbursementStatus:
		return f.ReimbursementStatus != "" && f.ReimbursementStatus != ReimbursementAll
	}
	if g.IsRange() {
		r := f.Range(g)
		return r != nil && !(r.Min == 0 && r.Max == DefaultMax(g))
	}
	return false
}

// ActiveGroups returns the active groups in canonical order
func (f *FilterSet) ActiveGroups() []FilterGroup {
	active := make([]FilterGroup, 0, len(CanonicalGroups))
	for _, g := range CanonicalGroups {
		if f.IsActive(g) {
			active = append(active, g)
		}
	}
	return active
}

// HasProductFilter reports whether a product code filter is active
func (f *FilterSet) HasProductFilter() bool {
	return len(f.ProductCodes) > 0
}

// Normalize aligns FilterOperators with the active group count: missing
// operators are appended as AND, extra operators are dropped from the end.
func (f *FilterSet) Normalize() {
	want := max(0, len(f.ActiveGroups())-1)
	switch {
	case len(f.FilterOperators) > want:
		f.FilterOperators = f.FilterOperators[:want]
	case len(f.FilterOperators) < want:
		for len(f.FilterOperators) < want {
			f.FilterOperators = append(f.FilterOperators, OperatorAnd)
		}
	}
}

// RowChain returns the active groups and the operators joining them, without
// the pharmacy group. The pharmacy group is rendered by the query mode, so it
// leaves the chain together with the operator slot that joined it.
func (f FilterSet) RowChain() ([]FilterGroup, []Operator) {
	f = f.Clone()
	f.Normalize()

	active := f.ActiveGroups()
	ops := f.FilterOperators
	if idx := slices.Index(active, GroupPharmacies); idx >= 0 {
		if len(active) > 1 {
			slot := max(0, idx-1)
			ops = slices.Delete(ops, slot, slot+1)
		}
		active = slices.Delete(active, idx, idx+1)
	}
	if ops == nil {
		ops = []Operator{}
	}
	return active, ops
}

// mutate applies fn to group g and inserts or removes the operator slot that
// joins g to its neighbours when fn changes whether g is active.
func (f *FilterSet) mutate(g FilterGroup, fn func()) {
	f.Normalize()
	before := f.ActiveGroups()
	wasActive := slices.Contains(before, g)
	slot := max(0, slices.Index(before, g)-1)

	fn()

	after := f.ActiveGroups()
	isActive := slices.Contains(after, g)
	switch {
	case !wasActive && isActive && len(after) > 1:
		slot = max(0, slices.Index(after, g)-1)
		f.FilterOperators = slices.Insert(f.FilterOperators, slot, OperatorAnd)
	case wasActive && !isActive && len(before) > 1:
		f.FilterOperators = slices.Delete(f.FilterOperators, slot, slot+1)
	}
}

// SetProductCodes replaces the product filter with the merged code lists
func (f *FilterSet) SetProductCodes(lists ...[]string) {
	f.mutate(GroupProducts, func() { f.ProductCodes = MergeCodes(lists...) })
}

// SetLaboratories replaces the laboratory filter
func (f *FilterSet) SetLaboratories(names []string) {
	f.mutate(GroupLaboratories, func() { f.Laboratories = NormalizeLaboratories(names) })
}

// SetCategories replaces the category filter
func (f *FilterSet) SetCategories(categories []string) {
	f.mutate(GroupCategories, func() { f.Categories = MergeCodes(categories) })
}

// SetPharmacies replaces the requested pharmacy scope
func (f *FilterSet) SetPharmacies(ids []uuid.UUID) {
	f.mutate(GroupPharmacies, func() { f.PharmacyIDs = dedupeIDs(ids) })
}

// SetTVARates replaces the VAT rate filter
func (f *FilterSet) SetTVARates(rates []float64) {
	f.mutate(GroupTVARates, func() {
		out := slices.Clone(rates)
		slices.Sort(out)
		f.TVARates = slices.Compact(out)
	})
}

// SetGenericStatus replaces the generic status filter
func (f *FilterSet) SetGenericStatus(s GenericStatus) {
	f.mutate(GroupGenericStatus, func() { f.GenericStatus = s })
}

// SetReimbursementStatus replaces the reimbursement filter
func (f *FilterSet) SetReimbursementStatus(s ReimbursementStatus) {
	f.mutate(GroupReimbursementStatus, func() { f.ReimbursementStatus = s })
}

// SetRange replaces a range filter; nil clears it
func (f *FilterSet) SetRange(g FilterGroup, r *NumericRange) error {
	ref := f.rangeRef(g)
	if ref == nil {
		return shared.ErrInvalidInput.WithMessage(g.String() + " is not a range filter")
	}
	if r != nil {
		if r.Min < 0 || r.Max < r.Min {
			return shared.ErrInvalidInput.WithMessage("invalid " + g.String() + " range")
		}
		cp := *r
		r = &cp
	}
	f.mutate(g, func() { *ref = r })
	return nil
}

// SetOperator replaces the operator joining active group i and i+1
func (f *FilterSet) SetOperator(i int, op Operator) error {
	f.Normalize()
	if i < 0 || i >= len(f.FilterOperators) {
		return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("operator index %d out of range", i))
	}
	if _, err := ParseOperator(string(op)); err != nil {
		return err
	}
	f.FilterOperators[i] = op
	return nil
}

// ClearGroup deactivates a single group
func (f *FilterSet) ClearGroup(g FilterGroup) {
	f.mutate(g, func() {
		switch g {
		case GroupLaboratories:
			f.Laboratories = nil
		case GroupCategories:
			f.Categories = nil
		case GroupProducts:
			f.ProductCodes = nil
		case GroupPharmacies:
			f.PharmacyIDs = nil
		case GroupTVARates:
			f.TVARates = nil
		case GroupGenericStatus:
			f.GenericStatus = GenericStatusAll
		case GroupReimbursementStatus:
			f.ReimbursementStatus = ReimbursementAll
		default:
			if ref := f.rangeRef(g); ref != nil {
				*ref = nil
			}
		}
	})
}

// Reset clears every filter group and exclusion, keeping the periods
func (f *FilterSet) Reset() {
	*f = FilterSet{
		DateRange:           f.DateRange,
		ComparisonDateRange: f.ComparisonDateRange,
		GenericStatus:       GenericStatusAll,
		ReimbursementStatus: ReimbursementAll,
		Granularity:         f.Granularity,
	}
}

// Validate checks enum values and range bounds of a filter set built from wire input
func (f *FilterSet) Validate() error {
	if f.DateRange.Start.IsZero() || f.DateRange.End.IsZero() {
		return shared.ErrInvalidInput.WithMessage("dateRange is required")
	}
	if f.GenericStatus != "" && !f.GenericStatus.IsValid() {
		return shared.ErrInvalidInput.WithMessage("unknown genericStatus: " + string(f.GenericStatus))
	}
	if f.ReimbursementStatus != "" && !f.ReimbursementStatus.IsValid() {
		return shared.ErrInvalidInput.WithMessage("unknown reimbursementStatus: " + string(f.ReimbursementStatus))
	}
	for _, g := range CanonicalGroups {
		if !g.IsRange() {
			continue
		}
		if r := f.Range(g); r != nil && (r.Min < 0 || r.Max < r.Min) {
			return shared.ErrInvalidInput.WithMessage("invalid " + g.String() + " range")
		}
	}
	for _, op := range f.FilterOperators {
		if _, err := ParseOperator(string(op)); err != nil {
			return err
		}
	}
	return nil
}

// ComparisonPeriod returns the explicit comparison range or N-1
func (f *FilterSet) ComparisonPeriod() DateRange {
	if f.ComparisonDateRange != nil {
		return *f.ComparisonDateRange
	}
	return f.DateRange.PreviousYear()
}

// Clone returns a deep copy
func (f FilterSet) Clone() FilterSet {
	out := f
	if f.ComparisonDateRange != nil {
		cp := *f.ComparisonDateRange
		out.ComparisonDateRange = &cp
	}
	out.ProductCodes = slices.Clone(f.ProductCodes)
	out.Laboratories = slices.Clone(f.Laboratories)
	out.Categories = slices.Clone(f.Categories)
	out.PharmacyIDs = slices.Clone(f.PharmacyIDs)
	out.ExcludedProductCodes = slices.Clone(f.ExcludedProductCodes)
	out.ExcludedLaboratories = slices.Clone(f.ExcludedLaboratories)
	out.ExcludedCategories = slices.Clone(f.ExcludedCategories)
	out.TVARates = slices.Clone(f.TVARates)
	out.FilterOperators = slices.Clone(f.FilterOperators)
	for _, g := range CanonicalGroups {
		if ref := out.rangeRef(g); ref != nil && *ref != nil {
			cp := **ref
			*ref = &cp
		}
	}
	return out
}

// MergeCodes merges code lists into one trimmed, de-duplicated list,
// keeping first-seen order.
func MergeCodes(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, code := range list {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// NormalizeLaboratory folds accents, collapses whitespace and upper-cases a
// laboratory name to match the stored brand_lab values.
func NormalizeLaboratory(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}

// NormalizeLaboratories normalizes and de-duplicates laboratory names
func NormalizeLaboratories(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		normalized = append(normalized, NormalizeLaboratory(n))
	}
	return MergeCodes(normalized)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
