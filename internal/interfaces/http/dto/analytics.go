package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/domain/shared"
)

// DateRangeRequest is an inclusive calendar date range
type DateRangeRequest struct {
	Start string `json:"start" binding:"required,datetime=2006-01-02"`
	End   string `json:"end" binding:"required,datetime=2006-01-02"`
}

// RangeRequest is an inclusive numeric bound
type RangeRequest struct {
	Min float64 `json:"min" binding:"gte=0"`
	Max float64 `json:"max" binding:"gte=0"`
}

// AnalyticsRequest is the JSON body shared by every analytics endpoint
type AnalyticsRequest struct {
	DateRange           *DateRangeRequest `json:"dateRange" binding:"required"`
	ComparisonDateRange *DateRangeRequest `json:"comparisonDateRange"`

	ProductCodes    []string `json:"productCodes"`
	LaboratoryCodes []string `json:"laboratoryCodes"`
	CategoryCodes   []string `json:"categoryCodes"`
	Laboratories    []string `json:"laboratories"`
	Categories      []string `json:"categories"`
	PharmacyIDs     []string `json:"pharmacyIds" binding:"omitempty,dive,uuid"`

	ExcludedProductCodes []string `json:"excludedProductCodes"`
	ExcludedLaboratories []string `json:"excludedLaboratories"`
	ExcludedCategories   []string `json:"excludedCategories"`

	PurchasePriceNet   *RangeRequest `json:"purchasePriceNet"`
	PurchasePriceGross *RangeRequest `json:"purchasePriceGross"`
	SellPrice          *RangeRequest `json:"sellPrice"`
	Discount           *RangeRequest `json:"discount"`
	Margin             *RangeRequest `json:"margin"`

	TVARates            []float64 `json:"tvaRates" binding:"omitempty,dive,gte=0"`
	GenericStatus       string    `json:"genericStatus" binding:"omitempty,oneof=ALL GENERIC PRINCEPS PRINCEPS_GENERIC"`
	ReimbursementStatus string    `json:"reimbursementStatus" binding:"omitempty,oneof=ALL REIMBURSED NOT_REIMBURSED"`

	FilterOperators []string `json:"filterOperators"`
	Granularity     string   `json:"granularity"`
}

// ToFilterSet converts the request into a normalized filter set.
// Both periods are validated against today.
func (r *AnalyticsRequest) ToFilterSet(today time.Time) (analytics.FilterSet, error) {
	if r.DateRange == nil {
		return analytics.FilterSet{}, shared.ErrInvalidInput.WithMessage("dateRange is required")
	}
	period, err := analytics.ParseDateRange(r.DateRange.Start, r.DateRange.End, today)
	if err != nil {
		return analytics.FilterSet{}, err
	}

	fs := analytics.NewFilterSet(period)
	if r.ComparisonDateRange != nil {
		comparison, err := analytics.ParseDateRange(r.ComparisonDateRange.Start, r.ComparisonDateRange.End, today)
		if err != nil {
			return analytics.FilterSet{}, err
		}
		fs.ComparisonDateRange = &comparison
	}

	pharmacies, err := parsePharmacyIDs(r.PharmacyIDs)
	if err != nil {
		return analytics.FilterSet{}, err
	}

	fs.SetLaboratories(r.Laboratories)
	fs.SetCategories(r.Categories)
	fs.SetProductCodes(r.ProductCodes, r.LaboratoryCodes, r.CategoryCodes)
	fs.SetPharmacies(pharmacies)
	fs.SetTVARates(r.TVARates)
	if r.GenericStatus != "" {
		fs.SetGenericStatus(analytics.GenericStatus(r.GenericStatus))
	}
	if r.ReimbursementStatus != "" {
		fs.SetReimbursementStatus(analytics.ReimbursementStatus(r.ReimbursementStatus))
	}

	ranges := []struct {
		group analytics.FilterGroup
		req   *RangeRequest
	}{
		{analytics.GroupPurchasePriceNet, r.PurchasePriceNet},
		{analytics.GroupPurchasePriceGross, r.PurchasePriceGross},
		{analytics.GroupSellPrice, r.SellPrice},
		{analytics.GroupDiscount, r.Discount},
		{analytics.GroupMargin, r.Margin},
	}
	for _, rg := range ranges {
		if rg.req == nil {
			continue
		}
		if err := fs.SetRange(rg.group, &analytics.NumericRange{Min: rg.req.Min, Max: rg.req.Max}); err != nil {
			return analytics.FilterSet{}, err
		}
	}

	fs.ExcludedProductCodes = analytics.MergeCodes(r.ExcludedProductCodes)
	fs.ExcludedLaboratories = analytics.NormalizeLaboratories(r.ExcludedLaboratories)
	fs.ExcludedCategories = analytics.MergeCodes(r.ExcludedCategories)

	// client operators replace the defaults inserted above, then get padded or truncated
	operators := make([]analytics.Operator, 0, len(r.FilterOperators))
	for _, raw := range r.FilterOperators {
		op, err := analytics.ParseOperator(raw)
		if err != nil {
			return analytics.FilterSet{}, err
		}
		operators = append(operators, op)
	}
	fs.FilterOperators = operators
	fs.Normalize()

	granularity, err := analytics.ParseGranularity(r.Granularity)
	if err != nil {
		return analytics.FilterSet{}, err
	}
	fs.Granularity = granularity

	if err := fs.Validate(); err != nil {
		return analytics.FilterSet{}, err
	}
	return fs, nil
}

func parsePharmacyIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, shared.ErrInvalidInput.WithMessage("invalid pharmacy id: " + s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
