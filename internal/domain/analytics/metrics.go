package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Query is one aggregate request against the read model
type Query struct {
	Filters EnforcedFilters
	Period  DateRange
	// Keys restricts the result to these dimension keys (product codes); empty means no restriction
	Keys  []string
	Limit int
}

// Repository executes the aggregation templates of every analytics shape
type Repository interface {
	// CompetitiveAnalysis aggregates selection vs market prices per product
	CompetitiveAnalysis(ctx context.Context, q Query) ([]CompetitiveAggregate, error)
	// ProductSales aggregates the selection's sales, margin and stock per product
	ProductSales(ctx context.Context, q Query) ([]ProductAggregate, error)
	// LaboratorySales aggregates selection vs market sales per laboratory
	LaboratorySales(ctx context.Context, q Query) ([]LaboratoryAggregate, error)
	// PharmacySales aggregates sales per pharmacy of the selection
	PharmacySales(ctx context.Context, q Query) ([]PharmacyAggregate, error)
	// SalesEvolution aggregates selection vs market sales per time bucket
	SalesEvolution(ctx context.Context, q Query) ([]EvolutionAggregate, error)
	// Ruptures aggregates ordered vs received quantities per product
	Ruptures(ctx context.Context, q Query) ([]RuptureAggregate, error)
}

// ===== Raw aggregates =====

// CompetitiveAggregate is one product's selection and market price aggregate
type CompetitiveAggregate struct {
	ProductCode         string
	ProductName         string
	Laboratory          string
	SelectionAvgPrice   decimal.Decimal
	MarketAvgPrice      decimal.Decimal
	MarketMinPrice      decimal.Decimal
	MarketMaxPrice      decimal.Decimal
	SelectionQuantity   decimal.Decimal
	MarketQuantity      decimal.Decimal
	SelectionSalesHT    decimal.Decimal
	SelectionMarginHT   decimal.Decimal
	MarketSalesHT       decimal.Decimal
	MarketMarginHT      decimal.Decimal
	MarketPharmacyCount int64
}

// ProductAggregate is one product's sales for the selection
type ProductAggregate struct {
	ProductCode      string
	ProductName      string
	Laboratory       string
	Category         string
	Quantity         decimal.Decimal
	SalesTTC         decimal.Decimal
	SalesHT          decimal.Decimal
	MarginHT         decimal.Decimal
	CurrentStock     decimal.Decimal
	AvgSellPrice     decimal.Decimal
	AvgPurchasePrice decimal.Decimal
	// TotalSalesTTC is the selection's sales over every product, before the row cap
	TotalSalesTTC decimal.Decimal
}

// LaboratoryAggregate is one laboratory's selection and market sales
type LaboratoryAggregate struct {
	Laboratory        string
	ProductCount      int64
	SelectionSalesTTC decimal.Decimal
	MarketSalesTTC    decimal.Decimal
	SelectionQuantity decimal.Decimal
	MarketQuantity    decimal.Decimal
	SelectionSalesHT  decimal.Decimal
	SelectionMarginHT decimal.Decimal
	// totals over every laboratory, before the row cap
	SelectionTotalTTC decimal.Decimal
	MarketTotalTTC    decimal.Decimal
}

// PharmacyAggregate is one pharmacy's sales
type PharmacyAggregate struct {
	PharmacyID   uuid.UUID
	PharmacyName string
	Area         string
	SalesTTC     decimal.Decimal
	SalesHT      decimal.Decimal
	MarginHT     decimal.Decimal
	Quantity     decimal.Decimal
	// TotalSalesTTC is the sales of every listed pharmacy, before the row cap
	TotalSalesTTC decimal.Decimal
}

// EvolutionAggregate is one time bucket of selection and market sales
type EvolutionAggregate struct {
	Period                 time.Time
	SelectionSalesTTC      decimal.Decimal
	MarketSalesTTC         decimal.Decimal
	TotalSalesTTC          decimal.Decimal
	SelectionQuantity      decimal.Decimal
	MarketQuantity         decimal.Decimal
	SelectionSalesHT       decimal.Decimal
	SelectionMarginHT      decimal.Decimal
	SelectionPharmacyCount int64
	MarketPharmacyCount    int64
}

// RuptureAggregate is one product's ordered vs received quantities
type RuptureAggregate struct {
	ProductCode      string
	ProductName      string
	Laboratory       string
	OrderCount       int64
	QuantityOrdered  decimal.Decimal
	QuantityReceived decimal.Decimal
	CurrentStock     decimal.Decimal
}

// ===== Metric rows (response boundary, rounded to 2 decimals) =====

// CompetitiveRow positions the selection's prices against the market
type CompetitiveRow struct {
	ProductCode         string  `json:"code_ean"`
	ProductName         string  `json:"product_name"`
	Laboratory          string  `json:"brand_lab"`
	MyAvgSellPrice      float64 `json:"my_avg_sell_price"`
	GlobalAvgSellPrice  float64 `json:"global_avg_sell_price"`
	GlobalMinSellPrice  float64 `json:"global_min_sell_price"`
	GlobalMaxSellPrice  float64 `json:"global_max_sell_price"`
	PriceGapPct         float64 `json:"ecart_prix_vs_marche_pct"`
	MyQuantity          float64 `json:"my_quantity"`
	GlobalQuantity      float64 `json:"global_quantity"`
	MyMarginRatePct     float64 `json:"my_margin_rate_pct"`
	GlobalMarginRatePct float64 `json:"global_margin_rate_pct"`
	GlobalPharmacyCount int64   `json:"global_pharmacy_count"`
}

// ProductRow is one product of the selection with its N-1 evolution
type ProductRow struct {
	ProductCode          string  `json:"code_ean"`
	ProductName          string  `json:"product_name"`
	Laboratory           string  `json:"brand_lab"`
	Category             string  `json:"category"`
	Quantity             float64 `json:"quantity_sold"`
	SalesTTC             float64 `json:"sales_ttc"`
	SalesHT              float64 `json:"sales_ht"`
	MarginHT             float64 `json:"margin_ht"`
	MarginRatePct        float64 `json:"margin_rate_pct"`
	CurrentStock         float64 `json:"current_stock"`
	AvgSellPrice         float64 `json:"avg_sell_price"`
	AvgPurchasePrice     float64 `json:"avg_purchase_price"`
	MarketSharePct       float64 `json:"market_share_pct"`
	PreviousSalesTTC     float64 `json:"previous_sales_ttc"`
	SalesEvolutionPct    float64 `json:"sales_evolution_pct"`
	QuantityEvolutionPct float64 `json:"quantity_evolution_pct"`
}

// LaboratoryRow is one laboratory's market share for selection and market
type LaboratoryRow struct {
	Laboratory              string  `json:"laboratory"`
	ProductCount            int64   `json:"product_count"`
	MySalesTTC              float64 `json:"my_sales_ttc"`
	GlobalSalesTTC          float64 `json:"global_sales_ttc"`
	MyQuantity              float64 `json:"my_quantity"`
	GlobalQuantity          float64 `json:"global_quantity"`
	MyMarketSharePct        float64 `json:"my_market_share_pct"`
	GlobalMarketSharePct    float64 `json:"global_market_share_pct"`
	MyMarginRatePct         float64 `json:"my_margin_rate_pct"`
	MySalesEvolutionPct     float64 `json:"my_sales_evolution_pct"`
	GlobalSalesEvolutionPct float64 `json:"global_sales_evolution_pct"`
}

// PharmacyRow benchmarks one pharmacy against the others
type PharmacyRow struct {
	PharmacyID           string   `json:"pharmacy_id"`
	PharmacyName         string   `json:"pharmacy_name"`
	Area                 string   `json:"area"`
	SalesTTC             float64  `json:"sales_ttc"`
	PreviousSalesTTC     float64  `json:"previous_sales_ttc"`
	SalesEvolutionPct    float64  `json:"sales_evolution_pct"`
	RelativeEvolutionPct *float64 `json:"relative_evolution_pct"`
	MarginRatePct        float64  `json:"margin_rate_pct"`
	Quantity             float64  `json:"quantity"`
	MarketSharePct       float64  `json:"market_share_pct"`
	Rank                 int      `json:"rank"`
}

// EvolutionRow is one time bucket of the sales series
type EvolutionRow struct {
	Period                    string  `json:"period"`
	MySalesTTC                float64 `json:"my_sales_ttc"`
	GlobalSalesTTC            float64 `json:"global_sales_ttc"`
	MyQuantity                float64 `json:"my_quantity"`
	GlobalQuantity            float64 `json:"global_quantity"`
	MyMarginRatePct           float64 `json:"my_margin_rate_pct"`
	MySharePct                float64 `json:"my_share_pct"`
	MyAvgSalesPerPharmacy     float64 `json:"my_avg_sales_per_pharmacy"`
	GlobalAvgSalesPerPharmacy float64 `json:"global_avg_sales_per_pharmacy"`
}

// RuptureRow is one product's supply shortfall
type RuptureRow struct {
	ProductCode      string  `json:"code_ean"`
	ProductName      string  `json:"product_name"`
	Laboratory       string  `json:"brand_lab"`
	OrderCount       int64   `json:"order_count"`
	QuantityOrdered  float64 `json:"quantity_ordered"`
	QuantityReceived float64 `json:"quantity_received"`
	RuptureQuantity  float64 `json:"rupture_quantity"`
	RuptureRatePct   float64 `json:"rupture_rate_pct"`
	CurrentStock     float64 `json:"current_stock"`
}
