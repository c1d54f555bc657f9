package persistence

import (
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/infrastructure/persistence/conditions"
)

// Every template is a single statement with "?" placeholders. Nested
// fragments (scope predicates, filter conditions) are bound as squirrel
// Sqlizer arguments and the placeholders are numbered once, when gorm renders
// the statement for PostgreSQL.

// salesColumns maps filter groups onto the sales line joins (s, ip, gp)
var salesColumns = conditions.ColumnMap{
	analytics.GroupLaboratories:        "gp.brand_lab",
	analytics.GroupCategories:          "gp.category",
	analytics.GroupProducts:            "gp.code_13_ref",
	analytics.GroupTVARates:            "gp.tva_percentage",
	analytics.GroupGenericStatus:       "gp.generic_status",
	analytics.GroupReimbursementStatus: "gp.is_reimbursable",
	analytics.GroupPurchasePriceNet:    "s.weighted_average_price",
	analytics.GroupPurchasePriceGross:  "gp.manufacturer_price_ht",
	analytics.GroupSellPrice:           "s.unit_price_ttc",
	analytics.GroupDiscount:            "(gp.manufacturer_price_ht - s.weighted_average_price) / NULLIF(gp.manufacturer_price_ht, 0) * 100",
	analytics.GroupMargin:              "(s.unit_price_ttc / (1 + gp.tva_percentage / 100) - s.weighted_average_price) / NULLIF(s.unit_price_ttc / (1 + gp.tva_percentage / 100), 0) * 100",
}

// orderColumns maps filter groups onto the supplier order joins (po, o, ip, gp)
var orderColumns = conditions.ColumnMap{
	analytics.GroupLaboratories:        "gp.brand_lab",
	analytics.GroupCategories:          "gp.category",
	analytics.GroupProducts:            "gp.code_13_ref",
	analytics.GroupTVARates:            "gp.tva_percentage",
	analytics.GroupGenericStatus:       "gp.generic_status",
	analytics.GroupReimbursementStatus: "gp.is_reimbursable",
	analytics.GroupPurchasePriceNet:    "po.unit_price_ht",
	analytics.GroupPurchasePriceGross:  "gp.manufacturer_price_ht",
	analytics.GroupSellPrice:           "gp.public_price_ttc",
	analytics.GroupDiscount:            "(gp.manufacturer_price_ht - po.unit_price_ht) / NULLIF(gp.manufacturer_price_ht, 0) * 100",
	analytics.GroupMargin:              "(gp.public_price_ttc / (1 + gp.tva_percentage / 100) - po.unit_price_ht) / NULLIF(gp.public_price_ttc / (1 + gp.tva_percentage / 100), 0) * 100",
}

// scopedSalesCTE args: selection, market, period start, period end (exclusive),
// row scope, filter conditions, key restriction
const scopedSalesCTE = `
scoped_sales AS (
	SELECT
		gp.code_13_ref,
		gp.name AS product_name,
		COALESCE(gp.brand_lab, '') AS brand_lab,
		COALESCE(gp.category, '') AS category,
		ip.pharmacy_id,
		s.sale_date,
		s.quantity,
		s.unit_price_ttc,
		s.weighted_average_price,
		s.quantity * s.unit_price_ttc AS sales_ttc,
		s.quantity * s.unit_price_ttc / (1 + gp.tva_percentage / 100) AS sales_ht,
		s.quantity * (s.unit_price_ttc / (1 + gp.tva_percentage / 100) - s.weighted_average_price) AS margin_ht,
		(?) AS in_selection,
		(?) AS in_market
	FROM sales s
	JOIN internal_products ip ON ip.id = s.product_id
	JOIN global_products gp ON gp.code_13_ref = ip.code_13_ref
	WHERE s.sale_date >= ? AND s.sale_date < ?
		AND (?)
		AND (?)
		AND (?)
)`

// latestStockCTE args: stock date, selection over sip.pharmacy_id
const latestStockCTE = `
latest_stock AS (
	SELECT DISTINCT ON (inv.product_id) sip.code_13_ref, inv.stock
	FROM inventory_snapshots inv
	JOIN internal_products sip ON sip.id = inv.product_id
	WHERE inv.snapshot_date <= ?
		AND (?)
	ORDER BY inv.product_id, inv.snapshot_date DESC
),
stock_by_code AS (
	SELECT code_13_ref, SUM(stock) AS current_stock
	FROM latest_stock
	GROUP BY code_13_ref
)`

// competitiveSQL args: scopedSalesCTE, limit
const competitiveSQL = `WITH` + scopedSalesCTE + `
SELECT
	code_13_ref AS product_code,
	product_name,
	brand_lab AS laboratory,
	COALESCE(AVG(unit_price_ttc) FILTER (WHERE in_selection), 0) AS selection_avg_price,
	COALESCE(AVG(unit_price_ttc) FILTER (WHERE in_market), 0) AS market_avg_price,
	COALESCE(MIN(unit_price_ttc) FILTER (WHERE in_market), 0) AS market_min_price,
	COALESCE(MAX(unit_price_ttc) FILTER (WHERE in_market), 0) AS market_max_price,
	COALESCE(SUM(quantity) FILTER (WHERE in_selection), 0) AS selection_quantity,
	COALESCE(SUM(quantity) FILTER (WHERE in_market), 0) AS market_quantity,
	COALESCE(SUM(sales_ht) FILTER (WHERE in_selection), 0) AS selection_sales_ht,
	COALESCE(SUM(margin_ht) FILTER (WHERE in_selection), 0) AS selection_margin_ht,
	COALESCE(SUM(sales_ht) FILTER (WHERE in_market), 0) AS market_sales_ht,
	COALESCE(SUM(margin_ht) FILTER (WHERE in_market), 0) AS market_margin_ht,
	COUNT(DISTINCT pharmacy_id) FILTER (WHERE in_market) AS market_pharmacy_count
FROM scoped_sales
GROUP BY code_13_ref, product_name, brand_lab
HAVING COUNT(*) FILTER (WHERE in_selection) > 0
ORDER BY product_name, code_13_ref
LIMIT ?`

// productsSQL args: scopedSalesCTE, latestStockCTE, limit
const productsSQL = `WITH` + scopedSalesCTE + `,` + latestStockCTE + `
SELECT
	ss.code_13_ref AS product_code,
	ss.product_name,
	ss.brand_lab AS laboratory,
	ss.category,
	SUM(ss.quantity) AS quantity,
	SUM(ss.sales_ttc) AS sales_ttc,
	SUM(ss.sales_ht) AS sales_ht,
	SUM(ss.margin_ht) AS margin_ht,
	COALESCE(MAX(st.current_stock), 0) AS current_stock,
	COALESCE(AVG(ss.unit_price_ttc), 0) AS avg_sell_price,
	COALESCE(AVG(ss.weighted_average_price), 0) AS avg_purchase_price,
	SUM(SUM(ss.sales_ttc)) OVER () AS total_sales_ttc
FROM scoped_sales ss
LEFT JOIN stock_by_code st ON st.code_13_ref = ss.code_13_ref
GROUP BY ss.code_13_ref, ss.product_name, ss.brand_lab, ss.category
ORDER BY ss.product_name, ss.code_13_ref
LIMIT ?`

// laboratoriesSQL args: scopedSalesCTE, limit
const laboratoriesSQL = `WITH` + scopedSalesCTE + `
SELECT
	brand_lab AS laboratory,
	COUNT(DISTINCT code_13_ref) AS product_count,
	COALESCE(SUM(sales_ttc) FILTER (WHERE in_selection), 0) AS selection_sales_ttc,
	COALESCE(SUM(sales_ttc) FILTER (WHERE in_market), 0) AS market_sales_ttc,
	COALESCE(SUM(quantity) FILTER (WHERE in_selection), 0) AS selection_quantity,
	COALESCE(SUM(quantity) FILTER (WHERE in_market), 0) AS market_quantity,
	COALESCE(SUM(sales_ht) FILTER (WHERE in_selection), 0) AS selection_sales_ht,
	COALESCE(SUM(margin_ht) FILTER (WHERE in_selection), 0) AS selection_margin_ht,
	SUM(COALESCE(SUM(sales_ttc) FILTER (WHERE in_selection), 0)) OVER () AS selection_total_ttc,
	SUM(COALESCE(SUM(sales_ttc) FILTER (WHERE in_market), 0)) OVER () AS market_total_ttc
FROM scoped_sales
WHERE brand_lab <> ''
GROUP BY brand_lab
ORDER BY brand_lab
LIMIT ?`

// pharmaciesSQL args: scopedSalesCTE, selection over ph.id, limit
const pharmaciesSQL = `WITH` + scopedSalesCTE + `
SELECT
	ph.id AS pharmacy_id,
	ph.name AS pharmacy_name,
	COALESCE(ph.area, '') AS area,
	COALESCE(SUM(ss.sales_ttc), 0) AS sales_ttc,
	COALESCE(SUM(ss.sales_ht), 0) AS sales_ht,
	COALESCE(SUM(ss.margin_ht), 0) AS margin_ht,
	COALESCE(SUM(ss.quantity), 0) AS quantity,
	SUM(COALESCE(SUM(ss.sales_ttc), 0)) OVER () AS total_sales_ttc
FROM pharmacies ph
LEFT JOIN scoped_sales ss ON ss.pharmacy_id = ph.id
WHERE (?)
GROUP BY ph.id, ph.name, ph.area
ORDER BY ph.name, ph.id
LIMIT ?`

// evolutionSQL args: scopedSalesCTE, granularity, limit
const evolutionSQL = `WITH` + scopedSalesCTE + `
SELECT
	date_trunc(?::text, sale_date::timestamp)::date AS period,
	COALESCE(SUM(sales_ttc) FILTER (WHERE in_selection), 0) AS selection_sales_ttc,
	COALESCE(SUM(sales_ttc) FILTER (WHERE in_market), 0) AS market_sales_ttc,
	COALESCE(SUM(sales_ttc), 0) AS total_sales_ttc,
	COALESCE(SUM(quantity) FILTER (WHERE in_selection), 0) AS selection_quantity,
	COALESCE(SUM(quantity) FILTER (WHERE in_market), 0) AS market_quantity,
	COALESCE(SUM(sales_ht) FILTER (WHERE in_selection), 0) AS selection_sales_ht,
	COALESCE(SUM(margin_ht) FILTER (WHERE in_selection), 0) AS selection_margin_ht,
	COUNT(DISTINCT pharmacy_id) FILTER (WHERE in_selection) AS selection_pharmacy_count,
	COUNT(DISTINCT pharmacy_id) FILTER (WHERE in_market) AS market_pharmacy_count
FROM scoped_sales
GROUP BY 1
ORDER BY 1
LIMIT ?`

// rupturesSQL args: period start, period end (exclusive), selection over
// o.pharmacy_id, filter conditions, latestStockCTE, limit
const rupturesSQL = `WITH
scoped_orders AS (
	SELECT
		gp.code_13_ref,
		gp.name AS product_name,
		COALESCE(gp.brand_lab, '') AS brand_lab,
		o.id AS order_id,
		po.quantity_ordered,
		po.quantity_received
	FROM product_orders po
	JOIN orders o ON o.id = po.order_id
	JOIN internal_products ip ON ip.id = po.product_id
	JOIN global_products gp ON gp.code_13_ref = ip.code_13_ref
	WHERE o.sent_date >= ? AND o.sent_date < ?
		AND (?)
		AND (?)
),` + latestStockCTE + `
SELECT
	so.code_13_ref AS product_code,
	so.product_name,
	so.brand_lab AS laboratory,
	COUNT(DISTINCT so.order_id) AS order_count,
	SUM(so.quantity_ordered) AS quantity_ordered,
	SUM(so.quantity_received) AS quantity_received,
	COALESCE(MAX(st.current_stock), 0) AS current_stock
FROM scoped_orders so
LEFT JOIN stock_by_code st ON st.code_13_ref = so.code_13_ref
GROUP BY so.code_13_ref, so.product_name, so.brand_lab
HAVING SUM(so.quantity_ordered) > SUM(so.quantity_received)
ORDER BY so.product_name, so.code_13_ref
LIMIT ?`
