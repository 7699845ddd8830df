package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/sync"
)

type syncRequest struct {
	RestaurantID uuid.UUID  `json:"restaurant_id"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

type syncResponse struct {
	RestaurantID uuid.UUID  `json:"restaurant_id"`
	POSSystem    string     `json:"pos_system"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Written      int64      `json:"written"`
	Retracted    int64      `json:"retracted"`
	Classified   int        `json:"classified"`
}

func toSyncResponse(res sync.Result) syncResponse {
	return syncResponse{
		RestaurantID: res.RestaurantID,
		POSSystem:    res.POSSystem,
		From:         res.Window.From,
		To:           res.Window.To,
		Written:      res.Written,
		Retracted:    res.Retracted,
		Classified:   res.Classified,
	}
}

type entryResponse struct {
	ID              uuid.UUID         `json:"id"`
	RestaurantID    uuid.UUID         `json:"restaurant_id"`
	POSSystem       string            `json:"pos_system"`
	ExternalOrderID string            `json:"external_order_id"`
	ExternalItemID  string            `json:"external_item_id"`
	ItemType        string            `json:"item_type"`
	AdjustmentType  string            `json:"adjustment_type"`
	Name            string            `json:"name"`
	Quantity        string            `json:"quantity"`
	Currency        string            `json:"currency"`
	UnitPriceMinor  int64             `json:"unit_price_minor"`
	TotalPriceMinor int64             `json:"total_price_minor"`
	SoldAt          time.Time         `json:"sold_at"`
	CategoryID      *uuid.UUID        `json:"category_id,omitempty"`
	IsCategorized   bool              `json:"is_categorized"`
	ParentSaleID    *uuid.UUID        `json:"parent_sale_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	SyncedAt        time.Time         `json:"synced_at"`
}

func toEntryResponse(e ledger.Entry) entryResponse {
	unitMinor, _ := e.UnitPrice.MinorUnits()
	return entryResponse{
		ID:              e.ID,
		RestaurantID:    e.RestaurantID,
		POSSystem:       e.POSSystem,
		ExternalOrderID: e.ExternalOrderID,
		ExternalItemID:  e.ExternalItemID,
		ItemType:        string(e.ItemType),
		AdjustmentType:  string(e.AdjustmentType),
		Name:            e.Name,
		Quantity:        e.Quantity.String(),
		Currency:        e.TotalPrice.Curr().Code(),
		UnitPriceMinor:  unitMinor,
		TotalPriceMinor: e.TotalMinor(),
		SoldAt:          e.SoldAt,
		CategoryID:      e.CategoryID,
		IsCategorized:   e.IsCategorized,
		ParentSaleID:    e.ParentSaleID,
		Metadata:        map[string]string(e.Metadata),
		SyncedAt:        e.SyncedAt,
	}
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

type listEntriesResponse struct {
	Items []entryResponse `json:"items"`
}

// listEntriesQuery holds validated query params for GET /v1/entries.
type listEntriesQuery struct {
	RestaurantID uuid.UUID
	Window       sync.Window
}

type summaryResponse struct {
	ExternalOrderID string `json:"external_order_id"`
	GrossMinor      int64  `json:"gross_minor"`
	OffsetsMinor    int64  `json:"offsets_minor"`
	TaxMinor        int64  `json:"tax_minor"`
	TipMinor        int64  `json:"tip_minor"`
	NetMinor        int64  `json:"net_minor"`
	TotalMinor      int64  `json:"total_minor"`
}

type postRuleRequest struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Priority     int       `json:"priority"`
	Field        string    `json:"field"`
	Pattern      string    `json:"pattern"`
	CategoryID   uuid.UUID `json:"category_id"`
	Active       *bool     `json:"active,omitempty"`
}

type ruleResponse struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Priority     int       `json:"priority"`
	Field        string    `json:"field"`
	Pattern      string    `json:"pattern"`
	CategoryID   uuid.UUID `json:"category_id"`
	Active       bool      `json:"active"`
	UsageCount   int64     `json:"usage_count"`
}

func toRuleResponse(r rules.Rule) ruleResponse {
	return ruleResponse{
		ID:           r.ID,
		RestaurantID: r.RestaurantID,
		Priority:     r.Priority,
		Field:        string(r.Field),
		Pattern:      r.Pattern,
		CategoryID:   r.CategoryID,
		Active:       r.Active,
		UsageCount:   r.UsageCount,
	}
}

type postCategoryRequest struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Code         string    `json:"code,omitempty"`
	Label        string    `json:"label"`
}

type categoryResponse struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Label    string    `json:"label"`
	Reserved bool      `json:"reserved"`
}

type postSplitRequest struct {
	RestaurantID uuid.UUID          `json:"restaurant_id"`
	Parts        []postSplitPartReq `json:"parts"`
}

type postSplitPartReq struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity,omitempty"`
	TotalMinor int64  `json:"total_minor"`
}
