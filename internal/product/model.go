package product

import (
	"time"

	"github.com/gofrs/uuid"
)

// Units a product can be sold in, matching the catalog conventions.
const (
	UnitKg    = "Kg"
	UnitLitre = "L"
	UnitCount = "Count"
)

type Product struct {
	ID          uuid.UUID  `json:"id"`
	FarmerID    uuid.UUID  `json:"farmer_id"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Price       float64    `json:"price"`
	Stock       int        `json:"stock"`
	Unit        string     `json:"unit"`
	ImageURL    string     `json:"image_url,omitempty"`
	TotalSales  int        `json:"total_sales"`
	IsDeleted   bool       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FarmerStats is the dashboard aggregation: units sold across the farmer's
// catalog and the amount those units represent at current prices.
type FarmerStats struct {
	TotalSales  int     `json:"total_sales"`
	SalesAmount float64 `json:"sales_amount"`
}
