package settlement

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
)

// VendorShare is one vendor's cut of a settled order.
type VendorShare struct {
	VendorStoreID uuid.UUID
	Gross         decimal.Decimal
	Fee           decimal.Decimal
	Net           decimal.Decimal
}

// ComputeSplit aggregates order items by vendor and applies the commission
// rate once per vendor aggregate, rounding the fee to cents at that single
// point. Gross == Fee + Net holds exactly for every share.
func ComputeSplit(items []models.OrderItem, commissionRate decimal.Decimal) ([]VendorShare, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, fmt.Errorf("order has no items")
	}
	if commissionRate.IsNegative() || commissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, decimal.Zero, fmt.Errorf("commission rate %s outside [0,1]", commissionRate)
	}

	totals := map[uuid.UUID]decimal.Decimal{}
	order := []uuid.UUID{}
	for _, item := range items {
		if item.VendorStoreID == uuid.Nil {
			return nil, decimal.Zero, fmt.Errorf("order item %s missing vendor store", item.ID)
		}
		if item.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("order item %s has non-positive quantity", item.ID)
		}
		if item.Price.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("order item %s has negative price", item.ID)
		}
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if _, seen := totals[item.VendorStoreID]; !seen {
			order = append(order, item.VendorStoreID)
		}
		totals[item.VendorStoreID] = totals[item.VendorStoreID].Add(lineTotal)
	}

	shares := make([]VendorShare, 0, len(order))
	feeTotal := decimal.Zero
	for _, vendorID := range order {
		gross := totals[vendorID]
		fee := gross.Mul(commissionRate).Round(2)
		shares = append(shares, VendorShare{
			VendorStoreID: vendorID,
			Gross:         gross,
			Fee:           fee,
			Net:           gross.Sub(fee),
		})
		feeTotal = feeTotal.Add(fee)
	}
	return shares, feeTotal, nil
}
