package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
)

func decFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestComputeSplitTwoVendors(t *testing.T) {
	vendorA := uuid.New()
	vendorB := uuid.New()
	items := []models.OrderItem{
		{VendorStoreID: vendorA, Price: decFromString(t, "1000"), Quantity: 1},
		{VendorStoreID: vendorB, Price: decFromString(t, "2000"), Quantity: 1},
	}

	shares, feeTotal, err := ComputeSplit(items, decFromString(t, "0.15"))
	if err != nil {
		t.Fatalf("compute split: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	byVendor := map[uuid.UUID]VendorShare{}
	for _, s := range shares {
		byVendor[s.VendorStoreID] = s
	}

	if got := byVendor[vendorA].Net; !got.Equal(decFromString(t, "850")) {
		t.Fatalf("vendor A net expected 850, got %s", got)
	}
	if got := byVendor[vendorB].Net; !got.Equal(decFromString(t, "1700")) {
		t.Fatalf("vendor B net expected 1700, got %s", got)
	}
	if !feeTotal.Equal(decFromString(t, "450")) {
		t.Fatalf("platform fee expected 450, got %s", feeTotal)
	}
}

func TestComputeSplitAggregatesVendorLinesBeforeRounding(t *testing.T) {
	vendor := uuid.New()
	// Both lines collapse into one vendor aggregate with a single fee.
	items := []models.OrderItem{
		{VendorStoreID: vendor, Price: decFromString(t, "33.33"), Quantity: 1},
		{VendorStoreID: vendor, Price: decFromString(t, "33.33"), Quantity: 1},
	}

	shares, feeTotal, err := ComputeSplit(items, decFromString(t, "0.15"))
	if err != nil {
		t.Fatalf("compute split: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected single aggregated share, got %d", len(shares))
	}
	if !shares[0].Gross.Equal(decFromString(t, "66.66")) {
		t.Fatalf("gross expected 66.66, got %s", shares[0].Gross)
	}
	if !feeTotal.Equal(decFromString(t, "10.00")) {
		t.Fatalf("fee expected 10.00, got %s", feeTotal)
	}
	if !shares[0].Gross.Equal(shares[0].Fee.Add(shares[0].Net)) {
		t.Fatal("gross must equal fee + net")
	}
}

func TestComputeSplitQuantityMultiplies(t *testing.T) {
	vendor := uuid.New()
	items := []models.OrderItem{
		{VendorStoreID: vendor, Price: decFromString(t, "12.50"), Quantity: 4},
	}

	shares, _, err := ComputeSplit(items, decFromString(t, "0.10"))
	if err != nil {
		t.Fatalf("compute split: %v", err)
	}
	if !shares[0].Gross.Equal(decFromString(t, "50.00")) {
		t.Fatalf("gross expected 50.00, got %s", shares[0].Gross)
	}
	if !shares[0].Fee.Equal(decFromString(t, "5.00")) {
		t.Fatalf("fee expected 5.00, got %s", shares[0].Fee)
	}
}

func TestComputeSplitZeroRate(t *testing.T) {
	vendor := uuid.New()
	items := []models.OrderItem{
		{VendorStoreID: vendor, Price: decFromString(t, "100"), Quantity: 1},
	}
	shares, feeTotal, err := ComputeSplit(items, decimal.Zero)
	if err != nil {
		t.Fatalf("compute split: %v", err)
	}
	if !feeTotal.IsZero() {
		t.Fatalf("fee expected 0, got %s", feeTotal)
	}
	if !shares[0].Net.Equal(decFromString(t, "100")) {
		t.Fatalf("net expected 100, got %s", shares[0].Net)
	}
}

func TestComputeSplitRejectsBadInput(t *testing.T) {
	vendor := uuid.New()
	if _, _, err := ComputeSplit(nil, decFromString(t, "0.15")); err == nil {
		t.Fatal("expected error for empty items")
	}
	if _, _, err := ComputeSplit([]models.OrderItem{
		{VendorStoreID: vendor, Price: decFromString(t, "10"), Quantity: 0},
	}, decFromString(t, "0.15")); err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if _, _, err := ComputeSplit([]models.OrderItem{
		{VendorStoreID: vendor, Price: decFromString(t, "10"), Quantity: 1},
	}, decFromString(t, "1.5")); err == nil {
		t.Fatal("expected error for rate above 1")
	}
}
