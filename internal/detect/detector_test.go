package detect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopmon/shopmon/internal/catalog"
)

func product(id int64, available bool, price string) catalog.Product {
	return catalog.Product{
		ID:     id,
		Handle: "p",
		Title:  "Product",
		Variants: []catalog.Variant{
			{ID: id * 10, Price: price, Available: available},
		},
	}
}

func TestEvaluateNewProduct(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{}

	ev := d.Evaluate(snapshot, "https://shop.example.com/", product(1, true, "30.00"))
	require.NotNil(t, ev)
	require.Equal(t, ChangeNew, ev.Type)
	require.Equal(t, int64(1), ev.ProductID)
	require.NotEmpty(t, ev.ID)

	// Snapshot must reflect the observation afterwards.
	require.True(t, snapshot[1].Available)
	require.InDelta(t, 30.00, snapshot[1].Price, 0.001)
}

func TestEvaluateBecameAvailable(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		1: {Available: false, Price: 30.00, HasPrice: true},
	}

	ev := d.Evaluate(snapshot, "site", product(1, true, "30.00"))
	require.NotNil(t, ev)
	require.Equal(t, ChangeBecameAvailable, ev.Type)
	require.Nil(t, ev.Drop, "price drop rule must not be evaluated on a transition")
}

func TestEvaluateBecameUnavailable(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		1: {Available: true, Price: 30.00, HasPrice: true},
	}

	ev := d.Evaluate(snapshot, "site", product(1, false, "30.00"))
	require.NotNil(t, ev)
	require.Equal(t, ChangeBecameUnavailable, ev.Type)
	require.False(t, snapshot[1].Available)
}

func TestEvaluatePriceDrop(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		2: {Available: true, Price: 50.00, HasPrice: true},
	}

	ev := d.Evaluate(snapshot, "site", product(2, true, "40.00"))
	require.NotNil(t, ev)
	require.Equal(t, ChangePriceDrop, ev.Type)
	require.NotNil(t, ev.Drop)
	require.InDelta(t, 10.00, ev.Drop.Amount, 0.001)
	require.InDelta(t, 20.0, ev.Drop.Percent, 0.001)
}

func TestEvaluatePriceDropBelowThreshold(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		2: {Available: true, Price: 50.00, HasPrice: true},
	}

	ev := d.Evaluate(snapshot, "site", product(2, true, "47.50"))
	require.Nil(t, ev, "a 5% drop is below the 10% threshold")
	require.InDelta(t, 47.50, snapshot[2].Price, 0.001, "snapshot still updated")
}

func TestEvaluatePriceIncreaseNoEvent(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		2: {Available: true, Price: 50.00, HasPrice: true},
	}

	require.Nil(t, d.Evaluate(snapshot, "site", product(2, true, "60.00")))
}

func TestEvaluateUnavailableProductsNeverPriceDrop(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		2: {Available: false, Price: 50.00, HasPrice: true},
	}

	require.Nil(t, d.Evaluate(snapshot, "site", product(2, false, "10.00")))
}

func TestEvaluateMissingPriceNeverPriceDrop(t *testing.T) {
	t.Parallel()

	d := New(0.10)
	snapshot := map[int64]catalog.Snapshot{
		2: {Available: true, Price: 50.00, HasPrice: true},
	}
	noPrice := catalog.Product{
		ID:       2,
		Variants: []catalog.Variant{{Price: "call for price", Available: true}},
	}

	require.Nil(t, d.Evaluate(snapshot, "site", noPrice))
	require.False(t, snapshot[2].HasPrice)
}

// TestTransitionTable exercises every (prior, current) availability pair.
func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		prior     *catalog.Snapshot
		available bool
		price     string
		want      ChangeType
		wantNone  bool
	}{
		{name: "none_to_available", prior: nil, available: true, price: "10.00", want: ChangeNew},
		{name: "none_to_unavailable", prior: nil, available: false, price: "10.00", want: ChangeNew},
		{name: "false_to_true", prior: &catalog.Snapshot{Available: false, Price: 10, HasPrice: true}, available: true, price: "10.00", want: ChangeBecameAvailable},
		{name: "true_to_false", prior: &catalog.Snapshot{Available: true, Price: 10, HasPrice: true}, available: false, price: "10.00", want: ChangeBecameUnavailable},
		{name: "false_to_false", prior: &catalog.Snapshot{Available: false, Price: 10, HasPrice: true}, available: false, price: "5.00", wantNone: true},
		{name: "true_to_true_flat", prior: &catalog.Snapshot{Available: true, Price: 10, HasPrice: true}, available: true, price: "10.00", wantNone: true},
		{name: "true_to_true_drop", prior: &catalog.Snapshot{Available: true, Price: 10, HasPrice: true}, available: true, price: "8.00", want: ChangePriceDrop},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := New(0.10)
			snapshot := map[int64]catalog.Snapshot{}
			if tc.prior != nil {
				snapshot[1] = *tc.prior
			}
			ev := d.Evaluate(snapshot, "site", product(1, tc.available, tc.price))
			if tc.wantNone {
				require.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			require.Equal(t, tc.want, ev.Type)
		})
	}
}
