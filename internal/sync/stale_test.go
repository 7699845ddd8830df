package sync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmaung/salesync/internal/ledger"
)

func entryWithKey(itemID string) ledger.Entry {
	return ledger.Entry{
		ID: uuid.New(),
		Key: ledger.Key{
			RestaurantID:    uuid.Nil,
			POSSystem:       "toast",
			ExternalOrderID: "ord-1",
			ExternalItemID:  itemID,
		},
	}
}

func TestRetractionsSaleSupersededByVoid(t *testing.T) {
	// Run one wrote a sale and a discount; the item has since been voided,
	// so run two generates only the void offset.
	existing := []ledger.Entry{
		entryWithKey("it-1"),
		entryWithKey("it-1" + ledger.SuffixDiscount),
	}
	desired := []ledger.Entry{
		entryWithKey("it-1" + ledger.SuffixVoid),
	}

	stale := Retractions(existing, desired)
	require.Len(t, stale, 2)
	ids := []string{stale[0].ExternalItemID, stale[1].ExternalItemID}
	assert.Contains(t, ids, "it-1")
	assert.Contains(t, ids, "it-1"+ledger.SuffixDiscount)
}

func TestRetractionsZeroedAdjustments(t *testing.T) {
	// Tax and tip rows no longer justified by the source disappear.
	existing := []ledger.Entry{
		entryWithKey("it-1"),
		entryWithKey("ord-1" + ledger.SuffixTax),
		entryWithKey("pay-1" + ledger.SuffixTip),
	}
	desired := []ledger.Entry{
		entryWithKey("it-1"),
	}

	stale := Retractions(existing, desired)
	require.Len(t, stale, 2)
	for _, k := range stale {
		assert.NotEqual(t, "it-1", k.ExternalItemID)
	}
}

func TestRetractionsEmptyWhenSourceUnchanged(t *testing.T) {
	existing := []ledger.Entry{entryWithKey("it-1"), entryWithKey("it-2")}
	desired := []ledger.Entry{entryWithKey("it-2"), entryWithKey("it-1")}

	assert.Empty(t, Retractions(existing, desired))
}

func TestRetractionsNeverTouchSplitChildren(t *testing.T) {
	parent := uuid.New()
	child := entryWithKey("it-1" + ledger.SuffixSplit + "_1")
	child.ParentSaleID = &parent

	stale := Retractions([]ledger.Entry{child}, nil)
	assert.Empty(t, stale, "split children are invisible to reconciliation")
}
