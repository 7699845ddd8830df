package meta

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestProvenanceKeysSurviveCloneAndDelete(t *testing.T) {
	row := New(map[string]string{
		"category_hint":  "drinks",
		"payment_status": "paid",
	})
	row.Set("paid_at", "2026-08-30T18:04:00Z")

	if hint, ok := row.Get("category_hint"); !ok || hint != "drinks" {
		t.Fatalf("category hint lost: %q ok=%v", hint, ok)
	}

	// A split child starts from a clone of the parent row's metadata;
	// editing the child must not touch the parent.
	child := row.Clone()
	child.Set("voided", "true")
	if _, ok := row.Get("voided"); ok {
		t.Fatalf("void marker leaked into the parent map")
	}
	if got, _ := child.Get("paid_at"); got != "2026-08-30T18:04:00Z" {
		t.Fatalf("clone dropped paid_at: %q", got)
	}

	row.Del("payment_status")
	if _, ok := row.Get("payment_status"); ok {
		t.Fatalf("payment status survived delete")
	}
}

func TestMergeOverwritesStalePaymentStatus(t *testing.T) {
	existing := New(map[string]string{
		"category_hint":  "mains",
		"payment_status": "paid",
	})
	// A resync re-derives the payment row after a refund landed.
	existing.Merge(New(map[string]string{
		"payment_status": "refunded_partial",
		"refund_status":  "partial",
	}))

	if got, _ := existing.Get("payment_status"); got != "refunded_partial" {
		t.Fatalf("merge kept the stale status: %q", got)
	}
	if got, _ := existing.Get("category_hint"); got != "mains" {
		t.Fatalf("merge dropped an untouched key: %q", got)
	}
	if got, _ := existing.Get("refund_status"); got != "partial" {
		t.Fatalf("merge missed the new key: %q", got)
	}
}

func TestBoundsRejectOversizedPayloads(t *testing.T) {
	overfull := New(nil)
	for i := 0; i <= MaxPairs; i++ {
		overfull[fmt.Sprintf("hint_%02d", i)] = "v"
	}
	if err := overfull.Validate(); err == nil {
		t.Fatalf("expected pair-count rejection")
	}

	longKey := New(map[string]string{strings.Repeat("k", MaxKeyLen+1): "v"})
	if err := longKey.Validate(); err == nil {
		t.Fatalf("expected key-length rejection")
	}

	longVal := New(map[string]string{"category_hint": strings.Repeat("x", MaxValLen+1)})
	if err := longVal.Validate(); err == nil {
		t.Fatalf("expected value-length rejection")
	}

	// Set refuses out-of-bounds writes instead of corrupting the map.
	full := New(nil)
	for i := 0; i < MaxPairs; i++ {
		full.Set(fmt.Sprintf("hint_%02d", i), "v")
	}
	full.Set("one_too_many", "v")
	if len(full) != MaxPairs {
		t.Fatalf("set grew past the pair limit: %d", len(full))
	}
	full.Set("hint_00", "updated")
	if got, _ := full.Get("hint_00"); got != "updated" {
		t.Fatalf("overwrite of an existing key at the limit failed: %q", got)
	}
}

func TestStableJSONIsOrderIndependent(t *testing.T) {
	// The stores compare encoded metadata byte for byte, so insertion order
	// must not show through.
	a := New(map[string]string{"payment_status": "paid", "category_hint": "drinks"})
	b := New(nil)
	b.Set("category_hint", "drinks")
	b.Set("payment_status", "paid")

	ja, err := a.MarshalStableJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	jb, _ := b.MarshalStableJSON()
	if string(ja) != string(jb) {
		t.Fatalf("encodings differ: %s vs %s", ja, jb)
	}
	if string(ja) != `{"category_hint":"drinks","payment_status":"paid"}` {
		t.Fatalf("unexpected encoding: %s", ja)
	}

	var back Metadata
	if err := json.Unmarshal(ja, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, _ := back.Get("payment_status"); got != "paid" {
		t.Fatalf("roundtrip lost payment_status: %q", got)
	}

	var fromNull Metadata
	if err := json.Unmarshal([]byte("null"), &fromNull); err != nil {
		t.Fatalf("null unmarshal: %v", err)
	}
	fromNull.Set("voided", "true")
	if got, _ := fromNull.Get("voided"); got != "true" {
		t.Fatalf("null column did not decode to a usable map")
	}
}
