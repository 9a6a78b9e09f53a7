package flags

import (
	"reflect"
	"testing"

	"github.com/meridianchain/statecore/types"
)

func owner(b byte) types.Identifier {
	var id types.Identifier
	id[0] = b
	return id
}

func TestRoundTripAllShapes(t *testing.T) {
	cases := []Flag{
		SingleEpoch(5),
		MultiEpoch(5, map[types.Epoch]uint32{7: 10, 9: 20}),
		SingleEpochOwned(5, owner(1)),
		MultiEpochOwned(5, map[types.Epoch]uint32{7: 10, 9: 20}, owner(2)),
	}
	for _, f := range cases {
		got, err := Deserialize(f.Serialize())
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected a flag, got nil")
		}
		if !reflect.DeepEqual(*got, f) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", *got, f)
		}
	}
}

func TestEncodedSizeMatchesSerialize(t *testing.T) {
	cases := []Flag{
		SingleEpoch(5),
		MultiEpoch(5, map[types.Epoch]uint32{7: 10, 9: 300}),
		SingleEpochOwned(5, owner(1)),
		MultiEpochOwned(5, map[types.Epoch]uint32{7: 10, 9: 300, 11: 70000}, owner(2)),
	}
	for _, f := range cases {
		if got, want := EncodedSize(f), len(f.Serialize()); got != want {
			t.Fatalf("EncodedSize = %d, serialized length = %d for %+v", got, want, f)
		}
	}
}

func TestDeserializeEmptyIsNoFlag(t *testing.T) {
	got, err := Deserialize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil flag for empty input, got %+v", got)
	}
}

func TestDeserializeUnknownType(t *testing.T) {
	if _, err := Deserialize([]byte{9, 0, 0}); err == nil {
		t.Fatal("expected error for unknown type tag")
	}
}

func TestDeserializeWrongSize(t *testing.T) {
	if _, err := Deserialize([]byte{0, 0}); err == nil {
		t.Fatal("expected error for truncated single-epoch flag")
	}
}

func TestCombineSameBaseCommutative(t *testing.T) {
	a := MultiEpoch(5, map[types.Epoch]uint32{7: 10})
	b := MultiEpoch(5, map[types.Epoch]uint32{7: 5, 8: 3})

	ab, err := Combine(a, b, 0)
	if err != nil {
		t.Fatalf("Combine(a,b) failed: %v", err)
	}
	ba, err := Combine(b, a, 0)
	if err != nil {
		t.Fatalf("Combine(b,a) failed: %v", err)
	}
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("expected commutative combine, got %+v vs %+v", ab, ba)
	}
	if ab.EpochMap[7] != 15 || ab.EpochMap[8] != 3 {
		t.Fatalf("expected summed epoch map, got %+v", ab.EpochMap)
	}
}

func TestCombineSameBaseDifferentOwnersErrors(t *testing.T) {
	a := SingleEpochOwned(5, owner(1))
	b := SingleEpochOwned(5, owner(2))
	if _, err := Combine(a, b, 0); err == nil {
		t.Fatal("expected error merging different owners")
	}
}

func TestCombineHigherBaseCreditsAddedBytesToNewBase(t *testing.T) {
	a := SingleEpoch(5)
	b := SingleEpoch(9)
	combined, err := Combine(a, b, 42)
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if combined.BaseEpoch != 5 {
		t.Fatalf("expected base epoch to stay at the older value 5, got %d", combined.BaseEpoch)
	}
	if combined.EpochMap[9] != 42 {
		t.Fatalf("expected 42 bytes credited to epoch 9, got %+v", combined.EpochMap)
	}
}

func TestCombineOlderBaseArrivingSecondErrors(t *testing.T) {
	a := SingleEpoch(9)
	b := SingleEpoch(5)
	if _, err := Combine(a, b, 1); err == nil {
		t.Fatal("expected error when the older base arrives as the second argument")
	}
}

func TestSplitRemovedBytesBasicForSingleEpoch(t *testing.T) {
	r := SplitRemovedBytes(SingleEpoch(3), 100)
	if r.Kind != BasicRemoval || r.Basic != 100 {
		t.Fatalf("expected basic removal of 100, got %+v", r)
	}
}

func TestSplitRemovedBytesLIFOAcrossEpochs(t *testing.T) {
	f := MultiEpoch(1, map[types.Epoch]uint32{2: 10, 3: 20})
	r := SplitRemovedBytes(f, 25)
	if r.Kind != SectionedRemoval {
		t.Fatalf("expected sectioned removal, got %+v", r)
	}
	if r.Sectioned[3] != 20 {
		t.Fatalf("expected newest epoch 3 fully drained first, got %+v", r.Sectioned)
	}
	if r.Sectioned[2] != 5 {
		t.Fatalf("expected 5 bytes drained from epoch 2, got %+v", r.Sectioned)
	}
}

func TestSplitRemovedBytesFallsBackToBaseEpoch(t *testing.T) {
	f := MultiEpoch(1, map[types.Epoch]uint32{2: 10})
	r := SplitRemovedBytes(f, 15)
	if r.Sectioned[2] != 10 {
		t.Fatalf("expected epoch 2 drained fully, got %+v", r.Sectioned)
	}
	if r.Sectioned[1] != 5 {
		t.Fatalf("expected remainder of 5 attributed to base epoch 1, got %+v", r.Sectioned)
	}
}
