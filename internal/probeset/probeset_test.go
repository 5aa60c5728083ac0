package probeset_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"nica/internal/probeset"
)

func TestLookupKnownLayouts(t *testing.T) {
	cases := map[string]probeset.Layout{
		"12":              {Name: "12", Channels: 12, Sources: 5, Detectors: 4, Value: 1},
		"Laboratory new":  {Name: "Laboratory new", Channels: 24, Sources: 5, Detectors: 4, Value: 6},
		"NIRx Sports new": {Name: "NIRx Sports new", Channels: 61, Sources: 16, Detectors: 22, Value: 8},
	}
	for name, want := range cases {
		got, ok := probeset.Lookup(name)
		if !ok {
			t.Fatalf("expected %q to be known", name)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("layout %q mismatch (-want +got):\n%s", name, diff)
		}
	}
	if _, ok := probeset.Lookup("13"); ok {
		t.Fatal("expected unknown probe set")
	}
	if len(probeset.Names()) != 8 {
		t.Fatalf("expected 8 layouts, got %v", probeset.Names())
	}
}

func TestFilterChannelsDropsOutOfRange(t *testing.T) {
	layout, _ := probeset.Lookup("12")
	got := layout.FilterChannels([]int{13, 3, 0, 12, 3})
	if diff := cmp.Diff([]int{3, 12}, got); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}
}

func TestTruncateRowsAndGrid(t *testing.T) {
	layout := probeset.Layout{Channels: 2, Sources: 2, Detectors: 1}
	rows := [][]float64{{1}, {2}, {3}}
	if got := layout.TruncateRows(rows); len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	grid := [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	if diff := cmp.Diff([][]int{{1}, {4}}, layout.TruncateGrid(grid)); diff != "" {
		t.Fatalf("unexpected grid (-want +got):\n%s", diff)
	}
	if layout.TruncateGrid(nil) != nil {
		t.Fatal("expected nil grid to stay nil")
	}
}
