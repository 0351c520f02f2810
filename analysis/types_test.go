package analysis

import (
	"reflect"
	"testing"
)

func TestNormalizeCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "tech", want: "tech"},
		{in: " Tech ", want: "tech"},
		{in: "sports", want: CategoryOther},
		{in: "", want: CategoryOther},
	}
	for _, tc := range cases {
		if got := NormalizeCategory(tc.in, DefaultCategories); got != tc.want {
			t.Fatalf("NormalizeCategory(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want float64 }{
		{in: 0.5, want: 0.5},
		{in: -0.2, want: 0},
		{in: 7, want: 1},
	}
	for _, tc := range cases {
		if got := ClampConfidence(tc.in); got != tc.want {
			t.Fatalf("ClampConfidence(%v)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParticipants(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{Sender: "Bo"},
		{Sender: "ana"},
		{Sender: "bo"},
		{Sender: ""},
	}
	got := Participants(msgs)
	want := []string{"ana", "Bo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestClusterIsNoise(t *testing.T) {
	t.Parallel()

	if !(Cluster{ID: NoiseClusterID}).IsNoise() {
		t.Fatalf("noise cluster not detected")
	}
	if (Cluster{ID: 0}).IsNoise() {
		t.Fatalf("cluster 0 misread as noise")
	}
}
