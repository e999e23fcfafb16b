package envutil

import (
	"reflect"
	"testing"
	"time"
)

func TestMillis(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"250", 250 * time.Millisecond},
		{"0", 0},
		{"-1", 5 * time.Second},
		{"1.5s", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("SF_TEST_MS", tt.raw)
		if got := Millis("SF_TEST_MS", 5*time.Second); got != tt.want {
			t.Errorf("Millis(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFirstAndList(t *testing.T) {
	t.Setenv("SF_A", "  ")
	t.Setenv("SF_B", "second")
	if got := First("def", "SF_A", "SF_B"); got != "second" {
		t.Fatalf("First = %q", got)
	}
	if got := First("def", "SF_A"); got != "def" {
		t.Fatalf("First fallback = %q", got)
	}

	t.Setenv("SF_LIST", "ingest, ,cluster,")
	if got := List("SF_LIST"); !reflect.DeepEqual(got, []string{"ingest", "cluster"}) {
		t.Fatalf("List = %v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("SF_FLAG", "off")
	if Bool("SF_FLAG", true) {
		t.Fatal("off should be false")
	}
	t.Setenv("SF_FLAG", "maybe")
	if !Bool("SF_FLAG", true) {
		t.Fatal("unparseable should fall back")
	}
}
