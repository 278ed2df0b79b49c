package services

import (
	"reflect"
	"testing"
)

func TestSelectionRoundTrip(t *testing.T) {
	cases := [][]string{
		{"Go"},
		{"Go", "SQL"},
		{"a,b", "c,,,d"},
		{"quote \"x\"", "ünï"},
	}
	for _, sel := range cases {
		got, err := DecodeSelection(EncodeSelection(sel))
		if err != nil {
			t.Fatalf("decode %v: %v", sel, err)
		}
		if !reflect.DeepEqual(got, sel) {
			t.Fatalf("round trip %v gave %v", sel, got)
		}
	}
}

func TestEncodeSelectionDedupesAndKeepsOrder(t *testing.T) {
	if got := EncodeSelection([]string{"b", "a", "b"}); got != `["b","a"]` {
		t.Fatalf("unexpected encoding %s", got)
	}
	if got := EncodeSelection(nil); got != "" {
		t.Fatalf("empty selection should encode to empty string, got %q", got)
	}
}

func TestDecodeSelectionEmptyAndLegacy(t *testing.T) {
	got, err := DecodeSelection("")
	if err != nil || len(got) != 0 || got == nil {
		t.Fatalf("empty value should decode to empty slice, got %#v %v", got, err)
	}
	got, err = DecodeSelection("A,,,B")
	if err != nil || !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("legacy decode gave %v %v", got, err)
	}
	if _, err := DecodeSelection("[1,2]"); !IsCode(err, ErrorInvalid) {
		t.Fatalf("non-string array should fail, got %v", err)
	}
}
