package wireenc

import (
	"reflect"
	"testing"
)

func TestStringListRoundTrip(t *testing.T) {
	cases := [][]string{
		nil,
		{},
		{"R1"},
		{"R2", "R1"},
	}
	for _, items := range cases {
		buf := WriteStringList(nil, items)
		got, n, err := ReadStringList(buf)
		if err != nil {
			t.Fatalf("ReadStringList(%v): %v", items, err)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d of %d bytes", n, len(buf))
		}
		if len(items) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, items) {
			t.Fatalf("got %v want %v", got, items)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	buf := WriteString(nil, "R1")
	got, n, err := ReadString(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) || got != "R1" {
		t.Fatalf("got %q/%d want R1/%d", got, n, len(buf))
	}
}

func TestIsMapAndListCode(t *testing.T) {
	if !IsMapCode(byte(typeCodeMap32)) || IsMapCode(byte(typeCodeList32)) {
		t.Fatal("IsMapCode misclassified")
	}
	if !IsListCode(byte(typeCodeList8)) || IsListCode(byte(typeCodeMap8)) {
		t.Fatal("IsListCode misclassified")
	}
}
