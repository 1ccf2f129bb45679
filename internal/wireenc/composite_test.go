package wireenc

import "testing"

func TestDescribedListRoundTrip(t *testing.T) {
	body := WriteDescribedList(DescriptorOpen, [][]byte{
		WriteString(nil, "router-1"),
		WriteString(nil, "vhost-a"),
	})
	desc, fields, n, err := DecodeDescribed(body)
	if err != nil {
		t.Fatalf("DecodeDescribed: %v", err)
	}
	if desc != DescriptorOpen {
		t.Fatalf("expected descriptor %x, got %x", DescriptorOpen, desc)
	}
	if n != len(body) {
		t.Fatalf("consumed %d of %d bytes", n, len(body))
	}
	if len(fields) != 2 || fields[0] != "router-1" || fields[1] != "vhost-a" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestDescribedListWithNestedDescribedField(t *testing.T) {
	inner := WriteDescribedList(0x1d, [][]byte{
		WriteSymbol(nil, Symbol("amqp:not-found")),
		WriteString(nil, "no such address"),
	})
	outer := WriteDescribedList(DescriptorClose, [][]byte{inner})

	desc, fields, n, err := DecodeDescribed(outer)
	if err != nil {
		t.Fatalf("DecodeDescribed: %v", err)
	}
	if desc != DescriptorClose {
		t.Fatalf("expected descriptor %x, got %x", DescriptorClose, desc)
	}
	if n != len(outer) {
		t.Fatalf("consumed %d of %d bytes", n, len(outer))
	}
	if len(fields) != 1 {
		t.Fatalf("expected one nested field, got %v", fields)
	}
	nested, ok := fields[0].([]interface{})
	if !ok {
		t.Fatalf("expected the nested error composite to decode as its field list, got %T", fields[0])
	}
	if len(nested) != 2 || nested[0] != "amqp:not-found" || nested[1] != "no such address" {
		t.Fatalf("unexpected nested fields: %v", nested)
	}
}

func TestDecodeDescribedRejectsNonDescribedInput(t *testing.T) {
	if _, _, _, err := DecodeDescribed([]byte{0x45}); err == nil {
		t.Fatal("expected an error for a value that isn't a described constructor")
	}
}
