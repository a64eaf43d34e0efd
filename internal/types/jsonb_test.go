package types

import "testing"

func TestMetadata_Scan(t *testing.T) {
	t.Run("from bytes", func(t *testing.T) {
		var m Metadata
		if err := m.Scan([]byte(`{"order_id":"A-100","guests":2}`)); err != nil {
			t.Fatalf("Scan returned error: %v", err)
		}
		if m["order_id"] != "A-100" {
			t.Errorf("order_id = %v, want A-100", m["order_id"])
		}
		if m["guests"] != float64(2) {
			t.Errorf("guests = %v, want 2", m["guests"])
		}
	})

	t.Run("from string", func(t *testing.T) {
		var m Metadata
		if err := m.Scan(`{"vip":true}`); err != nil {
			t.Fatalf("Scan returned error: %v", err)
		}
		if m["vip"] != true {
			t.Errorf("vip = %v, want true", m["vip"])
		}
	})

	t.Run("nil leaves map nil", func(t *testing.T) {
		var m Metadata
		if err := m.Scan(nil); err != nil {
			t.Fatalf("Scan returned error: %v", err)
		}
		if m != nil {
			t.Errorf("expected nil map, got %v", m)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		var m Metadata
		if err := m.Scan(42); err == nil {
			t.Error("expected error for unsupported source type")
		}
	})
}

func TestMetadata_Value(t *testing.T) {
	t.Run("nil map is SQL NULL", func(t *testing.T) {
		var m Metadata
		v, err := m.Value()
		if err != nil {
			t.Fatalf("Value returned error: %v", err)
		}
		if v != nil {
			t.Errorf("expected nil driver value, got %v", v)
		}
	})

	t.Run("populated map marshals", func(t *testing.T) {
		m := Metadata{"order_id": "A-100"}
		v, err := m.Value()
		if err != nil {
			t.Fatalf("Value returned error: %v", err)
		}
		b, ok := v.([]byte)
		if !ok {
			t.Fatalf("expected []byte driver value, got %T", v)
		}
		if string(b) != `{"order_id":"A-100"}` {
			t.Errorf("Value = %s, want {\"order_id\":\"A-100\"}", b)
		}
	})
}
