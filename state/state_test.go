package state

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	s := New()

	if err := s.Set("ready", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("count", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("name", "monarch"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if b, ok := s.GetBool("ready"); !ok || !b {
		t.Fatalf("GetBool(ready) = %v, %v; want true, true", b, ok)
	}
	if i, ok := s.GetInt("count"); !ok || i != 3 {
		t.Fatalf("GetInt(count) = %v, %v; want 3, true", i, ok)
	}
	if str, ok := s.GetString("name"); !ok || str != "monarch" {
		t.Fatalf("GetString(name) = %q, %v; want monarch, true", str, ok)
	}
}

func TestGetMissingNameReturnsNotOk(t *testing.T) {
	s := New()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get(missing) reported ok for unset name")
	}
}

func TestGetTypedWrongKindReturnsNotOk(t *testing.T) {
	s := New()
	if err := s.Set("count", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := s.GetBool("count"); ok {
		t.Fatal("GetBool reported ok for an int variable")
	}
	if _, ok := s.GetString("count"); ok {
		t.Fatal("GetString reported ok for an int variable")
	}
}

func TestRemove(t *testing.T) {
	s := New()
	_ = s.Set("ready", true)
	s.Remove("ready")
	if _, ok := s.Get("ready"); ok {
		t.Fatal("Get(ready) reported ok after Remove")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := New()
	_ = s.Set("count", 1)

	snap := s.Snapshot()
	_ = s.Set("count", 2)

	if snap["count"] != 1 {
		t.Fatalf("snapshot mutated after later Set: got %v, want 1", snap["count"])
	}
	if i, _ := s.GetInt("count"); i != 2 {
		t.Fatalf("live state not updated: got %v, want 2", i)
	}
}
