package kb

import "testing"

func TestWhitelistStripsMarker(t *testing.T) {
	w := NewWhitelist([]string{"P31", "P131"})
	if !w.Allows("P31v") {
		t.Fatalf("P31v should pass via stripped P31")
	}
	if w.Allows("P31") {
		t.Fatalf("unsuffixed id strips to P3, should not pass")
	}
	if w.Allows("P9999v") {
		t.Fatalf("P9999v is not whitelisted")
	}
	if w.Allows("") || w.Allows("P") {
		t.Fatalf("degenerate ids should never pass")
	}
}

func TestWhitelistAllowsAll(t *testing.T) {
	w := NewWhitelist([]string{"P31", "P131"})
	if !w.AllowsAll([]string{"P31v", "P131v"}) {
		t.Fatalf("expected all to pass")
	}
	if w.AllowsAll([]string{"P31v", "P9999v"}) {
		t.Fatalf("expected failure on non-member")
	}
}

func TestDefaultWhitelistContainsCoreRelations(t *testing.T) {
	w := DefaultWhitelist()
	for _, id := range []string{"P31v", "P131v", "P166v", "P571v", "P179v"} {
		if !w.Allows(id) {
			t.Fatalf("default whitelist should allow %s", id)
		}
	}
}
