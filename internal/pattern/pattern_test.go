package pattern

import "testing"

func TestUserSubstitute(t *testing.T) {
	out, ok := UserSubstitute("u", "u.x")
	if !ok || out != "${user}.x" {
		t.Fatalf("got %q %v", out, ok)
	}
	if _, ok := UserSubstitute("", "u.x"); ok {
		t.Fatal("empty user should never substitute")
	}
	if _, ok := UserSubstitute("zzz", "u.x"); ok {
		t.Fatal("non-matching user should not substitute")
	}
}

// CSV pattern "a.*,b" matched against "a.x" returns true; against "c"
// returns false; and matching "u.x" (the pre-substitution form a
// client named "u" would send as "${user}.x") returns true iff
// "a.*,b" contains "u.x".
func TestMatchCSVRoundTrip(t *testing.T) {
	const allowed = "a.*,b"
	if !MatchCSV("u", allowed, "a.x") {
		t.Fatal("expected a.x to match a.*")
	}
	if MatchCSV("u", allowed, "c") {
		t.Fatal("expected c not to match")
	}
	if got, want := MatchCSV("u", allowed, "u.x"), matchToken("a.*", "u.x"); got != want {
		t.Fatalf("direct match of u.x = %v, want %v (matches a.* directly)", got, want)
	}
}

func TestMatchCSVWildcardAndExact(t *testing.T) {
	if !MatchCSV("", "*", "anything") {
		t.Fatal("lone * should match anything")
	}
	if !MatchCSV("", "foo,bar", "bar") {
		t.Fatal("exact token should match")
	}
	if MatchCSV("", "foo,bar", "baz") {
		t.Fatal("no token should match baz")
	}
}

func TestMatchCSVUserSubstitution(t *testing.T) {
	// Policy allows "${user}.orders"; the connecting user is "alice" and
	// proposes "alice.orders" — substitution must let this through.
	if !MatchCSV("alice", "${user}.orders", "alice.orders") {
		t.Fatal("expected substituted match to succeed")
	}
	if MatchCSV("alice", "${user}.orders", "bob.orders") {
		t.Fatal("bob should not match alice's substituted pattern")
	}
}

func TestTreeExactAndWildcard(t *testing.T) {
	tree := NewTree([]string{"a.b.c", "x.*.z", "logs.#"})
	if !tree.Match("", "a.b.c") {
		t.Fatal("expected exact match")
	}
	if !tree.Match("", "x.anything.z") {
		t.Fatal("expected single-segment wildcard match")
	}
	if tree.Match("", "x.a.b.z") {
		t.Fatal("* should not span multiple segments")
	}
	if !tree.Match("", "logs") {
		t.Fatal("# should match zero trailing segments")
	}
	if !tree.Match("", "logs.app.debug") {
		t.Fatal("# should match multiple trailing segments")
	}
}

func TestTreeUserSubstitution(t *testing.T) {
	tree := NewTree([]string{"${user}.private"})
	if !tree.Match("alice", "alice.private") {
		t.Fatal("expected substituted tree match")
	}
	if tree.Match("alice", "bob.private") {
		t.Fatal("bob should not match alice's tree pattern")
	}
}

func TestMatchCSVEmptyInputsNeverMatch(t *testing.T) {
	if MatchCSV("u", "", "a") {
		t.Fatal("empty allow-list should never match")
	}
	if MatchCSV("u", "a,b", "") {
		t.Fatal("empty proposed name should never match")
	}
}
