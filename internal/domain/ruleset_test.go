package domain

import "testing"

func TestDerive_SuffixShadowing(t *testing.T) {
	rs, err := Derive([]string{"github.com", "api.github.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoBoth]) != 1 || rs.Plain[ProtoBoth][0].Host != "github.com" {
		t.Errorf("api.github.com should be shadowed by github.com, got %+v", rs.Plain[ProtoBoth])
	}
}

func TestDerive_WildcardShadowing(t *testing.T) {
	rs, err := Derive([]string{"*.example.com", "foo.example.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoBoth]) != 0 {
		t.Errorf("foo.example.com should be shadowed by *.example.com, got %+v", rs.Plain[ProtoBoth])
	}
	if len(rs.Wildcard[ProtoBoth]) != 1 {
		t.Errorf("wildcard should survive, got %+v", rs.Wildcard[ProtoBoth])
	}
}

func TestDerive_ProtocolRestrictedWildcardDoesNotShadowOtherProtocol(t *testing.T) {
	rs, err := Derive([]string{"https://*.example.com", "http://foo.example.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoHTTP]) != 1 {
		t.Errorf("http://foo.example.com should survive an https-only wildcard, got %+v", rs.Plain)
	}
}

func TestDerive_BroaderProtocolShadowsNarrower(t *testing.T) {
	rs, err := Derive([]string{"github.com", "https://api.github.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoHTTPS]) != 0 {
		t.Errorf("both-protocol github.com should shadow https-only api.github.com, got %+v", rs.Plain)
	}
}

func TestDerive_NarrowerProtocolDoesNotShadowBroader(t *testing.T) {
	rs, err := Derive([]string{"https://github.com", "api.github.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoBoth]) != 1 {
		t.Errorf("both-protocol api.github.com should not be shadowed by an https-only parent, got %+v", rs.Plain)
	}
}

func TestDerive_EmptyAllowlistRejected(t *testing.T) {
	if _, err := Derive(nil, nil); err == nil {
		t.Error("Derive() with empty allowlist should fail")
	}
}

func TestDerive_BlocklistKeptSeparate(t *testing.T) {
	rs, err := Derive([]string{"github.com"}, []string{"evil.github.com"})
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Block) != 1 {
		t.Fatalf("Block should have 1 entry, got %d", len(rs.Block))
	}
	if len(rs.Plain[ProtoBoth]) != 1 {
		t.Errorf("allow-side dedup should not consult the blocklist, got %+v", rs.Plain)
	}
}

func TestDerive_RoundTrip(t *testing.T) {
	rs, err := Derive([]string{"github.com", "api.github.com", "*.example.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	again, err := Derive([]string{"github.com", "*.example.com"}, nil)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if len(rs.Plain[ProtoBoth]) != len(again.Plain[ProtoBoth]) || len(rs.Wildcard[ProtoBoth]) != len(again.Wildcard[ProtoBoth]) {
		t.Errorf("re-deriving from the minimal set should yield an equivalent ruleset: %+v vs %+v", rs, again)
	}
}
