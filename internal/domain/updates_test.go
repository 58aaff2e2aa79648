package domain

import (
	"net/netip"
	"testing"
)

func TestNewDynamicDNSUpdateFromTrigger(t *testing.T) {
	v4 := NewDynamicDNSUpdateFromTrigger("insert", "maas", "host1.maas", "A", "10.0.0.5")
	if v4.RRType != "A" || v4.Operation != OperationInsert {
		t.Fatalf("unexpected update: %+v", v4)
	}

	v6 := NewDynamicDNSUpdateFromTrigger("INSERT", "maas", "host1.maas", "A", "2001:db8::5")
	if v6.RRType != "AAAA" {
		t.Fatalf("expected AAAA for an IPv6 answer, got %s", v6.RRType)
	}
}

func TestAnswerAsIP(t *testing.T) {
	u := DynamicDNSUpdate{RRType: "CNAME", Answer: "host1.maas"}
	if u.AnswerIsIP() {
		t.Fatal("expected a name answer not to be an ip")
	}

	u = DynamicDNSUpdate{RRType: "A", Answer: "10.0.0.5"}
	ip, ok := u.AnswerAsIP()
	if !ok || ip != netip.MustParseAddr("10.0.0.5") {
		t.Fatalf("unexpected answer ip: %v %v", ip, ok)
	}
	if !u.AnswerIn(netip.MustParsePrefix("10.0.0.0/24")) {
		t.Fatal("expected answer inside 10.0.0.0/24")
	}
	if u.AnswerIn(netip.MustParsePrefix("10.0.1.0/24")) {
		t.Fatal("expected answer outside 10.0.1.0/24")
	}
}

func TestAsReverseRecordUpdate(t *testing.T) {
	ttl := uint32(60)
	fwd := DynamicDNSUpdate{
		Operation: OperationInsert,
		Zone:      "maas",
		Name:      "host1.maas",
		RRType:    "A",
		TTL:       &ttl,
		Answer:    "10.0.0.5",
	}
	network := netip.MustParsePrefix("10.0.0.0/24")

	rev := fwd.AsReverseRecordUpdate(network)
	if rev.Name != "5.0.0.10.in-addr.arpa." {
		t.Fatalf("unexpected name: %s", rev.Name)
	}
	if rev.Zone != "0.0.10.in-addr.arpa." {
		t.Fatalf("unexpected zone: %s", rev.Zone)
	}
	if rev.RRType != "PTR" || rev.Answer != "host1.maas" || rev.Operation != OperationInsert {
		t.Fatalf("unexpected update: %+v", rev)
	}
	if rev.TTL == nil || *rev.TTL != 60 || rev.Subnet != network {
		t.Fatalf("expected ttl and subnet to be carried, got %+v", rev)
	}
}

func TestAsReverseRecordUpdateForGlueZone(t *testing.T) {
	cases := []struct {
		network, answer, name, zone string
	}{
		{"10.1.1.0/25", "10.1.1.5", "5.0-25.1.1.10.in-addr.arpa.", "0-25.1.1.10.in-addr.arpa."},
		{"10.1.1.128/25", "10.1.1.161", "161.128-25.1.1.10.in-addr.arpa.", "128-25.1.1.10.in-addr.arpa."},
		{
			"fc55:4c7c:a5ea:57b0:7cad:a076:a844:8000/126",
			"fc55:4c7c:a5ea:57b0:7cad:a076:a844:8001",
			"1.8000-126.0.0.8.4.4.8.a.6.7.0.a.d.a.c.7.0.b.7.5.a.e.5.a.c.7.c.4.5.5.c.f.ip6.arpa.",
			"8000-126.0.0.8.4.4.8.a.6.7.0.a.d.a.c.7.0.b.7.5.a.e.5.a.c.7.c.4.5.5.c.f.ip6.arpa.",
		},
	}
	for _, c := range cases {
		fwd := NewDynamicDNSUpdateFromTrigger(OperationInsert, "maas", "host1.maas", "A", c.answer)
		rev := fwd.AsReverseRecordUpdate(netip.MustParsePrefix(c.network))
		if rev.Name != c.name {
			t.Fatalf("%s: expected name %q, got %q", c.network, c.name, rev.Name)
		}
		if rev.Zone != c.zone {
			t.Fatalf("%s: expected zone %q, got %q", c.network, c.zone, rev.Zone)
		}
	}
}

func TestUpdatesForZone(t *testing.T) {
	updates := []DynamicDNSUpdate{
		{Zone: "maas", Name: "a.maas"},
		{Zone: "other", Name: "b.other"},
		{Zone: "maas", Name: "c.maas"},
	}
	got := UpdatesForZone(updates, "maas")
	if len(got) != 2 || got[0].Name != "a.maas" || got[1].Name != "c.maas" {
		t.Fatalf("unexpected updates: %+v", got)
	}
}
