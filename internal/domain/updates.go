package domain

import (
	"net/netip"
	"strings"

	"github.com/Flarenzy/dns-zonegen/internal/arpa"
)

const (
	OperationInsert = "INSERT"
	OperationDelete = "DELETE"
	OperationUpdate = "UPDATE"
)

// DynamicDNSUpdate is a pending incremental change to one record.
type DynamicDNSUpdate struct {
	Operation string
	Zone      string
	Name      string
	RRType    string
	TTL       *uint32
	// Subnet is set on reverse updates to the network whose zone owns them.
	Subnet netip.Prefix
	Answer string
}

// NewDynamicDNSUpdateFromTrigger builds an update from a change notification.
// An A request whose answer is an IPv6 address becomes AAAA.
func NewDynamicDNSUpdateFromTrigger(operation, zone, name, rrtype, answer string) DynamicDNSUpdate {
	u := DynamicDNSUpdate{
		Operation: strings.ToUpper(operation),
		Zone:      zone,
		Name:      name,
		RRType:    strings.ToUpper(rrtype),
		Answer:    answer,
	}
	if ip, ok := u.AnswerAsIP(); ok && u.RRType == "A" && ip.Is6() {
		u.RRType = "AAAA"
	}
	return u
}

// AnswerAsIP returns the answer parsed as an address.
func (u DynamicDNSUpdate) AnswerAsIP() (netip.Addr, bool) {
	if u.Answer == "" {
		return netip.Addr{}, false
	}
	ip, err := netip.ParseAddr(u.Answer)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func (u DynamicDNSUpdate) AnswerIsIP() bool {
	_, ok := u.AnswerAsIP()
	return ok
}

// AnswerIn reports whether the answer is an address inside network.
func (u DynamicDNSUpdate) AnswerIn(network netip.Prefix) bool {
	ip, ok := u.AnswerAsIP()
	return ok && network.Contains(ip)
}

// AsReverseRecordUpdate converts an address update into the PTR update for
// the reverse zone of network. The caller must ensure the answer is an
// address inside network.
func (u DynamicDNSUpdate) AsReverseRecordUpdate(network netip.Prefix) DynamicDNSUpdate {
	ip, _ := u.AnswerAsIP()
	return DynamicDNSUpdate{
		Operation: u.Operation,
		Zone:      arpa.ZoneName(network),
		Name:      arpa.ReverseNameIn(ip, network),
		RRType:    "PTR",
		TTL:       u.TTL,
		Subnet:    network,
		Answer:    u.Name,
	}
}

// UpdatesForZone returns the updates whose declared zone is zone.
func UpdatesForZone(updates []DynamicDNSUpdate, zone string) []DynamicDNSUpdate {
	var out []DynamicDNSUpdate
	for _, u := range updates {
		if u.Zone == zone {
			out = append(out, u)
		}
	}
	return out
}
