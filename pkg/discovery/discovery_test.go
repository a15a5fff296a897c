package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
)

func TestTXTRoundTrip(t *testing.T) {
	info := &ServerInfo{Name: "robot", Version: "1.2.0", Protocol: "4.1", Port: 5810}

	strs := TXTRecordsToStrings(EncodeTXT(info))
	want := []string{"name=robot", "proto=4.1", "version=1.2.0"}
	if strings.Join(strs, ",") != strings.Join(want, ",") {
		t.Errorf("TXT strings = %v, want %v", strs, want)
	}

	got, err := DecodeTXT(StringsToTXTRecords(strs))
	if err != nil {
		t.Fatalf("DecodeTXT failed: %v", err)
	}
	if got.Name != info.Name || got.Version != info.Version || got.Protocol != info.Protocol {
		t.Errorf("decoded %+v, want %+v", got, info)
	}
}

func TestDecodeTXTRequiresName(t *testing.T) {
	_, err := DecodeTXT(StringsToTXTRecords([]string{"version=1", "flag"}))
	if !errors.Is(err, ErrMissingRecord) {
		t.Errorf("DecodeTXT error = %v, want ErrMissingRecord", err)
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "b=x=y", "flag", ""})
	if txt["a"] != "1" || txt["b"] != "x=y" {
		t.Errorf("values = %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}
}

func TestInstanceName(t *testing.T) {
	if _, err := InstanceName(""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}
	long := strings.Repeat("n", 80)
	got, err := InstanceName(long)
	if err != nil || len(got) != MaxInstanceNameLen {
		t.Errorf("InstanceName(long) = %d bytes, %v", len(got), err)
	}
}

func TestServerInfoValidate(t *testing.T) {
	tests := []struct {
		name string
		info ServerInfo
		want error
	}{
		{"valid", ServerInfo{Name: "sim", Port: 5810}, nil},
		{"no name", ServerInfo{Port: 5810}, ErrEmptyName},
		{"no port", ServerInfo{Name: "sim"}, ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.info.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServiceAddress(t *testing.T) {
	tests := []struct {
		name    string
		svc     Service
		want    string
		wantErr bool
	}{
		{"prefers ipv4", Service{Port: 5810, Addresses: []string{"fe80::1", "10.0.0.2"}}, "10.0.0.2:5810", false},
		{"falls back to ipv6", Service{Port: 5810, Addresses: []string{"fe80::1"}}, "[fe80::1]:5810", false},
		{"falls back to host", Service{Port: 1735, Host: "robot.local."}, "robot.local.:1735", false},
		{"nothing", Service{Port: 5810}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.svc.Address()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Address() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func entry(instance string, text []string, ips ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, Domain)
	e.HostName = instance + ".local."
	e.Port = DefaultPort
	e.Text = text
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestAggregator(t *testing.T) {
	agg := newAggregator()
	txt := []string{"name=robot"}

	svc, isNew := agg.add(entry("robot", txt, "10.0.0.2"))
	if !isNew || svc.Name != "robot" || svc.Port != DefaultPort {
		t.Fatalf("first add = %+v, new=%v", svc, isNew)
	}

	// Same instance on another interface merges addresses.
	_, isNew = agg.add(entry("robot", txt, "10.0.0.2", "fe80::2"))
	if isNew {
		t.Error("second add reported a new service")
	}
	if len(svc.Addresses) != 2 {
		t.Errorf("addresses = %v, want 2", svc.Addresses)
	}

	// Entries without a name record are ignored.
	if _, isNew := agg.add(entry("other", nil, "10.0.0.3")); isNew {
		t.Error("entry without TXT accepted")
	}

	agg.remove(entry("robot", txt, "10.0.0.2"))
	if _, ok := agg.services["robot"]; !ok {
		t.Fatal("service removed while an address remains")
	}
	agg.remove(entry("robot", txt, "fe80::2"))
	if _, ok := agg.services["robot"]; ok {
		t.Error("service kept after every address was removed")
	}
	agg.remove(entry("unknown", txt, "10.0.0.9"))
}

type fakeBrowser struct {
	services []*Service
}

func (f *fakeBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)
	go func() {
		defer close(out)
		for _, s := range f.services {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

func TestLookup(t *testing.T) {
	b := &fakeBrowser{services: []*Service{
		{InstanceName: "zeta", Port: 5810},
		{InstanceName: "alpha", Port: 5810},
	}}

	found, err := Lookup(context.Background(), b, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(found) != 2 || found[0].InstanceName != "alpha" || found[1].InstanceName != "zeta" {
		t.Errorf("found = %+v", found)
	}
}

func TestLookupCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Lookup(ctx, &fakeBrowser{}, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Lookup error = %v, want context.Canceled", err)
	}
}
