package rfc2136

import (
	"testing"

	"github.com/miekg/dns"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/types"
)

func testSettings() provider.Settings {
	return provider.Settings{
		ID:   "bind-test",
		Name: "bind-test",
		Zone: "example.com",
		Credentials: map[string]string{
			"host":        "127.0.0.1:53",
			"tsig_name":   "update-key",
			"tsig_secret": "c2VjcmV0",
		},
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*provider.Settings)
		wantErr bool
	}{
		{"complete", func(*provider.Settings) {}, false},
		{"missing zone", func(s *provider.Settings) { s.Zone = "" }, true},
		{"missing host", func(s *provider.Settings) { delete(s.Credentials, "host") }, true},
		{"missing tsig name", func(s *provider.Settings) { delete(s.Credentials, "tsig_name") }, true},
		{"missing tsig secret", func(s *provider.Settings) { delete(s.Credentials, "tsig_secret") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mutate(&s)
			_, err := New(s)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TSIGDefaults(t *testing.T) {
	p, err := New(testSettings())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.tsigAlg != "hmac-sha256." {
		t.Errorf("tsigAlg = %q, want hmac-sha256.", p.tsigAlg)
	}
	if p.tsigName != "update-key." {
		t.Errorf("tsigName = %q, want fully qualified", p.tsigName)
	}

	s := testSettings()
	s.Credentials["tsig_algorithm"] = "hmac-sha512"
	p, err = New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.tsigAlg != "hmac-sha512." {
		t.Errorf("tsigAlg = %q, want trailing dot appended", p.tsigAlg)
	}
}

func TestToRR(t *testing.T) {
	p, err := New(testSettings())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	prio, weight, port, flags := 10, 5, 5060, 0
	tests := []struct {
		name  string
		spec  types.DesiredRecordSpec
		check func(t *testing.T, rr dns.RR)
	}{
		{
			name: "A",
			spec: types.DesiredRecordSpec{Type: types.RecordTypeA, Name: "www.example.com", Content: "1.2.3.4", TTL: 300},
			check: func(t *testing.T, rr dns.RR) {
				a, ok := rr.(*dns.A)
				if !ok || a.A.String() != "1.2.3.4" {
					t.Errorf("rr = %v", rr)
				}
				if a.Hdr.Ttl != 300 || a.Hdr.Name != "www.example.com." {
					t.Errorf("header = %+v", a.Hdr)
				}
			},
		},
		{
			name: "MX carries preference",
			spec: types.DesiredRecordSpec{Type: types.RecordTypeMX, Name: "example.com", Content: "mail.example.com", TTL: 300, Priority: &prio},
			check: func(t *testing.T, rr dns.RR) {
				mx, ok := rr.(*dns.MX)
				if !ok || mx.Preference != 10 || mx.Mx != "mail.example.com." {
					t.Errorf("rr = %v", rr)
				}
			},
		},
		{
			name: "SRV carries all fields",
			spec: types.DesiredRecordSpec{Type: types.RecordTypeSRV, Name: "_sip._tcp.example.com", Content: "sip.example.com", TTL: 300, Priority: &prio, Weight: &weight, Port: &port},
			check: func(t *testing.T, rr dns.RR) {
				srv, ok := rr.(*dns.SRV)
				if !ok || srv.Priority != 10 || srv.Weight != 5 || srv.Port != 5060 || srv.Target != "sip.example.com." {
					t.Errorf("rr = %v", rr)
				}
			},
		},
		{
			name: "CAA",
			spec: types.DesiredRecordSpec{Type: types.RecordTypeCAA, Name: "example.com", Content: "letsencrypt.org", TTL: 300, Flags: &flags, Tag: "issue"},
			check: func(t *testing.T, rr dns.RR) {
				caa, ok := rr.(*dns.CAA)
				if !ok || caa.Tag != "issue" || caa.Value != "letsencrypt.org" {
					t.Errorf("rr = %v", rr)
				}
			},
		},
		{
			name: "TXT with spaces",
			spec: types.DesiredRecordSpec{Type: types.RecordTypeTXT, Name: "example.com", Content: "v=spf1 -all", TTL: 300},
			check: func(t *testing.T, rr dns.RR) {
				txt, ok := rr.(*dns.TXT)
				if !ok || len(txt.Txt) != 1 || txt.Txt[0] != "v=spf1 -all" {
					t.Errorf("rr = %v", rr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := p.toRR(tt.spec)
			if err != nil {
				t.Fatalf("toRR() error = %v", err)
			}
			tt.check(t, rr)
		})
	}
}

func TestFromRR_RoundTrip(t *testing.T) {
	p, err := New(testSettings())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	prio, weight, port := 10, 5, 5060
	specs := []types.DesiredRecordSpec{
		{Type: types.RecordTypeA, Name: "www.example.com", Content: "1.2.3.4", TTL: 300},
		{Type: types.RecordTypeAAAA, Name: "www.example.com", Content: "2001:db8::1", TTL: 300},
		{Type: types.RecordTypeCNAME, Name: "alias.example.com", Content: "www.example.com", TTL: 300},
		{Type: types.RecordTypeMX, Name: "example.com", Content: "mail.example.com", TTL: 300, Priority: &prio},
		{Type: types.RecordTypeSRV, Name: "_sip._tcp.example.com", Content: "sip.example.com", TTL: 300, Priority: &prio, Weight: &weight, Port: &port},
		{Type: types.RecordTypeTXT, Name: "example.com", Content: "v=spf1 -all", TTL: 300},
	}

	for _, spec := range specs {
		t.Run(string(spec.Type), func(t *testing.T) {
			rr, err := p.toRR(spec)
			if err != nil {
				t.Fatalf("toRR() error = %v", err)
			}
			rec, ok := p.fromRR(rr)
			if !ok {
				t.Fatal("fromRR() rejected its own record")
			}
			if rec.Type != spec.Type || rec.Name != spec.Name || rec.Content != spec.Content || rec.TTL != spec.TTL {
				t.Errorf("round trip = %+v, want %+v", rec, spec)
			}
		})
	}
}

func TestFromRR_SkipsSOA(t *testing.T) {
	p, err := New(testSettings())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rr, err := dns.NewRR("example.com. 900 IN SOA ns1.example.com. hostmaster.example.com. 1 7200 900 1209600 86400")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.fromRR(rr); ok {
		t.Error("fromRR() should skip SOA records")
	}
}
