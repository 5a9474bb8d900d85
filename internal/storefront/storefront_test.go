package storefront

import "testing"

func TestIDKnownRegions(t *testing.T) {
	tests := []struct {
		region string
		want   string
	}{
		{"US", "143441"},
		{"us", "143441"},
		{"GB", "143444"},
		{"JP", "143462"},
	}
	for _, tt := range tests {
		got, ok := ID(tt.region)
		if !ok {
			t.Fatalf("ID(%q) not found", tt.region)
		}
		if got != tt.want {
			t.Fatalf("ID(%q) = %q, want %q", tt.region, got, tt.want)
		}
	}
}

func TestIDUnknownRegion(t *testing.T) {
	if _, ok := ID("XX"); ok {
		t.Fatal("ID(XX) should not resolve")
	}
}

func TestRegionRoundTrip(t *testing.T) {
	for _, region := range Regions() {
		id, ok := ID(region)
		if !ok {
			t.Fatalf("ID(%q) missing", region)
		}
		back, ok := Region(id)
		if !ok || back != region {
			t.Fatalf("Region(%q) = %q, want %q", id, back, region)
		}
	}
}

func TestHeaderFormat(t *testing.T) {
	h, ok := Header("US")
	if !ok {
		t.Fatal("Header(US) not found")
	}
	if h != "143441-1,29" {
		t.Fatalf("Header(US) = %q", h)
	}
	if _, ok := Header("XX"); ok {
		t.Fatal("Header(XX) should not resolve")
	}
}
