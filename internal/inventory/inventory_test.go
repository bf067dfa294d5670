package inventory

import (
	"regexp"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		sysfsType   int
		hasWireless bool
		want        LinkClass
	}{
		{"wlan0", sysfsTypeEther, false, ClassWifi},
		{"eth0", -1, true, ClassWifi}, // wireless node wins regardless of name
		{"wlp3s0", -1, false, ClassWifi},
		{"ppp0", -1, false, ClassMobile},
		{"wwan0", -1, false, ClassMobile},
		{"usb0", -1, false, ClassMobile},
		{"en0", sysfsTypeEther, false, ClassEthernet},
		{"eth1", sysfsTypeEther, false, ClassEthernet},
		{"enp0s3", -1, false, ClassUnknown}, // missing sysfs type, name alone isn't enough
		{"custom0", sysfsTypeEther, false, ClassEthernet},
		{"tun0", -1, false, ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.name, tt.sysfsType, tt.hasWireless)
			if got != tt.want {
				t.Errorf("classify(%q, %d, %v) = %v, want %v", tt.name, tt.sysfsType, tt.hasWireless, got, tt.want)
			}
		})
	}
}

func TestIsExcluded(t *testing.T) {
	excluded := []string{"lo", "docker0", "veth1234", "br-abcdef", "virbr0"}
	for _, n := range excluded {
		if !IsExcluded(n) {
			t.Errorf("IsExcluded(%q) = false, want true", n)
		}
	}
	kept := []string{"eth0", "wlan0", "ppp0", "en0"}
	for _, n := range kept {
		if IsExcluded(n) {
			t.Errorf("IsExcluded(%q) = true, want false", n)
		}
	}
}

func TestIsExcludedByPattern(t *testing.T) {
	extra := regexp.MustCompile(`^tun`)

	if !IsExcludedByPattern("lo", extra) {
		t.Error("built-in excludePattern should still match with an extra pattern set")
	}
	if !IsExcludedByPattern("tun0", extra) {
		t.Error("extra pattern should exclude tun0")
	}
	if IsExcludedByPattern("eth0", extra) {
		t.Error("eth0 should not be excluded by either pattern")
	}
	if IsExcludedByPattern("tun0", nil) {
		t.Error("a nil extra pattern should not exclude anything beyond the built-in one")
	}
}
