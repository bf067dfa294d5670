package route

import "testing"

func TestValidateRouteSpec(t *testing.T) {
	cases := []struct {
		name string
		line string
		want bool
	}{
		{"plain via/dev", "default via 192.168.1.1 dev eth0", true},
		{"with metric and proto", "default via 10.0.0.1 dev eth0 proto dhcp metric 100", true},
		{"missing default", "via 10.0.0.1 dev eth0", false},
		{"odd token count", "default via 10.0.0.1 dev", false},
		{"unknown keyword", "default via 10.0.0.1 dev eth0; rm -rf /", false},
		{"shell metacharacter as keyword slot", "default via 10.0.0.1 $(reboot) eth0", false},
		{"empty", "", false},
		{"nexthop syntax not whitelisted", "default nexthop via 10.0.0.1 dev eth0 weight 10", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens, ok := parseBackupLine(tc.line)
			if ok != tc.want {
				t.Fatalf("parseBackupLine(%q) tokens=%v ok=%v, want %v", tc.line, tokens, ok, tc.want)
			}
		})
	}
}

func TestRouteBackupString(t *testing.T) {
	b := RouteBackup{Lines: []string{"default via 10.0.0.1 dev eth0"}}
	if got := b.String(); got != "RouteBackup(1 entries)" {
		t.Fatalf("String() = %q", got)
	}
}
