package service

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestUnitContents(t *testing.T) {
	tests := []struct {
		name    string
		unit    Unit
		want    []string
		notWant []string
	}{
		{
			name: "binary only",
			unit: Unit{Binary: "/usr/local/bin/tailcastd"},
			want: []string{
				"Type=notify",
				"NotifyAccess=main",
				"WatchdogSec=30",
				"ExecStart=/usr/local/bin/tailcastd\n",
				"Restart=on-failure",
				"WantedBy=default.target",
			},
			notWant: []string{"WorkingDirectory=", "--config"},
		},
		{
			name: "config and working dir",
			unit: Unit{Binary: "/opt/tailcastd", ConfigPath: "/etc/tailcast.yaml", WorkingDir: "/srv/trader"},
			want: []string{
				"ExecStart=/opt/tailcastd --config /etc/tailcast.yaml\n",
				"WorkingDirectory=/srv/trader\nRestart=on-failure",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnitContents(tt.unit)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("unit missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("unit should not contain %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestUnitPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	p, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath: %v", err)
	}
	if want := filepath.Join("/tmp/xdg", "systemd", "user", "tailcastd.service"); p != want {
		t.Errorf("UnitPath = %q, want %q", p, want)
	}
}

func TestStatusReportsSocket(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	sock := filepath.Join(t.TempDir(), "missing.sock")
	out := Status(sock)
	if !strings.Contains(out, "socket: inactive ("+sock+")") {
		t.Errorf("status = %q", out)
	}
	if !strings.Contains(out, "not installed") {
		t.Errorf("status = %q", out)
	}
}
