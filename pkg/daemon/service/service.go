// Package service manages the tailcastd systemd user service unit.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const unitName = "tailcastd.service"

// Unit describes the service to install.
type Unit struct {
	Binary     string // absolute path to tailcastd
	ConfigPath string // passed as --config when set
	WorkingDir string // relative source paths resolve against this
}

// UnitContents returns the systemd unit file contents for u.
func UnitContents(u Unit) string {
	execStart := u.Binary
	if u.ConfigPath != "" {
		execStart += " --config " + u.ConfigPath
	}
	var extra string
	if u.WorkingDir != "" {
		extra = "WorkingDirectory=" + u.WorkingDir + "\n"
	}
	return fmt.Sprintf(`[Unit]
Description=tailcast log stream daemon
Documentation=https://github.com/modoterra/tailcast

[Service]
Type=notify
NotifyAccess=main
ExecStart=%s
%sRestart=on-failure
RestartSec=5
WatchdogSec=30

[Install]
WantedBy=default.target
`, execStart, extra)
}

// UnitPath returns the path to the systemd user unit file.
func UnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// Install writes the unit file, reloads systemd, and enables+starts the
// service. An empty u.Binary is looked up on PATH.
func Install(u Unit) error {
	if u.Binary == "" {
		path, err := exec.LookPath("tailcastd")
		if err != nil {
			return fmt.Errorf("tailcastd not found in PATH: %w", err)
		}
		u.Binary = path
	}
	var err error
	if u.Binary, err = filepath.Abs(u.Binary); err != nil {
		return fmt.Errorf("cannot resolve tailcastd path: %w", err)
	}
	if u.ConfigPath != "" {
		if u.ConfigPath, err = filepath.Abs(u.ConfigPath); err != nil {
			return fmt.Errorf("cannot resolve config path: %w", err)
		}
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(UnitContents(u)), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

// Uninstall stops+disables the service, removes the unit file, and reloads systemd.
func Uninstall() error {
	// Best-effort stop and disable; ignore errors if not running.
	_ = systemctl("stop", unitName)
	_ = systemctl("disable", unitName)

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove unit file: %w", err)
	}
	return systemctl("daemon-reload")
}

// Status returns a human-readable status string.
func Status(socketPath string) string {
	var lines []string

	if socketPath != "" {
		if _, err := os.Stat(socketPath); err == nil {
			lines = append(lines, "socket: active ("+socketPath+")")
		} else {
			lines = append(lines, "socket: inactive ("+socketPath+")")
		}
	}

	unitPath, err := UnitPath()
	if err == nil {
		if _, statErr := os.Stat(unitPath); statErr == nil {
			out, runErr := exec.Command("systemctl", "--user", "is-active", unitName).Output()
			state := strings.TrimSpace(string(out))
			if runErr != nil && state == "" {
				state = "unknown"
			}
			lines = append(lines, "systemd user service: "+state)
		} else {
			lines = append(lines, "systemd user service: not installed")
		}
	}

	return strings.Join(lines, "\n")
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
