package network

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"

	"github.com/afroash/climate-node/internal/config"
)

// Link is the network association underneath the secure session (Wi-Fi join).
type Link interface {
	// Associate makes one attempt to join the network.
	Associate(ctx context.Context) error

	// Associated reports whether the interface is up with an address.
	Associated() bool

	// Release leaves the network. Safe to call when not associated.
	Release() error
}

// NewLink builds the link backend selected in the Wi-Fi config
func NewLink(cfg config.WiFiConfig) (Link, error) {
	switch cfg.Backend {
	case config.BackendNMCLI:
		return NewNMCLILink(cfg.Interface, cfg.SSID, cfg.Password), nil
	case config.BackendInterface:
		return NewInterfaceLink(cfg.Interface), nil
	default:
		return nil, fmt.Errorf("unknown wifi backend %q", cfg.Backend)
	}
}

// InterfaceLink waits for an interface that something else brings up
// (wired ports, or Wi-Fi managed outside this agent).
type InterfaceLink struct {
	name string
}

// NewInterfaceLink watches the named interface
func NewInterfaceLink(name string) *InterfaceLink {
	return &InterfaceLink{name: name}
}

// Associate does nothing; the interface is managed elsewhere.
func (l *InterfaceLink) Associate(ctx context.Context) error {
	return nil
}

// Associated reports whether the interface is up and has at least one address
func (l *InterfaceLink) Associated() bool {
	iface, err := net.InterfaceByName(l.name)
	if err != nil {
		return false
	}
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	return err == nil && len(addrs) > 0
}

// Release does nothing; the interface is managed elsewhere.
func (l *InterfaceLink) Release() error {
	return nil
}

// commandRunner runs an external command with stdin and returns its combined output
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// NMCLILink joins a Wi-Fi network through NetworkManager
type NMCLILink struct {
	iface    *InterfaceLink
	ssid     string
	password string
	run      commandRunner
}

// NewNMCLILink joins ssid on the named interface
func NewNMCLILink(iface, ssid, password string) *NMCLILink {
	return &NMCLILink{
		iface:    NewInterfaceLink(iface),
		ssid:     ssid,
		password: password,
		run:      runCommand,
	}
}

// Associate asks NetworkManager to join the configured network. The password
// is answered on stdin to the --ask prompt so it never shows up in argv.
func (l *NMCLILink) Associate(ctx context.Context) error {
	var stdin []byte
	args := []string{"device", "wifi", "connect", l.ssid, "ifname", l.iface.name}
	if l.password != "" {
		args = append([]string{"--ask"}, args...)
		stdin = []byte(l.password + "\n")
	}

	if out, err := l.run(ctx, stdin, "nmcli", args...); err != nil {
		return fmt.Errorf("nmcli connect %q: %w: %s", l.ssid, err, out)
	}
	return nil
}

// Associated reports whether the Wi-Fi interface is up with an address
func (l *NMCLILink) Associated() bool {
	return l.iface.Associated()
}

// Release disconnects the Wi-Fi interface
func (l *NMCLILink) Release() error {
	if out, err := l.run(context.Background(), nil, "nmcli", "device", "disconnect", l.iface.name); err != nil {
		return fmt.Errorf("nmcli disconnect %s: %w: %s", l.iface.name, err, out)
	}
	return nil
}
