package daemon

import (
	"strings"
)

const unitTemplate = `[Unit]
Description=vstab automatic voltage regulator daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/vstab daemon --config /path/to/config --daemon-socket /path/to/socket
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// UnitOptions are the values substituted into the systemd unit.
type UnitOptions struct {
	Executable string
	ConfigPath string
	SocketPath string
}

// Unit renders the systemd service unit.
func Unit(opts UnitOptions) string {
	return strings.NewReplacer(
		"/path/to/vstab", opts.Executable,
		"/path/to/config", opts.ConfigPath,
		"/path/to/socket", opts.SocketPath,
	).Replace(unitTemplate)
}
