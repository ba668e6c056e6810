// Package wifi reports WiFi link state for the command server's status
// responses. It shells out to NetworkManager; on hosts without nmcli the
// probe degrades to "not connected" rather than failing.
package wifi

import (
	"os/exec"
	"strings"
)

type Status struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	IP        string `json:"ip,omitempty"`
}

var runCmdFn = runCmd

func runCmd(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return string(out), err
}

// Probe reports whether any wireless interface has an activated connection.
func Probe() Status {
	// nmcli -t -f NAME,TYPE,DEVICE,STATE con show --active
	out, err := runCmdFn("nmcli", "-t", "-f", "NAME,TYPE,DEVICE,STATE", "con", "show", "--active")
	if err != nil {
		return Status{}
	}

	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, ":")
		if len(parts) < 4 {
			continue
		}
		if parts[1] != "802-11-wireless" || parts[3] != "activated" {
			continue
		}

		st := Status{Connected: true}
		if ssid := lookupConnectionSSID(parts[0]); ssid != "" {
			st.SSID = ssid
		} else {
			st.SSID = parts[0]
		}
		if ip, err := runCmdFn("nmcli", "-g", "ip4.address", "dev", "show", parts[2]); err == nil {
			st.IP = strings.TrimSpace(ip)
		}
		return st
	}
	return Status{}
}

func lookupConnectionSSID(connName string) string {
	if strings.TrimSpace(connName) == "" {
		return ""
	}
	out, err := runCmdFn("nmcli", "-g", "802-11-wireless.ssid", "connection", "show", connName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
