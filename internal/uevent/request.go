package uevent

import (
	"strings"

	"github.com/pilebones/go-udev/netlink"
)

// Where a request was discovered.
const (
	OriginBus       = "bus"
	OriginEnumerate = "enumerate"
	OriginRescan    = "rescan"
)

// Request is one outstanding firmware request.
type Request struct {
	Action   string
	DevPath  string
	Firmware string
	Origin   string
}

// FromEvent extracts a request from a firmware uevent. DEVPATH falls back to
// the kobject path from the message header.
func FromEvent(ev netlink.UEvent, origin string) Request {
	devpath := strings.TrimSpace(ev.Env["DEVPATH"])
	if devpath == "" {
		devpath = ev.KObj
	}
	return Request{
		Action:   string(ev.Action),
		DevPath:  devpath,
		Firmware: strings.TrimSpace(ev.Env["FIRMWARE"]),
		Origin:   origin,
	}
}

// Matcher accepts firmware subsystem events whose action is add or move. The
// rules are compiled before they are returned.
func Matcher() netlink.Matcher {
	action := "^(add|move)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^firmware$",
		},
	})
	if err := rules.Compile(); err != nil {
		panic("uevent: firmware matcher: " + err.Error())
	}
	return rules
}
