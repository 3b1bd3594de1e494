// Package device derives a human-readable device label from a User-Agent
// header. Labels are attached to login audit logs so users can recognize
// their own sessions.
package device

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent turns a raw User-Agent string into a display label like
// "Chrome on Mac OS X". Unknown input still yields a usable label.
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}

	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}

	if platform := ua.Platform(); ua.Mobile() && platform != "" && platform != os {
		return fmt.Sprintf("%s on %s (%s)", name, os, platform)
	}
	return fmt.Sprintf("%s on %s", name, os)
}
