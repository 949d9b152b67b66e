// Package platform derives the platform identifier used to select bundle variants.
//
// Hosts report platform names with an execution-mode suffix ("WindowsEditor",
// "WindowsPlayer"). Metadata is keyed by the name without that suffix so that
// editor and standalone runs of the same platform share one key.
package platform

import (
	"runtime"
	"strings"
)

var modeSuffixes = []string{"Editor", "Player"}

// Normalize strips a trailing execution-mode suffix from a reported platform name.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range modeSuffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// Reported returns the host platform name for the running binary.
func Reported() string {
	return reportedFor(runtime.GOOS)
}

func reportedFor(goos string) string {
	switch goos {
	case "windows":
		return "WindowsPlayer"
	case "darwin":
		return "OSXPlayer"
	case "linux":
		return "LinuxPlayer"
	case "android":
		return "Android"
	case "ios":
		return "IPhonePlayer"
	case "":
		return ""
	default:
		return strings.ToUpper(goos[:1]) + goos[1:]
	}
}

// Detect returns the platform identifier, preferring a configured override.
func Detect(override string) string {
	if strings.TrimSpace(override) != "" {
		return Normalize(override)
	}
	return Normalize(Reported())
}
