package capture

import (
	"github.com/mssola/useragent"
)

// Unknown is the sentinel for device signature fields that could not be
// derived. Absent input never yields empty strings or a nil signature.
const Unknown = "Unknown"

// DeviceClass buckets the requesting device.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceBot     DeviceClass = "bot"
	DeviceUnknown DeviceClass = "unknown"
)

// DeviceSignature is the parsed shape of a User-Agent string.
type DeviceSignature struct {
	Browser        string      `json:"browser"`
	BrowserVersion string      `json:"browser_version"`
	OS             string      `json:"os"`
	OSVersion      string      `json:"os_version"`
	Class          DeviceClass `json:"class"`
}

// ParseDeviceSignature derives a device signature from a User-Agent string.
// Empty input yields the Unknown sentinel in every field.
func ParseDeviceSignature(userAgent string) DeviceSignature {
	if userAgent == "" {
		return DeviceSignature{
			Browser:        Unknown,
			BrowserVersion: Unknown,
			OS:             Unknown,
			OSVersion:      Unknown,
			Class:          DeviceUnknown,
		}
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	osInfo := ua.OSInfo()

	sig := DeviceSignature{
		Browser:        orUnknown(name),
		BrowserVersion: orUnknown(version),
		OS:             orUnknown(osInfo.Name),
		OSVersion:      orUnknown(osInfo.Version),
		Class:          DeviceDesktop,
	}
	switch {
	case ua.Bot():
		sig.Class = DeviceBot
	case ua.Mobile():
		sig.Class = DeviceMobile
	}
	return sig
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
