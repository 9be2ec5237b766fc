package capture

import "net/http"

// RequestContext is the requester annotation attached to audit events. It is
// threaded explicitly through service calls; services never reach into
// transport globals for it.
type RequestContext struct {
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Device    DeviceSignature `json:"device"`
}

// FromRequest captures the requester context of an HTTP request.
func FromRequest(r *http.Request) RequestContext {
	ip, _ := AddressFromRequest(r)
	ua := r.Header.Get("User-Agent")
	return RequestContext{
		IPAddress: ip,
		UserAgent: ua,
		Device:    ParseDeviceSignature(ua),
	}
}

// Anonymized returns a copy with the host-identifying address suffix zeroed
// and the raw User-Agent dropped, keeping only the parsed device signature.
func (c RequestContext) Anonymized() RequestContext {
	return RequestContext{
		IPAddress: Anonymize(c.IPAddress),
		Device:    c.Device,
	}
}

// IsZero reports whether no requester context was captured.
func (c RequestContext) IsZero() bool {
	return c.IPAddress == "" && c.UserAgent == "" && c.Device == DeviceSignature{}
}
