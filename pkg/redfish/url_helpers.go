package redfish

import (
	"net/url"
	"strings"
)

// ServiceRootPath is the Redfish service root
const ServiceRootPath = "/redfish/v1"

// BuildRedfishURL joins an endpoint and a path without doubling the slash
// between them.
func BuildRedfishURL(endpoint, path string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return endpoint + path
}

// BuildServiceRootURL returns the Redfish service root URL
func BuildServiceRootURL(endpoint string) string {
	return BuildRedfishURL(endpoint, ServiceRootPath)
}

// BuildSessionsURL returns the Sessions collection URL
func BuildSessionsURL(endpoint string) string {
	return BuildRedfishURL(endpoint, ServiceRootPath+"/SessionService/Sessions")
}

// BuildSystemURL returns the URL of a single ComputerSystem
func BuildSystemURL(endpoint, systemID string) string {
	return BuildRedfishURL(endpoint, ServiceRootPath+"/Systems/"+url.PathEscape(systemID))
}

// BuildResetActionURL returns the ComputerSystem.Reset action target for a system
func BuildResetActionURL(endpoint, systemID string) string {
	return BuildSystemURL(endpoint, systemID) + "/Actions/ComputerSystem.Reset"
}

// resolveURL turns a server-provided reference, which may be absolute or an
// @odata.id path, into a full URL against endpoint.
func resolveURL(endpoint, ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return BuildRedfishURL(endpoint, ref)
}
