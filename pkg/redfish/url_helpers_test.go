package redfish

import "testing"

func TestBuildRedfishURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		path     string
		expected string
	}{
		{
			name:     "endpoint with trailing slash, path with leading slash",
			endpoint: "https://bmc.example.com/",
			path:     "/redfish/v1/Systems",
			expected: "https://bmc.example.com/redfish/v1/Systems",
		},
		{
			name:     "endpoint without trailing slash, path without leading slash",
			endpoint: "https://bmc.example.com",
			path:     "redfish/v1/Systems",
			expected: "https://bmc.example.com/redfish/v1/Systems",
		},
		{
			name:     "with port number",
			endpoint: "https://localhost:2443",
			path:     "/redfish/v1/SessionService/Sessions",
			expected: "https://localhost:2443/redfish/v1/SessionService/Sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildRedfishURL(tt.endpoint, tt.path)
			if result != tt.expected {
				t.Errorf("BuildRedfishURL(%q, %q) = %q; want %q", tt.endpoint, tt.path, result, tt.expected)
			}
		})
	}
}

func TestEndpointURLs(t *testing.T) {
	const endpoint = "https://localhost:2443/"

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"service root", BuildServiceRootURL(endpoint), "https://localhost:2443/redfish/v1"},
		{"sessions", BuildSessionsURL(endpoint), "https://localhost:2443/redfish/v1/SessionService/Sessions"},
		{"system", BuildSystemURL(endpoint, "system"), "https://localhost:2443/redfish/v1/Systems/system"},
		{"system id escaped", BuildSystemURL(endpoint, "a b"), "https://localhost:2443/redfish/v1/Systems/a%20b"},
		{"reset action", BuildResetActionURL(endpoint, "system"), "https://localhost:2443/redfish/v1/Systems/system/Actions/ComputerSystem.Reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q; want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	if got := resolveURL("https://bmc:443", "/redfish/v1/SessionService/Sessions/abc"); got != "https://bmc:443/redfish/v1/SessionService/Sessions/abc" {
		t.Errorf("relative reference resolved to %q", got)
	}
	if got := resolveURL("https://bmc:443", "https://other:8443/redfish/v1/x"); got != "https://other:8443/redfish/v1/x" {
		t.Errorf("absolute reference rewritten to %q", got)
	}
}
