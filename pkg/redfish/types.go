package redfish

// PowerState represents the power state of a server
type PowerState string

const (
	PowerStateOn          PowerState = "On"
	PowerStateOff         PowerState = "Off"
	PowerStatePoweringOn  PowerState = "PoweringOn"
	PowerStatePoweringOff PowerState = "PoweringOff"
	PowerStatePaused      PowerState = "Paused"
	PowerStateUnknown     PowerState = "Unknown"
)

// ResetType is the ResetType parameter of the ComputerSystem.Reset action
type ResetType string

const (
	ResetOn               ResetType = "On"
	ResetForceOn          ResetType = "ForceOn"
	ResetForceOff         ResetType = "ForceOff"
	ResetGracefulShutdown ResetType = "GracefulShutdown"
	ResetGracefulRestart  ResetType = "GracefulRestart"
	ResetForceRestart     ResetType = "ForceRestart"
	ResetPowerCycle       ResetType = "PowerCycle"
)

// ExpectedState returns the power state a system should settle in after
// the reset. Restart and cycle types end powered on.
func (r ResetType) ExpectedState() PowerState {
	switch r {
	case ResetForceOff, ResetGracefulShutdown:
		return PowerStateOff
	case ResetOn, ResetForceOn, ResetGracefulRestart, ResetForceRestart, ResetPowerCycle:
		return PowerStateOn
	default:
		return PowerStateUnknown
	}
}

// ODataRef is a navigation link to another resource
type ODataRef struct {
	ODataID string `json:"@odata.id"`
}

// ServiceRoot represents the Redfish service root response
type ServiceRoot struct {
	ODataID        string   `json:"@odata.id"`
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	RedfishVersion string   `json:"RedfishVersion"`
	UUID           string   `json:"UUID"`
	Product        string   `json:"Product"`
	Vendor         string   `json:"Vendor"`
	Systems        ODataRef `json:"Systems"`
	Chassis        ODataRef `json:"Chassis"`
	Managers       ODataRef `json:"Managers"`
	SessionService ODataRef `json:"SessionService"`
	Links          struct {
		Sessions ODataRef `json:"Sessions"`
	} `json:"Links"`
}

// ComputerSystem represents a Redfish computer system
type ComputerSystem struct {
	ODataID      string     `json:"@odata.id"`
	ID           string     `json:"Id"`
	Name         string     `json:"Name"`
	Manufacturer string     `json:"Manufacturer"`
	Model        string     `json:"Model"`
	SerialNumber string     `json:"SerialNumber"`
	PowerState   PowerState `json:"PowerState"`
	Status       struct {
		State  string `json:"State"`
		Health string `json:"Health"`
	} `json:"Status"`
	Actions struct {
		ComputerSystemReset struct {
			Target                   string      `json:"target"`
			ResetTypeAllowableValues []ResetType `json:"ResetType@Redfish.AllowableValues"`
		} `json:"#ComputerSystem.Reset"`
	} `json:"Actions"`
}

// AllowsReset reports whether the system advertises resetType. Systems that
// advertise nothing are assumed to allow every type.
func (s *ComputerSystem) AllowsReset(resetType ResetType) bool {
	allowed := s.Actions.ComputerSystemReset.ResetTypeAllowableValues
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == resetType {
			return true
		}
	}
	return false
}

// Session represents a Redfish session resource
type Session struct {
	ODataID  string `json:"@odata.id"`
	ID       string `json:"Id"`
	UserName string `json:"UserName"`
}

// SessionCollection represents the sessions collection
type SessionCollection struct {
	Name         string     `json:"Name"`
	Members      []ODataRef `json:"Members"`
	MembersCount int        `json:"Members@odata.count"`
}

// SessionInfo is a session created by the harness
type SessionInfo struct {
	Token      string
	SessionURI string
	Endpoint   string
	Attempts   int
}
