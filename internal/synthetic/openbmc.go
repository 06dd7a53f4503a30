// Package synthetic provides an in-process OpenBMC-like Redfish server for
// exercising the harness without hardware.
package synthetic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const tokenHeader = "X-Auth-Token"

// OpenBMCServer is a synthetic Redfish server with session authentication,
// a single ComputerSystem and a reset action whose effect can be delayed.
type OpenBMCServer struct {
	Username string
	Password string
	SystemID string

	server *httptest.Server
	router *mux.Router

	mu              sync.Mutex
	powerState      string
	pendingState    *time.Timer
	sessions        map[string]*session // key: token
	sessionPosts    int
	failSessions    int
	omitToken       bool
	resetStatus     int
	transitionDelay time.Duration
	stuckPower      bool
	omitPowerState  bool
	resetRequests   []string
}

type session struct {
	ID       string
	Token    string
	UserName string
}

// Option configures an OpenBMCServer
type Option func(*OpenBMCServer)

// WithPowerState sets the initial power state
func WithPowerState(state string) Option {
	return func(s *OpenBMCServer) { s.powerState = state }
}

// WithTransitionDelay makes reset actions take effect after d. Until then
// the system reports PoweringOn or PoweringOff.
func WithTransitionDelay(d time.Duration) Option {
	return func(s *OpenBMCServer) { s.transitionDelay = d }
}

// WithCredentials replaces the default root/0penBmc account
func WithCredentials(username, password string) Option {
	return func(s *OpenBMCServer) {
		s.Username = username
		s.Password = password
	}
}

// NewOpenBMCServer creates a server. Call Start, or StartTLS, before use.
func NewOpenBMCServer(opts ...Option) *OpenBMCServer {
	s := &OpenBMCServer{
		Username:    "root",
		Password:    "0penBmc",
		SystemID:    "system",
		powerState:  "Off",
		sessions:    make(map[string]*session),
		resetStatus: http.StatusNoContent,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/redfish/v1", s.serviceRoot).Methods(http.MethodGet)
	r.HandleFunc("/redfish/v1/", s.serviceRoot).Methods(http.MethodGet)
	r.HandleFunc("/redfish/v1/SessionService/Sessions", s.createSession).Methods(http.MethodPost)

	authed := r.PathPrefix("/redfish/v1").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/SessionService/Sessions", s.listSessions).Methods(http.MethodGet)
	authed.HandleFunc("/SessionService/Sessions/{id}", s.getSession).Methods(http.MethodGet)
	authed.HandleFunc("/SessionService/Sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	authed.HandleFunc("/Systems/{id}", s.computerSystem).Methods(http.MethodGet)
	authed.HandleFunc("/Systems/{id}/Actions/ComputerSystem.Reset", s.systemReset).Methods(http.MethodPost)

	s.router = r
	return s
}

// Handler returns the server's router, for use without a listener
func (s *OpenBMCServer) Handler() http.Handler {
	return s.router
}

// Start serves plain HTTP on a loopback port
func (s *OpenBMCServer) Start() {
	s.server = httptest.NewServer(s.router)
}

// StartTLS serves HTTPS with a self-signed certificate, as BMCs do
func (s *OpenBMCServer) StartTLS() {
	s.server = httptest.NewTLSServer(s.router)
}

// Endpoint returns the base URL of a started server
func (s *OpenBMCServer) Endpoint() string {
	if s.server == nil {
		return ""
	}
	return s.server.URL
}

// Stop shuts the server down and cancels any pending power transition
func (s *OpenBMCServer) Stop() {
	s.mu.Lock()
	if s.pendingState != nil {
		s.pendingState.Stop()
	}
	s.mu.Unlock()

	if s.server != nil {
		s.server.Close()
	}
}

// SetPowerState sets the power state for testing
func (s *OpenBMCServer) SetPowerState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerState = state
}

// PowerState returns the current power state
func (s *OpenBMCServer) PowerState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powerState
}

// FailNextSessions makes the next n session creations answer 503
func (s *OpenBMCServer) FailNextSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSessions = n
}

// OmitToken makes successful session creations leave out X-Auth-Token
func (s *OpenBMCServer) OmitToken(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitToken = omit
}

// SetResetStatus sets the status returned by an accepted reset action
func (s *OpenBMCServer) SetResetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetStatus = code
}

// IgnoreResets makes reset actions succeed without changing power state
func (s *OpenBMCServer) IgnoreResets(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckPower = ignore
}

// OmitPowerState makes the ComputerSystem resource leave out PowerState
func (s *OpenBMCServer) OmitPowerState(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitPowerState = omit
}

// SessionPosts returns how many session creations were attempted
func (s *OpenBMCServer) SessionPosts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionPosts
}

// SessionCount returns the number of live sessions
func (s *OpenBMCServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ResetRequests returns the ResetType of every accepted reset, in order
func (s *OpenBMCServer) ResetRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resetRequests...)
}

func (s *OpenBMCServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.Header.Get(tokenHeader); token != "" {
			s.mu.Lock()
			_, ok := s.sessions[token]
			s.mu.Unlock()
			if ok {
				next.ServeHTTP(w, r)
				return
			}
		} else if username, password, ok := r.BasicAuth(); ok && username == s.Username && password == s.Password {
			next.ServeHTTP(w, r)
			return
		}

		writeError(w, http.StatusUnauthorized, "Base.1.13.0.InsufficientPrivilege", "There are insufficient privileges for the account or credentials associated with the current session to perform the requested operation.")
	})
}

func (s *OpenBMCServer) serviceRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"@odata.id":      "/redfish/v1",
		"@odata.type":    "#ServiceRoot.v1_15_0.ServiceRoot",
		"Id":             "RootService",
		"Name":           "Root Service",
		"RedfishVersion": "1.17.0",
		"UUID":           "a2a3c2c1-7ba4-4d1c-8f2e-1f0e6f3b9c11",
		"Product":        "Synthetic OpenBMC",
		"Vendor":         "OpenBMC",
		"Systems":        map[string]string{"@odata.id": "/redfish/v1/Systems"},
		"Chassis":        map[string]string{"@odata.id": "/redfish/v1/Chassis"},
		"Managers":       map[string]string{"@odata.id": "/redfish/v1/Managers"},
		"SessionService": map[string]string{"@odata.id": "/redfish/v1/SessionService"},
		"Links": map[string]interface{}{
			"Sessions": map[string]string{"@odata.id": "/redfish/v1/SessionService/Sessions"},
		},
	})
}

func (s *OpenBMCServer) createSession(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		UserName string `json:"UserName"`
		Password string `json:"Password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Base.1.13.0.MalformedJSON", "The request body submitted was malformed JSON.")
		return
	}

	s.mu.Lock()
	s.sessionPosts++
	if s.failSessions > 0 {
		s.failSessions--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "Base.1.13.0.ServiceTemporarilyUnavailable", "The service is temporarily unavailable.")
		return
	}
	if creds.UserName != s.Username || creds.Password != s.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Base.1.13.0.ResourceAtUriUnauthorized", "While accessing the resource at /redfish/v1/SessionService/Sessions, the service received an authorization error.")
		return
	}

	sess := &session{
		ID:       uuid.NewString()[:10],
		Token:    uuid.NewString(),
		UserName: creds.UserName,
	}
	s.sessions[sess.Token] = sess
	omit := s.omitToken
	s.mu.Unlock()

	uri := "/redfish/v1/SessionService/Sessions/" + sess.ID
	w.Header().Set("Location", uri)
	if !omit {
		w.Header().Set(tokenHeader, sess.Token)
	}
	writeJSON(w, http.StatusCreated, sessionBody(sess))
}

func (s *OpenBMCServer) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	members := make([]map[string]string, 0, len(s.sessions))
	for _, sess := range s.sessions {
		members = append(members, map[string]string{"@odata.id": "/redfish/v1/SessionService/Sessions/" + sess.ID})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"@odata.id":           "/redfish/v1/SessionService/Sessions",
		"Name":                "Session Collection",
		"Members":             members,
		"Members@odata.count": len(members),
	})
}

func (s *OpenBMCServer) findSession(id string) (*session, bool) {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return nil, false
}

func (s *OpenBMCServer) getSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, ok := s.findSession(mux.Vars(r)["id"])
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Base.1.13.0.ResourceNotFound", "The requested resource was not found.")
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(sess))
}

func (s *OpenBMCServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, ok := s.findSession(mux.Vars(r)["id"])
	if ok {
		delete(s.sessions, sess.Token)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Base.1.13.0.ResourceNotFound", "The requested resource was not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *OpenBMCServer) computerSystem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != s.SystemID {
		writeError(w, http.StatusNotFound, "Base.1.13.0.ResourceNotFound", "The requested resource was not found.")
		return
	}

	body := map[string]interface{}{
		"@odata.id":    "/redfish/v1/Systems/" + id,
		"@odata.type":  "#ComputerSystem.v1_16_0.ComputerSystem",
		"Id":           id,
		"Name":         "Synthetic System",
		"Manufacturer": "OpenBMC",
		"Model":        "romulus",
		"SerialNumber": "SYN0000001",
		"PowerState":   s.PowerState(),
		"Status":       map[string]string{"State": "Enabled", "Health": "OK"},
		"Actions": map[string]interface{}{
			"#ComputerSystem.Reset": map[string]interface{}{
				"target":                            "/redfish/v1/Systems/" + id + "/Actions/ComputerSystem.Reset",
				"ResetType@Redfish.AllowableValues": allowedResetTypes,
			},
		},
	}

	s.mu.Lock()
	if s.omitPowerState {
		delete(body, "PowerState")
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

var allowedResetTypes = []string{"On", "ForceOn", "ForceOff", "GracefulShutdown", "GracefulRestart", "ForceRestart", "PowerCycle"}

// systemReset applies a power action, immediately or after the transition delay
func (s *OpenBMCServer) systemReset(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["id"] != s.SystemID {
		writeError(w, http.StatusNotFound, "Base.1.13.0.ResourceNotFound", "The requested resource was not found.")
		return
	}

	var resetReq struct {
		ResetType string `json:"ResetType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&resetReq); err != nil {
		writeError(w, http.StatusBadRequest, "Base.1.13.0.MalformedJSON", "The request body submitted was malformed JSON.")
		return
	}

	var target, interim string
	switch resetReq.ResetType {
	case "On", "ForceOn", "GracefulRestart", "ForceRestart", "PowerCycle":
		target, interim = "On", "PoweringOn"
	case "ForceOff", "GracefulShutdown":
		target, interim = "Off", "PoweringOff"
	default:
		writeError(w, http.StatusBadRequest, "Base.1.13.0.ActionParameterNotSupported", "The parameter ResetType for the action ComputerSystem.Reset is not supported on the target resource.")
		return
	}

	s.mu.Lock()
	s.resetRequests = append(s.resetRequests, resetReq.ResetType)
	status := s.resetStatus
	if !s.stuckPower {
		if s.pendingState != nil {
			s.pendingState.Stop()
			s.pendingState = nil
		}
		if s.transitionDelay > 0 {
			s.powerState = interim
			s.pendingState = time.AfterFunc(s.transitionDelay, func() {
				s.SetPowerState(target)
			})
		} else {
			s.powerState = target
		}
	}
	s.mu.Unlock()

	if status == http.StatusOK {
		writeJSON(w, status, map[string]interface{}{
			"@Message.ExtendedInfo": []map[string]string{{"MessageId": "Base.1.13.0.Success", "Message": "The request completed successfully."}},
		})
		return
	}
	w.WriteHeader(status)
}

func sessionBody(sess *session) map[string]interface{} {
	return map[string]interface{}{
		"@odata.id":   "/redfish/v1/SessionService/Sessions/" + sess.ID,
		"@odata.type": "#Session.v1_5_0.Session",
		"Id":          sess.ID,
		"Name":        "User Session",
		"UserName":    sess.UserName,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, messageID, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    messageID,
			"message": message,
		},
	})
}
