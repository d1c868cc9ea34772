package nuagex

// StatusStarted is the status NuageX reports for a lab that is up and reachable.
const StatusStarted = "started"

// Statuses a lab passes through on its way to started.
var transitionalStatuses = map[string]bool{
	"pending":      true,
	"queued":       true,
	"provisioning": true,
	"starting":     true,
}

// Credentials authenticate against /auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Service is a port a lab exposes on its external address.
type Service struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// Lab is a sandbox as returned by the labs endpoints.
type Lab struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Template   string    `json:"template"`
	ExternalIP string    `json:"externalIP"`
	Password   string    `json:"password"`
	Services   []Service `json:"services"`
}

// IsRunning reports whether the lab has finished provisioning.
func (l *Lab) IsRunning() bool {
	return l.Status == StatusStarted
}

// IsTransitional reports whether the lab is still on its way to running.
func (l *Lab) IsTransitional() bool {
	return transitionalStatuses[l.Status]
}

// Template is a blueprint labs are provisioned from.
type Template struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// CreateLabRequest is the body of POST /labs.
type CreateLabRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Services []any  `json:"services"`
	Networks []any  `json:"networks"`
	Servers  []any  `json:"servers"`
	// Expires uses the zero time so the service applies its default lifetime.
	Expires string `json:"expires"`
	Reason  string `json:"reason"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}
