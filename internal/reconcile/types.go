package reconcile

import (
	"fmt"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
)

// State is the caller's desired state for a lab.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// ParseState validates s. The empty string means present.
func ParseState(s string) (State, error) {
	switch State(s) {
	case "", StatePresent:
		return StatePresent, nil
	case StateAbsent:
		return StateAbsent, nil
	default:
		return "", &InvalidParamError{
			Param:   "state",
			Message: fmt.Sprintf("value of state must be one of: present, absent, got: %s", s),
		}
	}
}

// Action is what a reconciliation did, or would do in check mode.
type Action string

const (
	ActionNone    Action = "none"
	ActionCreate  Action = "create"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
)

// Params describe one reconciliation.
type Params struct {
	Name string
	// Template is a template name or id. Empty means any template when
	// matching and the alphabetically first template when creating.
	Template  string
	State     State
	CheckMode bool
}

// Endpoint is one reachable service of a running lab.
type Endpoint struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Metadata is the connection information handed back to callers. It is the
// zero value when the lab is absent.
type Metadata struct {
	ID        string     `json:"lab_id"`
	Name      string     `json:"lab_name"`
	Address   string     `json:"lab_address"`
	Password  string     `json:"lab_password"`
	Template  string     `json:"lab_template"`
	Status    string     `json:"lab_status"`
	Endpoints []Endpoint `json:"lab_endpoints"`
}

// Result is the outcome of Reconcile.
type Result struct {
	Changed bool   `json:"changed"`
	Action  Action `json:"action"`
	Metadata
}

// InvalidParamError reports a bad caller-supplied parameter, including a
// template that does not exist.
type InvalidParamError struct {
	Param   string
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

// metadataFor builds caller-facing metadata. templateName may be empty when
// the template id could not be resolved.
func metadataFor(lab *nuagex.Lab, templateName string) Metadata {
	if lab == nil {
		return Metadata{Endpoints: []Endpoint{}}
	}
	if templateName == "" {
		templateName = lab.Template
	}
	endpoints := make([]Endpoint, 0, len(lab.Services))
	for _, s := range lab.Services {
		endpoints = append(endpoints, Endpoint{
			Name:     s.Name,
			Protocol: s.Protocol,
			Host:     lab.ExternalIP,
			Port:     s.Port,
		})
	}
	return Metadata{
		ID:        lab.ID,
		Name:      lab.Name,
		Address:   lab.ExternalIP,
		Password:  lab.Password,
		Template:  templateName,
		Status:    lab.Status,
		Endpoints: endpoints,
	}
}
