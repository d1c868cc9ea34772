// Package module implements the nuagex_lab Ansible binary module.
//
// Ansible runs a binary module with the path of a JSON file holding the task
// arguments and expects a single JSON object on stdout.
package module

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/michaelbrown/nuxlab/internal/config"
	"github.com/michaelbrown/nuxlab/internal/lablock"
	"github.com/michaelbrown/nuxlab/internal/logging"
	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

// Auth mirrors the nuagex_auth argument.
type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Args are the accepted task arguments.
type Args struct {
	Name       string `json:"name"`
	Template   string `json:"template"`
	State      string `json:"state"`
	NuageXAuth *Auth  `json:"nuagex_auth"`
	APIURL     string `json:"api_url"`
	CheckMode  bool   `json:"_ansible_check_mode"`
}

var supported = map[string]bool{
	"name":        true,
	"template":    true,
	"state":       true,
	"nuagex_auth": true,
	"api_url":     true,
}

// Response is what the module prints.
type Response struct {
	Failed bool   `json:"failed,omitempty"`
	Msg    string `json:"msg,omitempty"`
	reconcile.Result
}

// Module holds the process environment the module runs in.
type Module struct {
	Getenv func(string) string
	Wait   config.WaitConfig
	// LockDir holds per-lab lock files shared with the nuxlab CLI so parallel
	// Ansible forks do not race on one lab. Empty disables locking.
	LockDir string
}

// Default returns a Module reading the real environment with the standard
// poll budget.
func Default() *Module {
	return &Module{
		Getenv:  os.Getenv,
		Wait:    config.WaitConfig{Attempts: 20, Interval: 5 * time.Second},
		LockDir: filepath.Join(os.Getenv("HOME"), ".nuxlab", "locks"),
	}
}

// Main runs the module for the args file at path, writes the response to w
// and returns the process exit code.
func (m *Module) Main(ctx context.Context, path string, w io.Writer) int {
	resp := m.run(ctx, path)
	enc := json.NewEncoder(w)
	if err := enc.Encode(resp); err != nil {
		return 1
	}
	if resp.Failed {
		return 1
	}
	return 0
}

func (m *Module) run(ctx context.Context, path string) *Response {
	args, err := ParseArgsFile(path)
	if err != nil {
		return fail(err)
	}

	state, err := reconcile.ParseState(args.State)
	if err != nil {
		return fail(err)
	}

	creds := nuagex.Credentials{
		Username: m.Getenv("NUX_USERNAME"),
		Password: m.Getenv("NUX_PASSWORD"),
	}
	if args.NuageXAuth != nil {
		if args.NuageXAuth.Username != "" {
			creds.Username = args.NuageXAuth.Username
		}
		if args.NuageXAuth.Password != "" {
			creds.Password = args.NuageXAuth.Password
		}
	}

	apiURL := args.APIURL
	if apiURL == "" {
		apiURL = config.DefaultAPIURL
	}

	client := nuagex.New(nuagex.Config{
		BaseURL:     apiURL,
		Credentials: creds,
		Logger:      logging.Discard(),
	})
	r := reconcile.New(client,
		reconcile.WithWait(m.Wait.Attempts, m.Wait.Interval),
		reconcile.WithLogger(logging.Discard()),
	)

	if !args.CheckMode {
		unlock, err := lablock.Acquire(ctx, m.LockDir, args.Name)
		if err != nil {
			return fail(err)
		}
		defer unlock()
	}

	res, err := r.Reconcile(ctx, reconcile.Params{
		Name:      args.Name,
		Template:  args.Template,
		State:     state,
		CheckMode: args.CheckMode,
	})
	if err != nil {
		return fail(err)
	}
	return &Response{Result: *res}
}

// ParseArgsFile reads module arguments. Both the bare argument object and the
// {"ANSIBLE_MODULE_ARGS": {...}} wrapper are accepted.
func ParseArgsFile(path string) (*Args, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module arguments: %w", err)
	}
	return ParseArgs(data)
}

// ParseArgs decodes and validates module arguments.
func ParseArgs(data []byte) (*Args, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing module arguments: %w", err)
	}
	if wrapped, ok := raw["ANSIBLE_MODULE_ARGS"]; ok {
		data = wrapped
		raw = nil
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing module arguments: %w", err)
		}
	}

	var unsupported []string
	for k := range raw {
		if !strings.HasPrefix(k, "_ansible_") && !supported[k] {
			unsupported = append(unsupported, k)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, &reconcile.InvalidParamError{
			Param:   unsupported[0],
			Message: "Unsupported parameters for (nuagex_lab) module: " + strings.Join(unsupported, ", "),
		}
	}

	var args Args
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("parsing module arguments: %w", err)
	}
	if args.Name == "" {
		return nil, &reconcile.InvalidParamError{Param: "name", Message: "missing required arguments: name"}
	}
	return &args, nil
}

func fail(err error) *Response {
	return &Response{
		Failed: true,
		Msg:    err.Error(),
		Result: reconcile.Result{Action: reconcile.ActionNone},
	}
}
