// Package reconcile converges a named NuageX lab to a desired state.
//
// A reconciliation performs at most one action (create, delete, or replace
// of a broken lab) and never retries API failures. Polling for a lab to come
// up or disappear is part of the action, not a retry.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
)

// API is the subset of the NuageX client the reconciler needs.
type API interface {
	Login(ctx context.Context) error
	ListLabs(ctx context.Context, name string) ([]nuagex.Lab, error)
	ListTemplates(ctx context.Context) ([]nuagex.Template, error)
	CreateLab(ctx context.Context, name, templateID string) (*nuagex.Lab, error)
	DeleteLab(ctx context.Context, id string) error
	WaitRunning(ctx context.Context, lab *nuagex.Lab, opts ...nuagex.PollOption) (*nuagex.Lab, error)
	WaitGone(ctx context.Context, lab *nuagex.Lab, opts ...nuagex.PollOption) error
}

// Reconciler drives one lab at a time towards its desired state.
type Reconciler struct {
	api          API
	log          *slog.Logger
	waitAttempts int
	waitInterval time.Duration

	// OnPoll, when set, is called after every readiness or removal poll.
	OnPoll func(attempt int, lab *nuagex.Lab)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithWait sets the poll budget used while waiting on the API.
func WithWait(attempts int, interval time.Duration) Option {
	return func(r *Reconciler) {
		r.waitAttempts = attempts
		r.waitInterval = interval
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// New creates a Reconciler over api.
func New(api API, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:          api,
		log:          slog.Default(),
		waitAttempts: 20,
		waitInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile converges p.Name to p.State and returns the resulting metadata.
func (r *Reconciler) Reconcile(ctx context.Context, p Params) (*Result, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, &InvalidParamError{Param: "name", Message: "missing required arguments: name"}
	}
	state, err := ParseState(string(p.State))
	if err != nil {
		return nil, err
	}

	// Fail early on bad credentials, before looking at any lab.
	if err := r.api.Login(ctx); err != nil {
		return nil, err
	}

	cat := &catalog{api: r.api}
	lab, err := r.find(ctx, cat, name, p.Template)
	if err != nil {
		return nil, err
	}

	log := r.log.With("lab", name, "state", state, "check_mode", p.CheckMode)

	switch {
	case state == StatePresent && lab != nil && lab.IsRunning():
		log.Debug("lab already running", "id", lab.ID)
		return r.result(ctx, cat, ActionNone, false, lab)

	case state == StatePresent && lab != nil && lab.IsTransitional():
		log.Info("lab still starting, waiting", "id", lab.ID, "status", lab.Status)
		if p.CheckMode {
			return r.result(ctx, cat, ActionNone, false, lab)
		}
		running, err := r.api.WaitRunning(ctx, lab, r.pollOptions()...)
		if err != nil {
			return nil, fmt.Errorf("waiting for lab %s: %w", name, err)
		}
		return r.result(ctx, cat, ActionNone, false, running)

	case state == StatePresent && lab != nil:
		log.Info("replacing lab", "id", lab.ID, "status", lab.Status)
		tmpl, err := cat.createTemplate(ctx, p.Template, lab.Template)
		if err != nil {
			return nil, err
		}
		if p.CheckMode {
			return &Result{Changed: true, Action: ActionReplace, Metadata: metadataFor(nil, "")}, nil
		}
		if err := r.deleteSync(ctx, lab); err != nil {
			return nil, err
		}
		running, err := r.createSync(ctx, name, tmpl)
		if err != nil {
			return nil, err
		}
		return r.result(ctx, cat, ActionReplace, true, running)

	case state == StatePresent:
		log.Info("creating lab", "template", p.Template)
		tmpl, err := cat.createTemplate(ctx, p.Template, "")
		if err != nil {
			return nil, err
		}
		if p.CheckMode {
			return &Result{Changed: true, Action: ActionCreate, Metadata: metadataFor(nil, "")}, nil
		}
		running, err := r.createSync(ctx, name, tmpl)
		if err != nil {
			return nil, err
		}
		return r.result(ctx, cat, ActionCreate, true, running)

	case lab != nil:
		log.Info("deleting lab", "id", lab.ID)
		if !p.CheckMode {
			if err := r.deleteSync(ctx, lab); err != nil {
				return nil, err
			}
		}
		return &Result{Changed: true, Action: ActionDelete, Metadata: metadataFor(nil, "")}, nil

	default:
		log.Debug("lab already absent")
		return &Result{Action: ActionNone, Metadata: metadataFor(nil, "")}, nil
	}
}

// Lookup returns the lab Reconcile would act on, or nil when none matches.
// It never changes anything.
func (r *Reconciler) Lookup(ctx context.Context, name, template string) (*Metadata, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &InvalidParamError{Param: "name", Message: "missing required arguments: name"}
	}
	if err := r.api.Login(ctx); err != nil {
		return nil, err
	}
	cat := &catalog{api: r.api}
	lab, err := r.find(ctx, cat, strings.TrimSpace(name), template)
	if err != nil || lab == nil {
		return nil, err
	}
	res, err := r.result(ctx, cat, ActionNone, false, lab)
	if err != nil {
		return nil, err
	}
	return &res.Metadata, nil
}

// Templates returns the available templates sorted by name.
func (r *Reconciler) Templates(ctx context.Context) ([]nuagex.Template, error) {
	if err := r.api.Login(ctx); err != nil {
		return nil, err
	}
	cat := &catalog{api: r.api}
	return cat.sorted(ctx)
}

// find lists labs named name and picks the one to act on. When a template is
// given only labs built from it qualify; an unknown template is an error.
func (r *Reconciler) find(ctx context.Context, cat *catalog, name, template string) (*nuagex.Lab, error) {
	labs, err := r.api.ListLabs(ctx, name)
	if err != nil {
		return nil, err
	}

	var matches []nuagex.Lab
	for _, l := range labs {
		if l.Name == name {
			matches = append(matches, l)
		}
	}

	if template != "" {
		tmpl, err := cat.resolve(ctx, template)
		if err != nil {
			return nil, err
		}
		filtered := matches[:0]
		for _, l := range matches {
			if l.Template == tmpl.ID {
				filtered = append(filtered, l)
			}
		}
		matches = filtered
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}

	names, err := cat.names(ctx)
	if err != nil {
		return nil, err
	}
	lab := pickFirst(matches, names)
	r.log.Debug("several labs share a name", "lab", name, "matches", len(matches), "selected", lab.ID)
	return lab, nil
}

func (r *Reconciler) createSync(ctx context.Context, name string, tmpl nuagex.Template) (*nuagex.Lab, error) {
	created, err := r.api.CreateLab(ctx, name, tmpl.ID)
	if err != nil {
		return nil, err
	}
	if created.Name == "" {
		created.Name = name
	}
	running, err := r.api.WaitRunning(ctx, created, r.pollOptions()...)
	if err != nil {
		return nil, fmt.Errorf("waiting for lab %s to start: %w", name, err)
	}
	return running, nil
}

func (r *Reconciler) deleteSync(ctx context.Context, lab *nuagex.Lab) error {
	if err := r.api.DeleteLab(ctx, lab.ID); err != nil {
		return err
	}
	if err := r.api.WaitGone(ctx, lab, r.pollOptions()...); err != nil {
		return fmt.Errorf("waiting for lab %s to be removed: %w", lab.Name, err)
	}
	return nil
}

func (r *Reconciler) pollOptions() []nuagex.PollOption {
	opts := []nuagex.PollOption{
		nuagex.WithAttempts(r.waitAttempts),
		nuagex.WithPollInterval(r.waitInterval),
	}
	if r.OnPoll != nil {
		opts = append(opts, nuagex.WithOnPoll(r.OnPoll))
	}
	return opts
}

func (r *Reconciler) result(ctx context.Context, cat *catalog, action Action, changed bool, lab *nuagex.Lab) (*Result, error) {
	names, err := cat.names(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Changed:  changed,
		Action:   action,
		Metadata: metadataFor(lab, names[lab.Template]),
	}, nil
}
