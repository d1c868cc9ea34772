package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
)

// catalog fetches templates at most once per reconciliation.
type catalog struct {
	api       API
	templates []nuagex.Template
	loaded    bool
}

func (c *catalog) load(ctx context.Context) ([]nuagex.Template, error) {
	if c.loaded {
		return c.templates, nil
	}
	templates, err := c.api.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	c.templates = templates
	c.loaded = true
	return templates, nil
}

// sorted returns templates ordered by name, then id.
func (c *catalog) sorted(ctx context.Context) ([]nuagex.Template, error) {
	templates, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(templates)
	slices.SortFunc(out, func(a, b nuagex.Template) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// names maps template id to template name.
func (c *catalog) names(ctx context.Context) (map[string]string, error) {
	templates, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(templates))
	for _, t := range templates {
		m[t.ID] = t.Name
	}
	return m, nil
}

// resolve finds a template by name, falling back to id.
func (c *catalog) resolve(ctx context.Context, ref string) (nuagex.Template, error) {
	templates, err := c.sorted(ctx)
	if err != nil {
		return nuagex.Template{}, err
	}
	for _, t := range templates {
		if t.Name == ref {
			return t, nil
		}
	}
	for _, t := range templates {
		if t.ID == ref {
			return t, nil
		}
	}
	return nuagex.Template{}, &InvalidParamError{
		Param:   "template",
		Message: fmt.Sprintf("template not found: %s", ref),
	}
}

// createTemplate picks the template for a new lab: the requested one, else
// the template of the lab being replaced, else the first by name.
func (c *catalog) createTemplate(ctx context.Context, requested, previousID string) (nuagex.Template, error) {
	if requested != "" {
		return c.resolve(ctx, requested)
	}
	templates, err := c.sorted(ctx)
	if err != nil {
		return nuagex.Template{}, err
	}
	if previousID != "" {
		for _, t := range templates {
			if t.ID == previousID {
				return t, nil
			}
		}
	}
	if len(templates) == 0 {
		return nuagex.Template{}, &InvalidParamError{Param: "template", Message: "no templates available"}
	}
	return templates[0], nil
}

// pickFirst selects the lab whose template name sorts first. Labs on an
// unknown template sort by their template id; ties fall back to lab id.
func pickFirst(labs []nuagex.Lab, names map[string]string) *nuagex.Lab {
	key := func(l nuagex.Lab) string {
		if n, ok := names[l.Template]; ok {
			return n
		}
		return l.Template
	}
	best := 0
	for i := 1; i < len(labs); i++ {
		c := cmp.Or(cmp.Compare(key(labs[i]), key(labs[best])), cmp.Compare(labs[i].ID, labs[best].ID))
		if c < 0 {
			best = i
		}
	}
	return &labs[best]
}
