package manifest

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

// Lab is one desired lab in a manifest.
type Lab struct {
	Name     string `yaml:"name" validate:"required"`
	Template string `yaml:"template"`
	State    string `yaml:"state" validate:"omitempty,oneof=present absent"`
}

// Manifest lists labs to reconcile in order.
type Manifest struct {
	Labs []Lab `yaml:"labs" validate:"min=1,dive"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorFor returns the shared validator, reporting fields by their YAML
// names.
func validatorFor() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the manifest's structure and reports the first problem in
// the same terms the reconciler uses.
func (m *Manifest) Validate() error {
	err := validatorFor().Struct(m)
	var verrs validator.ValidationErrors
	if err == nil || !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	where := strings.TrimPrefix(fe.Namespace(), "Manifest.")
	switch {
	case fe.Field() == "labs":
		return errors.New("manifest lists no labs")
	case fe.Tag() == "required":
		return fmt.Errorf("%s: %w", where, &reconcile.InvalidParamError{
			Param:   fe.Field(),
			Message: "missing required arguments: " + fe.Field(),
		})
	case fe.Tag() == "oneof":
		return fmt.Errorf("%s: %w", where, &reconcile.InvalidParamError{
			Param: fe.Field(),
			Message: fmt.Sprintf("value of %s must be one of: %s, got: %v",
				fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value()),
		})
	default:
		return fmt.Errorf("%s: %w", where, &reconcile.InvalidParamError{Param: fe.Field(), Message: fe.Error()})
	}
}

// Load reads a lab manifest from a YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	return &m, nil
}

// Params validates every entry and converts it to reconcile parameters. It
// fails on the first bad entry so nothing is applied from a broken file.
func (m *Manifest) Params(checkMode bool) ([]reconcile.Params, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(m.Labs))
	out := make([]reconcile.Params, 0, len(m.Labs))
	for i, l := range m.Labs {
		state, err := reconcile.ParseState(l.State)
		if err != nil {
			return nil, fmt.Errorf("labs[%d] (%s): %w", i, l.Name, err)
		}
		key := l.Name + "\x00" + l.Template
		if seen[key] {
			return nil, fmt.Errorf("labs[%d]: duplicate entry for %s", i, l.Name)
		}
		seen[key] = true
		out = append(out, reconcile.Params{
			Name:      l.Name,
			Template:  l.Template,
			State:     state,
			CheckMode: checkMode,
		})
	}
	return out, nil
}
