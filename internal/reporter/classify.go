package reporter

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/pkg/errors"
)

// Classifier holds the status phrases of each bucket. Matching is a
// case-insensitive, accent-insensitive substring test on the status text.
type Classifier struct {
	Authorized []string `yaml:"authorized" mapstructure:"authorized" toml:"authorized"`
	Pending    []string `yaml:"pending" mapstructure:"pending" toml:"pending"`
	Canceled   []string `yaml:"canceled" mapstructure:"canceled" toml:"canceled"`
}

// DefaultClassifier returns the phrases used by the records sheet.
func DefaultClassifier() *Classifier {
	return &Classifier{
		Authorized: []string{"pagamento autorizado"},
		Pending: []string{
			"aguardando autorização cml",
			"processo encaminhado esc sp",
			"encaminhado à 4ª bda",
			"encaminhado a 4ª bda",
		},
		Canceled: []string{"cancelado (dea)", "processo devolvido"},
	}
}

// Classification is the outcome for one status text. At most one of
// Authorized, Pending and Canceled is set.
type Classification struct {
	Authorized bool
	Pending    bool
	Canceled   bool
}

// Active reports whether the record counts toward the active total.
func (c Classification) Active() bool {
	return !c.Canceled
}

// Classify buckets a status text. Canceled wins over authorized, which wins
// over pending, so the three buckets stay disjoint whatever the phrases.
func (c *Classifier) Classify(status string) Classification {
	s := matcher.Fold(status)
	switch {
	case s == "":
		return Classification{}
	case containsAny(s, c.Canceled):
		return Classification{Canceled: true}
	case containsAny(s, c.Authorized):
		return Classification{Authorized: true}
	case containsAny(s, c.Pending):
		return Classification{Pending: true}
	}
	return Classification{}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p = matcher.Fold(strings.TrimSpace(p)); p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Validate requires at least one phrase per bucket.
func (c *Classifier) Validate() error {
	for name, phrases := range map[string][]string{
		"authorized": c.Authorized,
		"pending":    c.Pending,
		"canceled":   c.Canceled,
	} {
		if len(phrases) == 0 {
			return errors.ConfigurationError(errors.CodeMissingConfig, "status."+name, nil, nil).
				WithSuggestion("list at least one phrase for every bucket")
		}
	}
	return nil
}

// ParseClassifier reads phrase rules from YAML. Buckets left out keep their
// default phrases.
func ParseClassifier(data []byte) (*Classifier, error) {
	parsed := &Classifier{}
	if err := yaml.Unmarshal(data, parsed); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "status_rules", nil, err)
	}

	c := DefaultClassifier()
	if len(parsed.Authorized) > 0 {
		c.Authorized = parsed.Authorized
	}
	if len(parsed.Pending) > 0 {
		c.Pending = parsed.Pending
	}
	if len(parsed.Canceled) > 0 {
		c.Canceled = parsed.Canceled
	}
	return c, c.Validate()
}

// LoadClassifier reads phrase rules from a YAML file, or returns the
// defaults when path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return DefaultClassifier(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}
	return ParseClassifier(data)
}
