package categorize

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/reflectra/pkg/models"
)

// CategoryRules is one entry of the tier-1 table: a category name and the URL
// patterns that select it. Patterns are tested in order.
type CategoryRules struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// RulesFile is the top-level YAML structure of a rule table file.
type RulesFile struct {
	Rules []CategoryRules `yaml:"rules"`
}

type compiledRules struct {
	category string
	patterns []*regexp.Regexp
}

// RuleTable is a validated, compiled tier-1 rule table. It is immutable.
type RuleTable struct {
	entries []compiledRules
}

// DefaultRules is the built-in table. Categories are tried top to bottom, so more
// specific paths (reels, shorts) are listed before the bare domains that would
// otherwise claim them.
var DefaultRules = []CategoryRules{
	{Category: models.CategoryMindlessScroll, Patterns: []string{
		`[/.]tiktok\.com`,
		`instagram\.com/reels?/`,
		`youtube\.com/shorts/`,
		`facebook\.com/watch`,
		`9gag\.com`,
	}},
	{Category: models.CategoryCommunication, Patterns: []string{
		`mail\.google\.com`,
		`outlook\.(live|office)\.com`,
		`[/.]slack\.com`,
		`teams\.microsoft\.com`,
		`web\.whatsapp\.com`,
		`[/.]discord\.com/channels/@me`,
	}},
	{Category: models.CategoryFocusedWork, Patterns: []string{
		`[/.]github\.com`,
		`[/.]gitlab\.com`,
		`docs\.google\.com`,
		`[/.]notion\.so`,
		`[/.]figma\.com`,
		`[/.]atlassian\.net`,
		`[/.]linear\.app`,
	}},
	{Category: models.CategoryLearning, Patterns: []string{
		`[/.]coursera\.org`,
		`[/.]udemy\.com`,
		`[/.]khanacademy\.org`,
		`developer\.mozilla\.org`,
		`[/.]pkg\.go\.dev`,
		`[/.]leetcode\.com`,
	}},
	{Category: models.CategoryResearch, Patterns: []string{
		`[/.]wikipedia\.org`,
		`[/.]arxiv\.org`,
		`scholar\.google\.com`,
		`[/.]stackoverflow\.com`,
		`news\.ycombinator\.com`,
	}},
	{Category: models.CategorySocialConnection, Patterns: []string{
		`[/.]instagram\.com`,
		`[/.]facebook\.com`,
		`[/.]twitter\.com`,
		`[/.]x\.com`,
		`[/.]reddit\.com`,
		`[/.]linkedin\.com`,
		`[/.]discord\.com`,
	}},
	{Category: models.CategoryRelaxation, Patterns: []string{
		`[/.]youtube\.com`,
		`[/.]netflix\.com`,
		`[/.]twitch\.tv`,
		`open\.spotify\.com`,
		`[/.]primevideo\.com`,
	}},
}

// NewRuleTable validates and compiles rules. Category names must be unique and
// every pattern must compile.
func NewRuleTable(rules []CategoryRules) (*RuleTable, error) {
	seen := make(map[string]struct{}, len(rules))
	t := &RuleTable{entries: make([]compiledRules, 0, len(rules))}
	for _, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule entry without category")
		}
		if _, dup := seen[r.Category]; dup {
			return nil, fmt.Errorf("duplicate category %q in rule table", r.Category)
		}
		seen[r.Category] = struct{}{}

		entry := compiledRules{category: r.Category}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("category %q: compile %q: %w", r.Category, p, err)
			}
			entry.patterns = append(entry.patterns, re)
		}
		t.entries = append(t.entries, entry)
	}
	return t, nil
}

// MustDefaultTable compiles DefaultRules.
func MustDefaultTable() *RuleTable {
	t, err := NewRuleTable(DefaultRules)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadRules reads a YAML rule table from path.
// A missing file yields the built-in table.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MustDefaultTable(), nil
		}
		return nil, err
	}

	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return NewRuleTable(f.Rules)
}

// WriteRules writes rules to path as YAML.
func WriteRules(path string, rules []CategoryRules) error {
	data, err := yaml.Marshal(RulesFile{Rules: rules})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Match returns the first category, in table order, with a pattern matching url.
func (t *RuleTable) Match(url string) (string, bool) {
	if t == nil {
		return "", false
	}
	for _, e := range t.entries {
		for _, re := range e.patterns {
			if re.MatchString(url) {
				return e.category, true
			}
		}
	}
	return "", false
}

// Categories returns the category names in priority order.
func (t *RuleTable) Categories() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.category
	}
	return names
}

// Len returns the total number of patterns.
func (t *RuleTable) Len() int {
	n := 0
	for _, e := range t.entries {
		n += len(e.patterns)
	}
	return n
}

// Registry holds the active rule table. Reads are lock-free; a table is
// replaced whole by Reload.
type Registry struct {
	table atomic.Pointer[RuleTable]
	path  string
}

// NewRegistry loads the table at path (or the built-in table when path is empty).
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if path == "" {
		r.table.Store(MustDefaultTable())
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the rules file being served, or "" for the built-in table.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the rules file. On error the previous table stays active.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	t, err := LoadRules(r.path)
	if err != nil {
		return err
	}
	r.table.Store(t)
	return nil
}

// Table returns the active rule table.
func (r *Registry) Table() *RuleTable {
	return r.table.Load()
}
