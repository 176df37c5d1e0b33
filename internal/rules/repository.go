package rules

import (
	"sort"
	"sync/atomic"

	"alertrules/internal/domain"
)

// Catalog is an immutable rule snapshot indexed by project and id.
type Catalog struct {
	byID      map[int64]domain.Rule
	byProject map[int64][]domain.Rule
}

// NewCatalog indexes rules; per-project lists are ordered by id.
// Params: rule definitions.
// Returns: read-only catalog.
func NewCatalog(list []domain.Rule) *Catalog {
	catalog := &Catalog{
		byID:      make(map[int64]domain.Rule, len(list)),
		byProject: make(map[int64][]domain.Rule),
	}
	for _, rule := range list {
		catalog.byID[rule.ID] = rule
		catalog.byProject[rule.ProjectID] = append(catalog.byProject[rule.ProjectID], rule)
	}
	for projectID := range catalog.byProject {
		rules := catalog.byProject[projectID]
		sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	}
	return catalog
}

// Repository serves the current rule catalog and swaps it on reload.
type Repository struct {
	current atomic.Pointer[Catalog]
}

// NewRepository creates repository with initial rules.
func NewRepository(list []domain.Rule) *Repository {
	repo := &Repository{}
	repo.Replace(list)
	return repo
}

// Replace atomically swaps the catalog.
// Params: new rule definitions.
// Returns: none.
func (r *Repository) Replace(list []domain.Rule) {
	r.current.Store(NewCatalog(list))
}

// ActiveRules returns non-snoozed rules of one project ordered by id.
// Params: project id.
// Returns: rule copies safe for read-only use.
func (r *Repository) ActiveRules(projectID int64) []domain.Rule {
	catalog := r.current.Load()
	if catalog == nil {
		return nil
	}
	all := catalog.byProject[projectID]
	out := make([]domain.Rule, 0, len(all))
	for _, rule := range all {
		if rule.Snoozed {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// RuleByID resolves one rule regardless of snooze state.
// Params: rule id.
// Returns: rule and existence flag.
func (r *Repository) RuleByID(id int64) (domain.Rule, bool) {
	catalog := r.current.Load()
	if catalog == nil {
		return domain.Rule{}, false
	}
	rule, ok := catalog.byID[id]
	return rule, ok
}

// Len returns number of rules in the current catalog.
func (r *Repository) Len() int {
	catalog := r.current.Load()
	if catalog == nil {
		return 0
	}
	return len(catalog.byID)
}
