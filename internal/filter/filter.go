// Package filter evaluates filter expressions and tag-priority ordering over
// a snapshot of cached tasks. Evaluation is pure: it never touches the store.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dori/tasca/internal/model"
)

// InvalidFilterError reports a malformed filter expression. A typo must fail
// loudly rather than silently match nothing or everything.
type InvalidFilterError struct {
	Clause string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter clause %q: %s", e.Clause, e.Reason)
}

type clauseKind int

const (
	clauseSearch clauseKind = iota
	clauseTag
	clauseWindow
)

type clause struct {
	kind   clauseKind
	terms  []string // search: lowercased alternatives, OR within the clause
	tag    string   // tag: required tag
	window string   // window: today, this_week, this_month
	attr   string   // window: date attribute name
}

// Rule is a compiled filter: a conjunction of clauses. Ephemeral, built per
// query.
type Rule struct {
	clauses []clause
}

var windowFields = map[string]bool{
	"today":      true,
	"this_week":  true,
	"this_month": true,
}

var dateAttrs = map[string]bool{
	"due":          true,
	"created_at":   true,
	"updated_at":   true,
	"completed_at": true,
}

var orderFields = map[string]bool{
	"title":        true,
	"position":     true,
	"due":          true,
	"created_at":   true,
	"updated_at":   true,
	"completed_at": true,
}

// Compile parses a filter expression: a space-joined conjunction of clauses.
// A clause is a window field (`today:due`), a bare #tag token, or a search
// term with optional `|` alternation.
func Compile(expr string) (*Rule, error) {
	rule := &Rule{}

	for _, token := range strings.Fields(expr) {
		switch {
		case strings.HasPrefix(token, "#"):
			tag := strings.ToLower(strings.TrimPrefix(token, "#"))
			if tag == "" {
				return nil, &InvalidFilterError{Clause: token, Reason: "empty tag"}
			}
			rule.clauses = append(rule.clauses, clause{kind: clauseTag, tag: tag})

		case strings.Contains(token, ":"):
			field, attr, _ := strings.Cut(token, ":")
			field = strings.ToLower(field)
			attr = strings.ToLower(attr)
			if !windowFields[field] {
				return nil, &InvalidFilterError{Clause: token, Reason: fmt.Sprintf("unknown field %q", field)}
			}
			if !dateAttrs[attr] {
				return nil, &InvalidFilterError{Clause: token, Reason: fmt.Sprintf("unknown date attribute %q", attr)}
			}
			rule.clauses = append(rule.clauses, clause{kind: clauseWindow, window: field, attr: attr})

		default:
			var terms []string
			for _, alt := range strings.Split(token, "|") {
				if alt == "" {
					return nil, &InvalidFilterError{Clause: token, Reason: "empty search alternative"}
				}
				terms = append(terms, strings.ToLower(alt))
			}
			rule.clauses = append(rule.clauses, clause{kind: clauseSearch, terms: terms})
		}
	}

	return rule, nil
}

// Evaluator applies compiled rules and the tag-tier ranking to task
// snapshots.
type Evaluator struct {
	weights map[string]int
}

// New creates an evaluator from a tier table. A nil table uses the built-in
// ladder.
func New(tiers []Tier) *Evaluator {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &Evaluator{weights: weights(tiers)}
}

// Evaluate filters and orders a task snapshot. With an empty orderBy the
// tag-tier ranking applies; otherwise orderBy names an attribute, ascending,
// or `-attribute` for descending. Stable with respect to input order on ties.
func (e *Evaluator) Evaluate(expr string, tasks []model.Task, orderBy string, now time.Time) ([]model.Task, error) {
	rule, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return e.EvaluateRule(rule, tasks, orderBy, now)
}

// EvaluateRule is Evaluate for an already compiled rule
func (e *Evaluator) EvaluateRule(rule *Rule, tasks []model.Task, orderBy string, now time.Time) ([]model.Task, error) {
	desc := false
	field := orderBy
	if strings.HasPrefix(field, "-") {
		desc = true
		field = strings.TrimPrefix(field, "-")
	}
	if field != "" && !orderFields[field] {
		return nil, &InvalidFilterError{Clause: orderBy, Reason: fmt.Sprintf("unknown order field %q", field)}
	}

	var out []model.Task
	for _, t := range tasks {
		if rule.matches(&t, now) {
			out = append(out, t)
		}
	}

	if field == "" {
		e.sortByRank(out)
	} else {
		sortByField(out, field, desc)
	}

	return out, nil
}

func (r *Rule) matches(t *model.Task, now time.Time) bool {
	for _, c := range r.clauses {
		if !c.matches(t, now) {
			return false
		}
	}
	return true
}

func (c *clause) matches(t *model.Task, now time.Time) bool {
	switch c.kind {
	case clauseTag:
		return t.HasTag(c.tag)

	case clauseWindow:
		when := dateAttr(t, c.attr)
		if when == nil {
			return false
		}
		return inWindow(*when, c.window, now)

	default: // clauseSearch
		haystack := strings.ToLower(t.Title + "\n" + t.Notes)
		for _, term := range c.terms {
			if strings.Contains(haystack, term) {
				return true
			}
		}
		return false
	}
}

func dateAttr(t *model.Task, attr string) *time.Time {
	switch attr {
	case "due":
		return t.Due
	case "created_at":
		return &t.CreatedAt
	case "updated_at":
		return &t.UpdatedAt
	case "completed_at":
		return t.CompletedAt
	}
	return nil
}

func inWindow(when time.Time, window string, now time.Time) bool {
	switch window {
	case "today":
		return when.Year() == now.Year() && when.YearDay() == now.YearDay()
	case "this_week":
		wy, ww := when.ISOWeek()
		ny, nw := now.ISOWeek()
		return wy == ny && ww == nw
	case "this_month":
		return when.Year() == now.Year() && when.Month() == now.Month()
	}
	return false
}

// sortByRank applies tag-tier ordering: highest rank first, ties broken by
// due date ascending (no due date last), then title. Untagged tasks rank 0
// and therefore sort after every ranked task.
func (e *Evaluator) sortByRank(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := e.rank(tasks[i].Tags), e.rank(tasks[j].Tags)
		if ri != rj {
			return ri > rj
		}
		if c := compareDates(tasks[i].Due, tasks[j].Due); c != 0 {
			return c < 0
		}
		return tasks[i].Title < tasks[j].Title
	})
}

func sortByField(tasks []model.Task, field string, desc bool) {
	sort.SliceStable(tasks, func(i, j int) bool {
		c := compareField(&tasks[i], &tasks[j], field)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareField(a, b *model.Task, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "position":
		return strings.Compare(a.Position, b.Position)
	default:
		return compareDates(dateAttr(a, field), dateAttr(b, field))
	}
}

// compareDates orders dates ascending; absent dates compare greater than any
// present one.
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}
