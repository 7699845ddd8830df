// Package rules implements priority-ordered classification rules for revenue
// rows. Rules are read by the batch classifier; only their usage counter is
// written back by the sync core.
package rules

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Field selects which part of a ledger row a rule matches against.
type Field string

const (
	FieldName         Field = "name"
	FieldCategoryHint Field = "category_hint"
)

// Rule assigns a category to revenue rows whose name or category hint
// matches Pattern. Patterns are case-insensitive substrings; a pattern
// prefixed with "re:" is compiled as a regular expression instead.
type Rule struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Priority     int // higher wins
	Field        Field
	Pattern      string
	CategoryID   uuid.UUID
	Active       bool
	UsageCount   int64
}

const regexPrefix = "re:"

// Validate checks the fields a rule needs before it can ever match.
func (r Rule) Validate() error {
	if r.RestaurantID == uuid.Nil {
		return errors.New("restaurant_id is required")
	}
	if r.CategoryID == uuid.Nil {
		return errors.New("category_id is required")
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return errors.New("pattern is required")
	}
	switch r.Field {
	case FieldName, FieldCategoryHint:
	default:
		return errors.New("field must be name or category_hint")
	}
	if strings.HasPrefix(r.Pattern, regexPrefix) {
		if _, err := regexp.Compile(strings.TrimPrefix(r.Pattern, regexPrefix)); err != nil {
			return errors.New("invalid pattern regex: " + err.Error())
		}
	}
	return nil
}

// Match reports whether the rule matches a row's name and category hint.
// A bad regex returns an error so the classifier can skip the rule without
// aborting the batch.
func (r Rule) Match(name, hint string) (bool, error) {
	subject := name
	if r.Field == FieldCategoryHint {
		subject = hint
	}
	if strings.HasPrefix(r.Pattern, regexPrefix) {
		re, err := regexp.Compile("(?i)" + strings.TrimPrefix(r.Pattern, regexPrefix))
		if err != nil {
			return false, err
		}
		return re.MatchString(subject), nil
	}
	return strings.Contains(strings.ToLower(subject), strings.ToLower(r.Pattern)), nil
}

// SortByPriority orders rules best-first: descending priority, ties broken
// by id for determinism.
func SortByPriority(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority > rs[j].Priority
		}
		return rs[i].ID.String() < rs[j].ID.String()
	})
}
