package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

// Dialect captures the differences between backends that the shared
// filter builders care about.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Encode converts a Go value to the backend's column representation.
	// Nil means values are passed through unchanged.
	Encode func(v any) any
	// TagMatch is a condition with one ? that is true when the automaton's
	// tags contain the bound tag.
	TagMatch string
}

// DollarPlaceholder renders Postgres-style $n parameters.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// QuestionPlaceholder renders SQLite-style ? parameters.
func QuestionPlaceholder(int) string { return "?" }

// Where accumulates AND-ed conditions. Conditions are written with ? marks
// which are rewritten to the dialect's placeholders as they are added.
type Where struct {
	d     Dialect
	conds []string
	args  []any
}

// NewWhere returns an empty builder for d.
func NewWhere(d Dialect) *Where {
	return &Where{d: d}
}

// Add appends cond, binding one argument per ? in cond.
func (w *Where) Add(cond string, args ...any) *Where {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(args) {
			b.WriteString(w.d.Placeholder(len(w.args) + 1))
			w.args = append(w.args, w.encode(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
	return w
}

// Bind appends v as the next argument and returns its placeholder, for
// parameters outside the WHERE clause such as LIMIT.
func (w *Where) Bind(v any) string {
	w.args = append(w.args, w.encode(v))
	return w.d.Placeholder(len(w.args))
}

func (w *Where) encode(v any) any {
	if w.d.Encode == nil {
		return v
	}
	return w.d.Encode(v)
}

// String renders " WHERE a AND b", or "" when there are no conditions.
func (w *Where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the bound arguments in placeholder order.
func (w *Where) Args() []any { return w.args }

// AutomatonWhere builds the conditions for ListAutomata.
func AutomatonWhere(d Dialect, f model.AutomatonFilter) *Where {
	w := NewWhere(d)
	if f.Domain != "" {
		w.Add("domain = ?", f.Domain)
	}
	if f.Tag != "" {
		w.Add(d.TagMatch, f.Tag)
	}
	if f.ActiveOnly {
		w.Add("active = ?", true)
	}
	return w
}

// ResultWhere builds the conditions for ListTestResults. Exactly one of
// TestID and AutomatonID must be set.
func ResultWhere(d Dialect, f model.ResultFilter, after *model.ResultCursor) (*Where, error) {
	if err := ValidateResultFilter(f); err != nil {
		return nil, err
	}
	w := NewWhere(d)
	if f.TestID != nil {
		w.Add("test_id = ?", *f.TestID)
	} else {
		w.Add("automaton_id = ?", *f.AutomatonID)
	}
	if f.Status != "" {
		w.Add("status = ?", string(f.Status))
	}
	if f.Since != nil {
		w.Add("executed_at >= ?", *f.Since)
	}
	if after != nil {
		w.Add("(executed_at, id) < (?, ?)", after.ExecutedAt, after.ID)
	}
	return w, nil
}

// ValidateResultFilter checks the shape of a result query.
func ValidateResultFilter(f model.ResultFilter) error {
	switch {
	case f.TestID == nil && f.AutomatonID == nil:
		return apperrors.Invalid("filter", "one of test_id or automaton_id is required")
	case f.TestID != nil && f.AutomatonID != nil:
		return apperrors.Invalid("filter", "test_id and automaton_id are mutually exclusive")
	case f.Status != "" && !f.Status.Valid():
		return apperrors.Invalid("status", "unknown status "+strconv.Quote(string(f.Status)))
	}
	return nil
}

// ChangeWhere builds the conditions for ListChanges. Since and Until are
// inclusive.
func ChangeWhere(d Dialect, f model.ChangeFilter) *Where {
	w := NewWhere(d)
	w.Add("automaton_id = ?", f.AutomatonID)
	if f.ChangeType != "" {
		w.Add("change_type = ?", string(f.ChangeType))
	}
	if f.Since != nil {
		w.Add("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		w.Add("created_at <= ?", *f.Until)
	}
	return w
}

// MetricWhere builds the conditions shared by metric listing and
// aggregation. The date range is inclusive on both ends.
func MetricWhere(d Dialect, f model.MetricFilter) *Where {
	w := NewWhere(d)
	w.Add("automaton_id = ?", f.AutomatonID)
	if f.VersionID != nil {
		w.Add("version_id = ?", *f.VersionID)
	}
	if f.MetricType != "" {
		w.Add("metric_type = ?", f.MetricType)
	}
	if f.Range.From != nil {
		w.Add("evaluation_date >= ?", *f.Range.From)
	}
	if f.Range.To != nil {
		w.Add("evaluation_date <= ?", *f.Range.To)
	}
	return w
}

// LimitClause renders " LIMIT n" bound through w, or "" for n <= 0.
func LimitClause(w *Where, n int) string {
	if n <= 0 {
		return ""
	}
	return " LIMIT " + w.Bind(n)
}

// EncodeSQLite converts times to UTC microseconds and UUIDs to their
// canonical string form, matching the SQLite schema.
func EncodeSQLite(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().UnixMicro()
	case uuid.UUID:
		return x.String()
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return v
}
