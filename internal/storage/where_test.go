package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
	"github.com/ashita-ai/automata/internal/model"
)

var (
	pg = Dialect{Placeholder: DollarPlaceholder, TagMatch: "? = ANY(tags)"}
	sq = Dialect{Placeholder: QuestionPlaceholder, Encode: EncodeSQLite, TagMatch: "EXISTS (SELECT 1 FROM json_each(tags) WHERE value = ?)"}
)

func TestWhereEmpty(t *testing.T) {
	w := AutomatonWhere(pg, model.AutomatonFilter{})
	assert.Equal(t, "", w.String())
	assert.Empty(t, w.Args())
}

func TestAutomatonWherePlaceholders(t *testing.T) {
	f := model.AutomatonFilter{Domain: "booking", Tag: "beta", ActiveOnly: true}

	w := AutomatonWhere(pg, f)
	assert.Equal(t, " WHERE domain = $1 AND $2 = ANY(tags) AND active = $3", w.String())
	assert.Equal(t, []any{"booking", "beta", true}, w.Args())

	w = AutomatonWhere(sq, f)
	assert.Equal(t, " WHERE domain = ? AND EXISTS (SELECT 1 FROM json_each(tags) WHERE value = ?) AND active = ?", w.String())
	assert.Equal(t, []any{"booking", "beta", 1}, w.Args())
}

func TestResultWhereCursor(t *testing.T) {
	testID := uuid.MustParse("0190f5a0-0000-7000-8000-000000000001")
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cursor := &model.ResultCursor{ExecutedAt: at, ID: testID}

	w, err := ResultWhere(pg, model.ResultFilter{TestID: &testID, Status: model.TestStatusFailed}, cursor)
	require.NoError(t, err)
	limit := LimitClause(w, 50)
	assert.Equal(t, " WHERE test_id = $1 AND status = $2 AND (executed_at, id) < ($3, $4)", w.String())
	assert.Equal(t, " LIMIT $5", limit)
	assert.Equal(t, []any{testID, "failed", at, testID, 50}, w.Args())

	w, err = ResultWhere(sq, model.ResultFilter{TestID: &testID}, cursor)
	require.NoError(t, err)
	assert.Equal(t, []any{testID.String(), at.UnixMicro(), testID.String()}, w.Args())
}

func TestValidateResultFilter(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		f    model.ResultFilter
		ok   bool
	}{
		{"neither", model.ResultFilter{}, false},
		{"both", model.ResultFilter{TestID: &id, AutomatonID: &id}, false},
		{"bad status", model.ResultFilter{TestID: &id, Status: "flaky"}, false},
		{"by test", model.ResultFilter{TestID: &id}, true},
		{"by automaton", model.ResultFilter{AutomatonID: &id, Status: model.TestStatusPassed}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResultFilter(tt.f)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
			}
		})
	}
}

func TestMetricWhereInclusiveRange(t *testing.T) {
	id := uuid.New()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	w := MetricWhere(pg, model.MetricFilter{AutomatonID: id, MetricType: "accuracy", Range: model.DateRange{From: &from, To: &to}})
	assert.Equal(t, " WHERE automaton_id = $1 AND metric_type = $2 AND evaluation_date >= $3 AND evaluation_date <= $4", w.String())
}

func TestLimitClauseUnbounded(t *testing.T) {
	w := ChangeWhere(pg, model.ChangeFilter{AutomatonID: uuid.New()})
	assert.Equal(t, "", LimitClause(w, 0))
	assert.Len(t, w.Args(), 1)
}
