package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashita-ai/automata/internal/apperrors"
)

// classify maps a pgx error onto the registry error taxonomy.
func classify(op string, err error) error {
	if err == nil || apperrors.IsClassified(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperrors.Conflict("%s: %s already exists", op, constraintSubject(pgErr))
		case "23503": // foreign_key_violation
			return &apperrors.NotFoundError{Entity: referencedEntity(pgErr)}
		case "23514": // check_violation
			return apperrors.Invalid(constraintSubject(pgErr), "violates constraint "+pgErr.ConstraintName)
		case "23000": // integrity_constraint_violation, raised by the immutability triggers
			return apperrors.Conflict("%s: %s", op, pgErr.Message)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return apperrors.Conflict("%s: concurrent modification", op)
		}
	}
	return apperrors.Storage(op, err)
}

// constraintSubject turns a constraint name such as
// automata_tools_automaton_id_name_key into a readable subject.
func constraintSubject(pgErr *pgconn.PgError) string {
	switch {
	case strings.HasPrefix(pgErr.ConstraintName, "idx_automata_versions_current"):
		return "current version"
	case strings.HasPrefix(pgErr.ConstraintName, "automata_versions"):
		return "version"
	case strings.HasPrefix(pgErr.ConstraintName, "automata_tools"):
		return "tool"
	case strings.HasPrefix(pgErr.ConstraintName, "automata_tests"):
		return "test"
	case strings.HasPrefix(pgErr.ConstraintName, "automata_name"), strings.HasPrefix(pgErr.ConstraintName, "automata_pkey"):
		return "automaton"
	case pgErr.TableName != "":
		return pgErr.TableName
	}
	return "row"
}

func referencedEntity(pgErr *pgconn.PgError) string {
	if strings.Contains(pgErr.ConstraintName, "version_id") {
		return "version"
	}
	return "automaton"
}
