package sqlite

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ashita-ai/automata/internal/apperrors"
)

// classify maps a modernc sqlite error onto the registry error taxonomy.
func classify(op string, err error) error {
	if err == nil || apperrors.IsClassified(err) {
		return err
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch code := sqErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apperrors.Conflict("%s: %s already exists", op, uniqueSubject(sqErr.Error()))
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return &apperrors.NotFoundError{Entity: "referenced automaton or version"}
		case code == sqlite3.SQLITE_CONSTRAINT_CHECK:
			return apperrors.Invalid("row", sqErr.Error())
		case code == sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return apperrors.Conflict("%s: %s", op, sqErr.Error())
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return apperrors.Conflict("%s: concurrent modification", op)
		}
	}
	return apperrors.Storage(op, err)
}

// uniqueSubject names the entity from a message such as
// "UNIQUE constraint failed: automata_tools.automaton_id, automata_tools.name".
func uniqueSubject(msg string) string {
	switch {
	case strings.Contains(msg, "automata_versions.automaton_id") && !strings.Contains(msg, "version_number"):
		return "current version"
	case strings.Contains(msg, "automata_versions"):
		return "version"
	case strings.Contains(msg, "automata_tools"):
		return "tool"
	case strings.Contains(msg, "automata_tests"):
		return "test"
	case strings.Contains(msg, "automata."):
		return "automaton"
	}
	return "row"
}
