package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslate(t *testing.T) {
	if Translate(nil, "patient") != nil {
		t.Error("expected nil for nil error")
	}

	err := Translate(pgx.ErrNoRows, "patient 7")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	err = Translate(&pgconn.PgError{Code: "23505", ConstraintName: "uq_demographics_nhs_number"}, "demographics")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	other := &pgconn.PgError{Code: "23503"}
	err = Translate(other, "episode")
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Errorf("unexpected classification: %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("expected the pg error to stay wrapped")
	}
}
