package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/frontdesk/models"
)

func TestGetMissingDocumentReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(`SELECT body FROM documents WHERE collection=\$1 AND id=\$2`).
		WithArgs(models.CollectionHelpRequests, "missing").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	_, err = st.Get(context.Background(), models.CollectionHelpRequests, "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPutUpsertsDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(`INSERT INTO documents \(collection, id, body, version, created_at, updated_at\) VALUES \(\$1,\$2,\$3,1,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP\) ON CONFLICT \(collection, id\) DO UPDATE SET`).
		WithArgs(models.CollectionKnowledge, "k1", `{"question":"hours"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.Put(context.Background(), models.CollectionKnowledge, "k1", map[string]string{"question": "hours"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryByFieldUsesJSONOperator(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(`SELECT body FROM documents WHERE collection=\$1 AND body->>\(\$2::text\) = \$3 ORDER BY created_at, id`).
		WithArgs(models.CollectionHelpRequests, "status", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"id":"a","status":"PENDING"}`)).
			AddRow([]byte(`{"id":"b","status":"PENDING"}`)))

	docs, err := st.QueryByField(context.Background(), models.CollectionHelpRequests, "status", "PENDING")
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateRetriesAfterVersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	sel := `SELECT body, version FROM documents WHERE collection=\$1 AND id=\$2`
	upd := `UPDATE documents SET body=\$1, version=version\+1, updated_at=CURRENT_TIMESTAMP WHERE collection=\$2 AND id=\$3 AND version=\$4`

	mock.ExpectQuery(sel).WithArgs(models.CollectionHelpRequests, "r1").
		WillReturnRows(sqlmock.NewRows([]string{"body", "version"}).AddRow([]byte(`{"n":1}`), int64(3)))
	mock.ExpectExec(upd).WithArgs(sqlmock.AnyArg(), models.CollectionHelpRequests, "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs(models.CollectionHelpRequests, "r1").
		WillReturnRows(sqlmock.NewRows([]string{"body", "version"}).AddRow([]byte(`{"n":2}`), int64(4)))
	mock.ExpectExec(upd).WithArgs(`{"n":3}`, models.CollectionHelpRequests, "r1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	calls := 0
	err = st.Update(context.Background(), models.CollectionHelpRequests, "r1", func(cur json.RawMessage) (json.RawMessage, error) {
		calls++
		var v counter
		if err := json.Unmarshal(cur, &v); err != nil {
			return nil, err
		}
		v.N++
		return json.Marshal(v)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected fn to run twice, ran %d times", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdatePropagatesCallbackError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(`SELECT body, version FROM documents`).WithArgs(models.CollectionHelpRequests, "r1").
		WillReturnRows(sqlmock.NewRows([]string{"body", "version"}).AddRow([]byte(`{}`), int64(1)))

	err = st.Update(context.Background(), models.CollectionHelpRequests, "r1", func(json.RawMessage) (json.RawMessage, error) {
		return nil, models.ErrAlreadyFinalized
	})
	if !errors.Is(err, models.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLitePlaceholderRewrite(t *testing.T) {
	st := &Store{Dialect: DialectSQLite}
	got := st.q(`SELECT body FROM documents WHERE collection=$1 AND json_extract(body, '$.' || $2) = $3`)
	want := `SELECT body FROM documents WHERE collection=? AND json_extract(body, '$.' || ?) = ?`
	if got != want {
		t.Fatalf("unexpected rewrite:\n got %s\nwant %s", got, want)
	}
}

type counter struct {
	N int `json:"n"`
}
