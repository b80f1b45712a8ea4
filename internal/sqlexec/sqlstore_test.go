// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLStore{DB: db}, mock
}

func TestSQLStore_Query(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantRows  int
		wantRel   string
		expectErr bool
	}{
		{
			name: "rows in order",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT month, sales FROM monthly").WillReturnRows(
					sqlmock.NewRows([]string{"month", "sales"}).
						AddRow("2024-01", 10.0).
						AddRow("2024-02", 12.0))
			},
			wantRows: 2,
		},
		{
			name: "missing relation",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT month, sales FROM monthly").
					WillReturnError(errors.New("Catalog Error: Table with name monthly does not exist!"))
			},
			wantRel:   "monthly",
			expectErr: true,
		},
		{
			name: "other failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT month, sales FROM monthly").WillReturnError(assert.AnError)
			},
			expectErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			cols, rows, err := s.Query(context.Background(), "SELECT month, sales FROM monthly")
			require.NoError(t, mock.ExpectationsWereMet())
			if tt.expectErr {
				require.Error(t, err)
				var rnf *RelationNotFoundError
				if tt.wantRel != "" {
					require.ErrorAs(t, err, &rnf)
					assert.Equal(t, tt.wantRel, rnf.Relation)
				} else {
					assert.NotErrorAs(t, err, &rnf)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"month", "sales"}, cols)
			require.Len(t, rows, tt.wantRows)
			assert.Equal(t, "2024-01", rows[0].Get("month"))
			assert.Equal(t, 12.0, rows[1].Get("sales"))
		})
	}
}

func TestSQLStore_NotConnected(t *testing.T) {
	_, _, err := (&SQLStore{}).Query(context.Background(), "select 1")
	assert.EqualError(t, err, "database connection not established")
}

func TestInspector(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(
		sqlmock.NewRows([]string{"table_name"}).AddRow("costs").AddRow("Time_Entries"))
	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(
		sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("item_name", "text", "YES").
			AddRow("sales", "numeric", "NO"))

	in := NewInspector(s)
	missing, err := in.Missing(context.Background(), []string{"costs", "time_entries", "menu_mappings"})
	require.NoError(t, err)
	assert.Equal(t, []string{"menu_mappings"}, missing)

	cols, err := in.Columns(context.Background(), "public.costs")
	require.NoError(t, err)
	assert.Equal(t, []ColumnInfo{{Name: "item_name", Type: "text", Nullable: true}, {Name: "sales", Type: "numeric"}}, cols)

	// Served from cache: no further expectation registered.
	cols, err = in.Columns(context.Background(), "public.costs")
	require.NoError(t, err)
	assert.Len(t, cols, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
