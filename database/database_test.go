/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entorm/types"
)

func newMemoryManager(t *testing.T) AbstractDatabaseManager {
	t.Helper()
	mgr := NewDatabaseManager(&ConnectionConfig{Type: "sqlite", DBName: MemoryDBName})
	mgr.SetLogger(NopLogger{})
	require.NoError(t, mgr.Connect(context.Background()))
	t.Cleanup(func() { _ = mgr.Disconnect() })
	return mgr
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connection_config:
  type: postgres
  host: db.local
  port: 5432
  dbname: app
  slow_query_time: 500ms
data_migrate_config:
  enable_migrate_on_startup: true
  enable_foreign_key: true
  foreign_key_file: fk.yaml
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.local", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	// defaults survive for unset fields
	assert.Equal(t, 10*time.Second, cfg.ConnectionConfig.ConnectTimeout)
	assert.True(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "fk.yaml", cfg.DataMigrateConfig.ForeignKeyFile)

	_, err = ParseConfig([]byte("connection_config: [oops"))
	assert.Error(t, err)

	_, err = LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		err  error
		want SQLError
	}{
		{sql.ErrNoRows, NoRowsErr},
		{fmt.Errorf("scan: %w", sql.ErrNoRows), NoRowsErr},
		{fmt.Errorf("%w: nested", ErrTxnState), TxnStateErr},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{&mysql.MySQLError{Number: 1146}, NoTableErr},
		{&mysql.MySQLError{Number: 1452}, ForeignKeyViolationErr},
		{&pq.Error{Code: "23505"}, DuplicateKeyErr},
		{&pq.Error{Code: "42P01"}, NoTableErr},
		{errors.New("UNIQUE constraint failed: authors.id"), DuplicateKeyErr},
		{errors.New("no such table: posts"), NoTableErr},
		{errors.New("index idx_a already exists"), ExistIndexErr},
		{errors.New("NOT NULL constraint failed: posts.title"), NotNullViolationErr},
	}
	for _, c := range cases {
		is, kind := IsSqlError(c.err)
		assert.True(t, is, c.err.Error())
		assert.Equal(t, c.want, kind, c.err.Error())
	}

	is, _ := IsSqlError(errors.New("something else"))
	assert.False(t, is)
	is, _ = IsSqlError(nil)
	assert.False(t, is)
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("select", nil))

	err := WrapError("insert into authors", errors.New("UNIQUE constraint failed: authors.id"))
	var dbErr *types.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "insert into authors", dbErr.Op)
	assert.Equal(t, DuplicateKeyErr.String(), dbErr.Kind)
	assert.ErrorIs(t, err, types.ErrDatabase)

	assert.Same(t, err, WrapError("outer", err))
}

func TestNormalizeOperator(t *testing.T) {
	for in, want := range map[string]string{"==": "=", "<>": "!=", " Not In ": "NOT IN", "like": "LIKE"} {
		got, ok := NormalizeOperator(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := NormalizeOperator("~")
	assert.False(t, ok)
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()
	mgr := newMemoryManager(t)
	_, err := mgr.GetDB().ExecContext(ctx,
		`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, rank INTEGER, props TEXT)`)
	require.NoError(t, err)
	a := mgr.Adapter()

	for i, name := range []string{"one", "two", "three"} {
		res, err := a.Insert(ctx, "items", Row{"name": name, "rank": int64(i + 1), "props": "{}"}, "id")
		require.NoError(t, err)
		assert.True(t, res.HasLastInsertID)
		assert.Equal(t, int64(i+1), res.LastInsertID)
	}
	_, err = a.Insert(ctx, "items", Row{"name": nil, "rank": int64(9), "props": "{}"}, "")
	require.NoError(t, err)

	rows, err := a.Select(ctx, SelectQuery{
		Table:   "items",
		Columns: []string{"id", "name"},
		Where:   []Condition{{Column: "rank", Operator: "in", Value: []int64{1, 3, 9}}},
		Orders:  []Order{{Column: "rank", Desc: true}},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["name"])
	assert.Equal(t, "three", rows[1]["name"])

	n, err := a.Count(ctx, "items", []Condition{Eq("name", nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = a.Count(ctx, "items", []Condition{{Column: "rank", Operator: "IN", Value: []int64{}}})
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := a.Update(ctx, "items", Row{"name": "uno"}, []Condition{Eq("id", int64(1))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = a.Delete(ctx, "items", []Condition{{Column: "rank", Operator: ">", Value: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)

	_, err = a.Delete(ctx, "items", nil)
	assert.Error(t, err)
	_, err = a.Select(ctx, SelectQuery{Table: "items", Where: []Condition{{Column: "id", Operator: "~"}}})
	assert.Error(t, err)
}

func TestAdapterTransactions(t *testing.T) {
	ctx := context.Background()
	mgr := newMemoryManager(t)
	_, err := mgr.GetDB().ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	a := mgr.Adapter()

	assert.ErrorIs(t, a.TxnCommit(), ErrTxnState)
	assert.ErrorIs(t, a.TxnRollback(), ErrTxnState)

	require.NoError(t, a.TxnBegin(ctx))
	assert.True(t, a.InTxn())
	assert.ErrorIs(t, a.TxnBegin(ctx), ErrTxnState)
	_, err = a.Insert(ctx, "kv", Row{"k": "a", "v": "1"}, "")
	require.NoError(t, err)
	require.NoError(t, a.TxnRollback())
	assert.False(t, a.InTxn())

	n, err := a.Count(ctx, "kv", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, a.TxnBegin(ctx))
	_, err = a.Insert(ctx, "kv", Row{"k": "b", "v": "2"}, "")
	require.NoError(t, err)
	require.NoError(t, a.TxnCommit())

	n, err = a.Count(ctx, "kv", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerHealth(t *testing.T) {
	ctx := context.Background()
	mgr := newMemoryManager(t)

	require.NoError(t, mgr.Ping(ctx))
	status := mgr.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, mgr.GetStats().MaxOpenConns)
}

func TestSqliteDSN(t *testing.T) {
	assert.Contains(t, sqliteDSN(MemoryDBName), "mode=memory")
	assert.NotEqual(t, sqliteDSN(MemoryDBName), sqliteDSN(MemoryDBName))
	assert.Equal(t, "data.db", sqliteDSN("data"))
	assert.Equal(t, "app.db", sqliteDSN("app.db"))
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_RECONNECT_INTERVAL", "7")
	t.Setenv("DB_SLOW_QUERY_TIME", "750ms")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	f := NewDatabaseFactory()
	f.SetLogger(NopLogger{})
	cfg := DefaultConnectionConfig()
	cfg.Type = "postgres"
	f.overrideFromEnv(cfg)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 100, cfg.MaxOpenConns, "invalid values are ignored")
	assert.Equal(t, 7*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.SlowQueryTime)
	assert.True(t, cfg.EnableQueryLog)

	_, err := f.CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	assert.Error(t, err)
}
