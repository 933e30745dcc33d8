package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreFromClient(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"short", "longer than input", false},
		{"", "", true},
	}
	for _, tc := range tests {
		if got := containsIgnoreCase(tc.s, tc.sub); got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- hash.go tests ---

func TestHReplace_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var seen []string
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			for _, cmd := range cmds {
				seen = append(seen, cmd.Commands()[0])
			}
			return []rueidis.RedisResult{
				mock.Result(mock.RedisString("OK")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisString("QUEUED")),
				mock.Result(mock.RedisArray(mock.RedisInt64(1), mock.RedisInt64(2))),
			}
		})

	s := NewStoreFromClient(c)
	err := s.HReplace(context.Background(), "asset:1", map[string]string{"name": "Sales", "code": "S1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "MULTI DEL HSET EXEC"
	if got := strings.Join(seen, " "); got != want {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestHReplace_ExecError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString("OK")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.Result(mock.RedisString("QUEUED")),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	s := NewStoreFromClient(c)
	err := s.HReplace(context.Background(), "asset:1", map[string]string{"name": "Sales"})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestHReplace_NoFields(t *testing.T) {
	s := NewStoreFromClient(nil) // client not called
	if err := s.HReplace(context.Background(), "asset:1", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "mykey"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreFromClient(c)
	if err := s.HSet(context.Background(), "mykey", map[string]string{"f1": "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	err := s.HSet(context.Background(), "mykey", map[string]string{"f": "v"})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestHSetNX(t *testing.T) {
	tests := []struct {
		name  string
		reply int64
		want  bool
	}{
		{"written", 1, true},
		{"already set", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("HSETNX", "assign:exp", "u1", "treatment")).
				Return(mock.Result(mock.RedisInt64(tc.reply)))

			s := NewStoreFromClient(c)
			got, err := s.HSetNX(context.Background(), "assign:exp", "u1", "treatment")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "assign:exp", "u1")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreFromClient(c)
	_, err := s.HGet(context.Background(), "assign:exp", "u1")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestHGetAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "mykey")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"f1": mock.RedisString("v1"),
			"f2": mock.RedisString("v2"),
		})))

	s := NewStoreFromClient(c)
	m, err := s.HGetAll(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["f1"] != "v1" || m["f2"] != "v2" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestDel_Single(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreFromClient(c)
	if err := s.Del(context.Background(), "mykey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_Many(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(1)),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	s := NewStoreFromClient(c)
	err := s.Del(context.Background(), "k1", "k2")
	if !isDBError(err) || !strings.Contains(err.Error(), "k2") {
		t.Fatalf("expected db.Error naming k2, got %v", err)
	}
}

func TestDel_None(t *testing.T) {
	s := NewStoreFromClient(nil)
	if err := s.Del(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreFromClient(c)
	exists, err := s.Exists(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // more pages
					mock.RedisArray(mock.RedisString("key1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("key2")),
			))
		}).Times(2)

	s := NewStoreFromClient(c)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreFromClient(c)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreFromClient(c)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL_UsesMilliseconds(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "mykey", "myvalue", "PX", "30000")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreFromClient(c)
	if err := s.SetWithTTL(context.Background(), "mykey", []byte("myvalue"), 30*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- list.go tests ---

func TestRPush_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("RPUSH", "dlq", "a", "b")).
		Return(mock.Result(mock.RedisInt64(2)))

	s := NewStoreFromClient(c)
	if err := s.RPush(context.Background(), "dlq", []byte("a"), []byte("b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRPush_Empty(t *testing.T) {
	s := NewStoreFromClient(nil)
	if err := s.RPush(context.Background(), "dlq"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLRange_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("LRANGE", "dlq", "0", "-1")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisBlobString(`{"a":1}`),
			mock.RedisBlobString(`{"a":2}`),
		)))

	s := NewStoreFromClient(c)
	items, err := s.LRange(context.Background(), "dlq", 0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || string(items[1]) != `{"a":2}` {
		t.Errorf("unexpected items: %q", items)
	}
}

func TestLLen_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("LLEN", "dlq")).
		Return(mock.Result(mock.RedisInt64(7)))

	s := NewStoreFromClient(c)
	n, err := s.LLen(context.Background(), "dlq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "test:idx"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreFromClient(c)
	idx := &db.IndexDefinition{
		Name:     "test:idx",
		Prefixes: []string{"test:"},
		Fields: []db.IndexField{
			{Name: "status", Type: db.IndexFieldTag},
		},
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_CaseSensitiveTags(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return strings.Contains(strings.Join(cmd, " "),
				"SCHEMA status TAG CASESENSITIVE tags TAG SEPARATOR , CASESENSITIVE")
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreFromClient(c)
	idx := db.NewIndex("test:idx").
		TagWithOpts("status", "", true).
		TagWithOpts("tags", ",", true).
		MustBuild()
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreFromClient(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	if err := s.CreateIndex(context.Background(), idx); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "test:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreFromClient(c)
	if err := s.DropIndex(context.Background(), "test:idx"); !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexInfo_ScalarsOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("index_name"), mock.RedisString("test:idx"),
			mock.RedisString("num_docs"), mock.RedisInt64(12),
			mock.RedisString("attributes"), mock.RedisArray(mock.RedisString("x")),
			mock.RedisString("indexing"), mock.RedisString("0"),
		)))

	s := NewStoreFromClient(c)
	info, err := s.IndexInfo(context.Background(), "test:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info["num_docs"] != "12" || info["indexing"] != "0" {
		t.Errorf("unexpected info: %v", info)
	}
	if _, ok := info["attributes"]; ok {
		t.Error("nested attributes should be skipped")
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name  string
		reply rueidis.RedisResult
		want  bool
	}{
		{"present", mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("test:idx"))), true},
		{"absent", mock.Result(mock.RedisError("Unknown Index name")), false},
		{"absent valkey wording", mock.Result(mock.RedisError("no such index")), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
				Return(tc.reply)

			s := NewStoreFromClient(c)
			got, err := s.IndexExists(context.Background(), "test:idx")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	if _, err := buildCreateArgs(&db.IndexDefinition{Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := buildCreateArgs(&db.IndexDefinition{Name: "test"}); err == nil {
		t.Error("expected error for empty fields")
	}
}

func TestBuildFieldArgs(t *testing.T) {
	tests := []struct {
		name  string
		field db.IndexField
		want  string
	}{
		{"tag", db.IndexField{Name: "f", Type: db.IndexFieldTag}, "f TAG"},
		{"tag separator", db.IndexField{Name: "tags", Type: db.IndexFieldTag, TagSeparator: ","}, "tags TAG SEPARATOR ,"},
		{"numeric sortable", db.IndexField{Name: "popularity", Type: db.IndexFieldNumeric, Sortable: true}, "popularity NUMERIC SORTABLE"},
		{"text weighted", db.IndexField{Name: "name", Type: db.IndexFieldText, Weight: 5, Sortable: true}, "name TEXT WEIGHT 5 SORTABLE"},
		{"text fractional weight", db.IndexField{Name: "categoryName", Type: db.IndexFieldText, Weight: 1.5}, "categoryName TEXT WEIGHT 1.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := buildFieldArgs(&tc.field)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(args, " "); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	if _, err := buildFieldArgs(&db.IndexField{Type: db.IndexFieldTag}); err == nil {
		t.Error("expected error for empty field name")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
}

// --- search.go tests ---

func TestSearch_Scored(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var args []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		DoAndReturn(func(_ context.Context, cmd rueidis.Completed) rueidis.RedisResult {
			args = cmd.Commands()
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(1),
				mock.RedisString("asset:1"),
				mock.RedisString("2.5"),
				mock.RedisArray(
					mock.RedisString("name"),
					mock.RedisString("Sales Report"),
				),
			))
		})

	s := NewStoreFromClient(c)
	res, err := s.Search(context.Background(), &db.Query{
		IndexName:  "idx",
		Text:       "sales",
		Fields:     []string{"name", "code"},
		Mode:       db.MatchExact | db.MatchPrefix,
		Limit:      10,
		WithScores: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	e := res.Entries[0]
	if e.Key != "asset:1" || e.Score != 2.5 || e.Fields["name"] != "Sales Report" {
		t.Errorf("unexpected entry: %+v", e)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"@name|code:(sales|sales*)", "WITHSCORES", "LIMIT 0 10", "DIALECT 2"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %q", want, joined)
		}
	}
}

func TestSearch_PlainSorted(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var args []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		DoAndReturn(func(_ context.Context, cmd rueidis.Completed) rueidis.RedisResult {
			args = cmd.Commands()
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(2),
				mock.RedisString("asset:1"),
				mock.RedisArray(mock.RedisString("name"), mock.RedisString("a")),
				mock.RedisString("asset:2"),
				mock.RedisArray(mock.RedisString("name"), mock.RedisString("b")),
			))
		})

	s := NewStoreFromClient(c)
	res, err := s.Search(context.Background(), &db.Query{
		IndexName: "idx",
		Offset:    20,
		Limit:     20,
		SortBy:    "popularity",
		SortDesc:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[1].Key != "asset:2" {
		t.Fatalf("unexpected entries: %+v", res.Entries)
	}
	if args[2] != "*" {
		t.Errorf("expected match-all query, got %q", args[2])
	}
	if !strings.Contains(strings.Join(args, " "), "SORTBY popularity DESC LIMIT 20 20") {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestSearch_UnknownIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisError("idx: no such index")))

	s := NewStoreFromClient(c)
	_, err := s.Search(context.Background(), &db.Query{IndexName: "idx", Limit: 10})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestSearch_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreFromClient(c)
	_, err := s.Search(context.Background(), &db.Query{IndexName: "idx", Limit: 10})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

func TestSearch_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.Search(ctx, &db.Query{Limit: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.Search(ctx, &db.Query{IndexName: "idx", Limit: -1}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestBuildTextClause(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		fields []string
		mode   db.MatchMode
		want   string
	}{
		{"empty", "   ", nil, db.MatchExact, ""},
		{"exact default", "Sales", nil, 0, "(sales)"},
		{"scoped prefix", "sa", []string{"name"}, db.MatchPrefix, "@name:(sa*)"},
		{"short prefix falls back to exact", "s", []string{"name"}, db.MatchPrefix, "@name:(s)"},
		{"fuzzy only on long terms", "repo ab", []string{"name"}, db.MatchExact | db.MatchFuzzy, "@name:(repo|%repo%) @name:(ab)"},
		{"escaped", "a-b", nil, db.MatchExact, `(a\-b)`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildTextClause(tc.text, tc.fields, tc.mode); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildQueryString_FilterAndText(t *testing.T) {
	cond, _ := filter.NewMatch("status", "published")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	got := buildQueryString(&db.Query{Text: "orders", Fields: []string{"name"}, Filters: expr})
	if got != "@status:{published} @name:(orders)" {
		t.Errorf("unexpected query: %q", got)
	}
}

// --- Filter building tests ---

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestBuildFilter_MustNumeric(t *testing.T) {
	gte := 1700000000000.0
	lte := 1800000000000.0
	rng, _ := filter.NewRangeFilter(nil, &gte, nil, &lte)
	cond, _ := filter.NewRange("updatedAt", rng)
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	if got := buildFilter(expr); got != `@updatedAt:[1700000000000 1800000000000]` {
		t.Errorf("unexpected filter: %q", got)
	}
}

func TestBuildFilter_Combined(t *testing.T) {
	must, _ := filter.NewMatch("type", "table")
	red, _ := filter.NewMatch("tags", "finance")
	blue, _ := filter.NewMatch("tags", "hr")
	not, _ := filter.NewMatch("status", "archived")
	expr, _ := filter.NewExpression(
		[]filter.Condition{must},
		[]filter.Condition{red, blue},
		[]filter.Condition{not},
	)

	want := `@type:{table} (@tags:{finance} | @tags:{hr}) -@status:{archived}`
	if got := buildFilter(expr); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildNumericFilter_Exclusive(t *testing.T) {
	gt := 5.0
	lt := 99.5
	rng, _ := filter.NewRangeFilter(&gt, nil, &lt, nil)
	if got := buildNumericFilter("qualityScore", rng); got != `@qualityScore:[(5 (99.5]` {
		t.Errorf("unexpected filter: %q", got)
	}
}

func TestBuildTagFilter_Escapes(t *testing.T) {
	if got := buildTagFilter("categoryId", "fin.ops-1"); got != `@categoryId:{fin\.ops\-1}` {
		t.Errorf("unexpected filter: %q", got)
	}
}

func TestEscapeQuery(t *testing.T) {
	input := `hello "world" @user {tag}`
	expected := `hello \"world\" \@user \{tag\}`
	if got := escapeQuery(input); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

// --- helpers ---

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

func TestIncrByAndExpire(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := NewStoreFromClient(c)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCRBY", "budget:k", "42")).
		Return(mock.Result(mock.RedisInt64(42)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXPIRE", "budget:k", "172800", "NX")).
		Return(mock.Result(mock.RedisInt64(1)))

	if err := s.IncrBy(context.Background(), "budget:k", 42); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if err := s.Expire(context.Background(), "budget:k", 48*time.Hour, true); err != nil {
		t.Fatalf("Expire: %v", err)
	}
}

func TestIncrBy_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := NewStoreFromClient(c)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCRBY", "k", "1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	err := s.IncrBy(context.Background(), "k", 1)
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpIncrBy {
		t.Fatalf("expected db.Error{INCRBY}, got %v", err)
	}
}
