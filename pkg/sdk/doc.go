// Package assetsearch embeds the asset search engine in a Go process.
//
// The client owns an index engine (an in-memory or on-disk bleve index, or a
// Redis instance with search modules), answers full-text, live and
// re-ranked queries, serves type-ahead suggestions and, when given a
// Source, keeps the index in sync with it through the priority queue.
//
//	client, _ := assetsearch.New(ctx, assetsearch.WithMemoryIndex())
//	defer client.Close()
//	_ = client.Upsert(ctx, docs...)
//	page, _ := client.Search(ctx, assetsearch.Query{Text: "sales orders", PageSize: 10})
//	sugg, _ := client.Suggest(ctx, "sal", 5)
//
// Keeping the index in sync with a system of record:
//
//	client, _ := assetsearch.New(ctx, assetsearch.WithMemoryIndex(), assetsearch.WithSource(src))
//	go func() { _ = client.RunSync(ctx) }()
//	ref, _ := client.ScheduleFullSync()
package assetsearch
