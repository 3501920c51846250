// Package milvus wraps the Milvus SDK client for vector-only chunk storage.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/docqa/pkg/component"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

var _ component.Client = (*Client)(nil)

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	connCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(connCtx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Name returns the component identifier.
func (c *Client) Name() string {
	return "milvus"
}

// Ping verifies the server answers metadata requests. The probe collection
// does not need to exist; only transport failures surface.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption("_readiness_probe"))
	if err != nil {
		return fmt.Errorf("milvus ping failed: %w", err)
	}
	return nil
}

// Close closes the Milvus client connection.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Close(ctx)
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// VarCharField describes one VarChar metadata field in a collection schema.
type VarCharField struct {
	Name   string
	MaxLen int
}

// CollectionSchema defines a chunk collection: a VarChar primary key chosen
// by the caller, one float vector, and flat metadata fields.
type CollectionSchema struct {
	Name          string
	Description   string
	Dimension     int
	IDMaxLen      int
	VarCharFields []VarCharField
	Int64Fields   []string
}

// EnsureCollection creates the collection when absent, builds the vector
// index and loads it into memory. Existing collections are left untouched.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	idMaxLen := schema.IDMaxLen
	if idMaxLen == 0 {
		idMaxLen = 64
	}

	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description)

	collSchema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(idMaxLen)).
			WithIsPrimaryKey(true),
	)

	collSchema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)

	for _, f := range schema.VarCharFields {
		collSchema.WithField(
			entity.NewField().
				WithName(f.Name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(int64(f.MaxLen)),
		)
	}
	for _, name := range schema.Int64Fields {
		collSchema.WithField(
			entity.NewField().
				WithName(name).
				WithDataType(entity.FieldTypeInt64),
		)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.L2, 128)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// Row is one record keyed by a caller-chosen string ID.
type Row struct {
	ID      string
	Vector  []float32
	VarChar map[string]string
	Int64   map[string]int64
}

// buildColumns converts rows to column-based form. All rows must carry the
// same field sets; the first row defines them.
func buildColumns(rows []Row) ([]column.Column, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to convert")
	}

	ids := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		vectors[i] = r.Vector
	}

	columns := []column.Column{
		column.NewColumnVarChar("id", ids),
		column.NewColumnFloatVector("embedding", len(rows[0].Vector), vectors),
	}

	for name := range rows[0].VarChar {
		values := make([]string, len(rows))
		for i, r := range rows {
			values[i] = r.VarChar[name]
		}
		columns = append(columns, column.NewColumnVarChar(name, values))
	}
	for name := range rows[0].Int64 {
		values := make([]int64, len(rows))
		for i, r := range rows {
			values[i] = r.Int64[name]
		}
		columns = append(columns, column.NewColumnInt64(name, values))
	}

	return columns, nil
}

// Insert inserts rows and flushes so they are immediately visible.
// Milvus does not enforce primary-key uniqueness on insert; callers that
// need upsert semantics use Upsert.
func (c *Client) Insert(ctx context.Context, collectionName string, rows []Row) error {
	columns, err := buildColumns(rows)
	if err != nil {
		return err
	}

	if _, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...)); err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}

	return c.flush(ctx, collectionName)
}

// Upsert writes rows, replacing any existing rows with the same IDs.
func (c *Client) Upsert(ctx context.Context, collectionName string, rows []Row) error {
	columns, err := buildColumns(rows)
	if err != nil {
		return err
	}

	if _, err := c.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...)); err != nil {
		return fmt.Errorf("failed to upsert data: %w", err)
	}

	return c.flush(ctx, collectionName)
}

func (c *Client) flush(ctx context.Context, collectionName string) error {
	// Flushing per batch is costly at scale but keeps freshly ingested
	// chunks retrievable without waiting for background segment seals.
	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// QueryByID fetches the named output fields of one row. The second return
// is false when no row carries the ID.
func (c *Client) QueryByID(ctx context.Context, collectionName, id string, outputFields []string) (map[string]any, bool, error) {
	expr := fmt.Sprintf("id == %s", strconv.Quote(id))
	rs, err := c.client.Query(ctx, milvusclient.NewQueryOption(collectionName).
		WithFilter(expr).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, false, fmt.Errorf("failed to query by id: %w", err)
	}

	if rs.ResultCount == 0 {
		return nil, false, nil
	}

	fields := make(map[string]any, len(rs.Fields))
	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			fields[col.Name()] = col.Data()[0]
		case *column.ColumnInt64:
			fields[col.Name()] = col.Data()[0]
		}
	}
	return fields, true, nil
}

// SearchHit is a single vector search result.
type SearchHit struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// SearchVector performs an ANN search, optionally constrained by a filter
// expression. Scores are L2 distances: smaller means closer.
func (c *Client) SearchVector(ctx context.Context, collectionName string, vector []float32, topK int, filterExpr string, outputFields []string) ([]SearchHit, error) {
	searchVectors := []entity.Vector{entity.FloatVector(vector)}

	opt := milvusclient.NewSearchOption(collectionName, topK, searchVectors).
		WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...)
	if filterExpr != "" {
		opt = opt.WithFilter(filterExpr)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return []SearchHit{}, nil
	}

	hits := make([]SearchHit, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		hit := SearchHit{
			Score:  results[0].Scores[i],
			Fields: make(map[string]any),
		}

		if idCol, ok := results[0].IDs.(*column.ColumnVarChar); ok {
			hit.ID = idCol.Data()[i]
		}

		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				hit.Fields[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				hit.Fields[col.Name()] = col.Data()[i]
			}
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// DeleteByIDs deletes rows by their string IDs.
func (c *Client) DeleteByIDs(ctx context.Context, collectionName string, ids []string) error {
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithStringIDs("id", ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collectionName)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
