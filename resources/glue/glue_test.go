package glue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/resources/s3"
	"github.com/lex00/cdkutils-go/stack"
)

func TestPrepareTableColumns(t *testing.T) {
	cols := PrepareTableColumns(map[string]string{
		"order_id": "INTEGER",
		"customer": "String",
		"amount":   "double",
		"qty":      "int",
		"note":     "str",
	})

	assert.Equal(t, []Column{
		{Name: "amount", Type: "double"},
		{Name: "customer", Type: "string"},
		{Name: "note", Type: "string"},
		{Name: "order_id", Type: "int"},
		{Name: "qty", Type: "int"},
	}, cols)
}

func TestCreateCrawler(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	c, err := CreateCrawler(st, "orders", CrawlerProps{
		DatabaseName: "raw",
		Role:         "arn:aws:iam::123456789012:role/glue",
		TablePrefix:  "orders_",
		Targets:      []S3Target{{Path: "s3://data-lake/raw/orders"}},
		Schedule:     "cron(0 6 * * ? *)",
	})
	require.NoError(t, err)
	assert.Equal(t, "profile-for-crawler-orders", c.ID())

	tmpl, err := st.Synth()
	require.NoError(t, err)
	props := tmpl.Resources[c.LogicalID()].Properties
	assert.Equal(t, "orders", props["Name"])
	assert.Equal(t, map[string]any{"ScheduleExpression": "cron(0 6 * * ? *)"}, props["Schedule"])
	assert.Equal(t, map[string]any{"S3Targets": []any{map[string]any{"Path": "s3://data-lake/raw/orders"}}}, props["Targets"])
	assert.NotContains(t, props, "Configuration")

	_, err = CreateCrawler(st, "norole", CrawlerProps{})
	assert.Error(t, err)
}

func TestCreateTable(t *testing.T) {
	st := stack.New("etl", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	db, err := CreateDatabase(st, "raw")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:glue:eu-central-1:123456789012:database/raw", db.Arn())

	bucket, err := s3.BucketFromName(st, "data-lake")
	require.NoError(t, err)

	table, err := CreateTable(st, db, "orders", TableProps{
		Bucket:  bucket,
		Prefix:  "raw/orders",
		Columns: PrepareTableColumns(map[string]string{"id": "integer"}),
	})
	require.NoError(t, err)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	input := tmpl.Resources[table.LogicalID()].Properties["TableInput"].(map[string]any)
	sd := input["StorageDescriptor"].(map[string]any)
	assert.Equal(t, "s3://data-lake/raw/orders", sd["Location"])
	assert.Equal(t, true, sd["Compressed"])
	assert.Equal(t, DataFormatParquet.InputFormat, sd["InputFormat"])
	assert.Equal(t, "EXTERNAL_TABLE", input["TableType"])
	assert.Equal(t, map[string]any{"Ref": "profileforgluedbraw"}, tmpl.Resources[table.LogicalID()].Properties["DatabaseName"])

	off := false
	plain, err := CreateTable(st, db, "events", TableProps{Bucket: bucket, Prefix: "raw/events", Compressed: &off, DataFormat: &DataFormatJSON})
	require.NoError(t, err)
	assert.False(t, *plain.TableInput.StorageDescriptor.Compressed)
	assert.Equal(t, "json", plain.TableInput.Parameters["classification"])

	_, err = CreateTable(st, nil, "x", TableProps{Bucket: bucket})
	assert.ErrorIs(t, err, ErrMissingDatabase)
}
