// Package glue declares crawlers, catalog databases and tables.
package glue

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/s3"
	"github.com/lex00/cdkutils-go/stack"
)

// ErrMissingDatabase is returned when a table has no database.
var ErrMissingDatabase = errors.New("glue table requires a database")

// S3Target is a crawler target path.
type S3Target struct {
	Path       string
	Exclusions []string
}

// CrawlerTargets lists what a crawler scans.
type CrawlerTargets struct {
	S3Targets []S3Target
}

// Schedule runs a crawler on a cron expression.
type Schedule struct {
	ScheduleExpression string
}

// Crawler is an AWS::Glue::Crawler.
type Crawler struct {
	stack.Construct `json:"-"`
	Name            string
	Role            any
	DatabaseName    any
	TablePrefix     string
	Targets         *CrawlerTargets
	Configuration   string
	Schedule        *Schedule
}

func (*Crawler) ResourceType() string { return "AWS::Glue::Crawler" }

// CrawlerProps configures CreateCrawler.
type CrawlerProps struct {
	DatabaseName  any
	Role          any // role ARN or name
	TablePrefix   string
	Targets       []S3Target
	Configuration string
	Schedule      string // e.g. "cron(0 6 * * ? *)"
}

// CreateCrawler declares crawler name under "profile-for-crawler-<name>".
func CreateCrawler(st *stack.Stack, name string, props CrawlerProps) (*Crawler, error) {
	if props.Role == nil {
		return nil, fmt.Errorf("crawler %q: role is required", name)
	}
	c := &Crawler{
		Name:          name,
		Role:          props.Role,
		DatabaseName:  props.DatabaseName,
		TablePrefix:   props.TablePrefix,
		Targets:       &CrawlerTargets{S3Targets: props.Targets},
		Configuration: props.Configuration,
	}
	if props.Schedule != "" {
		c.Schedule = &Schedule{ScheduleExpression: props.Schedule}
	}
	if err := st.Add("profile-for-crawler-"+name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DatabaseInput names a catalog database.
type DatabaseInput struct {
	Name        string
	Description string
}

// Database is an AWS::Glue::Database.
type Database struct {
	stack.Construct `json:"-"`
	CatalogId       any
	DatabaseInput   DatabaseInput
}

func (*Database) ResourceType() string { return "AWS::Glue::Database" }

// Name returns the database name.
func (d *Database) Name() any { return d.Ref() }

// Arn returns arn:aws:glue:<region>:<account>:database/<name>.
func (d *Database) Arn() any {
	return d.Stack().FormatArn(stack.ArnFormat{Service: "glue", Resource: "database/" + d.DatabaseInput.Name})
}

// CreateDatabase declares database name under "profile-for-glue-db-<name>".
func CreateDatabase(st *stack.Stack, name string) (*Database, error) {
	d := &Database{CatalogId: st.Account(), DatabaseInput: DatabaseInput{Name: name}}
	if err := st.Add("profile-for-glue-db-"+name, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Column is a table column.
type Column struct {
	Name    string `json:"Name"`
	Type    string `json:"Type"`
	Comment string `json:"Comment,omitempty"`
}

// Column types produced by PrepareTableColumns.
const (
	TypeString  = "string"
	TypeInteger = "int"
)

// PrepareTableColumns turns name → type details into columns sorted by name.
// A type that is a substring of "string" becomes string, one that is a
// substring of "integer" becomes int, and any other type is kept lowercased.
func PrepareTableColumns(details map[string]string) []Column {
	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]Column, 0, len(names))
	for _, name := range names {
		typ := strings.ToLower(details[name])
		switch {
		case strings.Contains("string", typ):
			typ = TypeString
		case strings.Contains("integer", typ):
			typ = TypeInteger
		}
		columns = append(columns, Column{Name: name, Type: typ})
	}
	return columns
}

// DataFormat describes how table data is stored.
type DataFormat struct {
	Classification       string
	InputFormat          string
	OutputFormat         string
	SerializationLibrary string
}

// Data formats.
var (
	DataFormatParquet = DataFormat{
		Classification:       "parquet",
		InputFormat:          "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat",
		OutputFormat:         "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat",
		SerializationLibrary: "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe",
	}
	DataFormatJSON = DataFormat{
		Classification:       "json",
		InputFormat:          "org.apache.hadoop.mapred.TextInputFormat",
		OutputFormat:         "org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat",
		SerializationLibrary: "org.openx.data.jsonserde.JsonSerDe",
	}
	DataFormatCSV = DataFormat{
		Classification:       "csv",
		InputFormat:          "org.apache.hadoop.mapred.TextInputFormat",
		OutputFormat:         "org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat",
		SerializationLibrary: "org.apache.hadoop.hive.serde2.lazy.LazySimpleSerDe",
	}
)

// SerdeInfo names the serialization library.
type SerdeInfo struct {
	SerializationLibrary string
}

// StorageDescriptor locates and describes table data.
type StorageDescriptor struct {
	Location     any
	Columns      []Column
	Compressed   *bool
	InputFormat  string
	OutputFormat string
	SerdeInfo    SerdeInfo
}

// TableInput is the TableInput property of a table.
type TableInput struct {
	Name              string
	Description       string
	TableType         string
	Parameters        map[string]any
	PartitionKeys     []Column
	StorageDescriptor StorageDescriptor
}

// Table is an AWS::Glue::Table.
type Table struct {
	stack.Construct `json:"-"`
	CatalogId       any
	DatabaseName    any
	TableInput      TableInput
}

func (*Table) ResourceType() string { return "AWS::Glue::Table" }

// TableProps configures CreateTable.
type TableProps struct {
	Bucket        s3.IBucket
	Prefix        string
	Columns       []Column
	PartitionKeys []Column
	Compressed    *bool       // default true
	DataFormat    *DataFormat // default parquet
	Description   string
}

// CreateTable declares an external table under
// "profile-for-glue-table-<name>" stored at s3://<bucket>/<prefix>.
func CreateTable(st *stack.Stack, db *Database, name string, props TableProps) (*Table, error) {
	if db == nil {
		return nil, fmt.Errorf("table %q: %w", name, ErrMissingDatabase)
	}
	if props.Bucket == nil {
		return nil, fmt.Errorf("table %q: bucket is required", name)
	}
	format := DataFormatParquet
	if props.DataFormat != nil {
		format = *props.DataFormat
	}
	compressed := true
	if props.Compressed != nil {
		compressed = *props.Compressed
	}

	t := &Table{
		CatalogId:    st.Account(),
		DatabaseName: db.Name(),
		TableInput: TableInput{
			Name:        name,
			Description: props.Description,
			TableType:   "EXTERNAL_TABLE",
			Parameters: map[string]any{
				"classification":     format.Classification,
				"has_encrypted_data": "false",
			},
			PartitionKeys: props.PartitionKeys,
			StorageDescriptor: StorageDescriptor{
				Location:     intrinsics.Concat("s3://", props.Bucket.Name(), "/", props.Prefix),
				Columns:      props.Columns,
				Compressed:   &compressed,
				InputFormat:  format.InputFormat,
				OutputFormat: format.OutputFormat,
				SerdeInfo:    SerdeInfo{SerializationLibrary: format.SerializationLibrary},
			},
		},
	}
	if err := st.Add("profile-for-glue-table-"+name, t); err != nil {
		return nil, err
	}
	return t, nil
}
