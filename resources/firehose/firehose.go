// Package firehose declares Kinesis Data Firehose delivery streams that
// convert JSON records to Parquet and write them to S3.
package firehose

import (
	"errors"

	"github.com/lex00/cdkutils-go/stack"
)

// Dynamic partitioning prefixes appended to the output prefix.
const (
	DynamicOutputPath = "/year=!{timestamp:yyyy}/month=!{timestamp:MM}/!{timestamp:dd}_rand=!{firehose:random-string}"
	DynamicErrorPath  = "_failures/!{firehose:error-output-type}/year=!{timestamp:yyyy}/month=!{timestamp:MM}/!{timestamp:dd}"
)

// ErrMissingDestination is returned when a stream has no S3 destination.
var ErrMissingDestination = errors.New("delivery stream has no S3 destination")

// BufferingHints controls when records are flushed.
type BufferingHints struct {
	IntervalInSeconds int
	SizeInMBs         int
}

// DefaultBufferingHints flushes every 60 seconds or 128 MB.
func DefaultBufferingHints() *BufferingHints {
	return &BufferingHints{IntervalInSeconds: 60, SizeInMBs: 128}
}

// CloudWatchLoggingOptions sends delivery errors to a log stream.
type CloudWatchLoggingOptions struct {
	Enabled       bool
	LogGroupName  any
	LogStreamName any
}

type ParquetSerDe struct {
	Compression string
}

type Serializer struct {
	ParquetSerDe *ParquetSerDe
}

type OutputFormatConfiguration struct {
	Serializer Serializer
}

type HiveJsonSerDe struct{}

type Deserializer struct {
	HiveJsonSerDe *HiveJsonSerDe
}

type InputFormatConfiguration struct {
	Deserializer Deserializer
}

// SchemaConfiguration points at the Glue table describing the records.
type SchemaConfiguration struct {
	DatabaseName any
	TableName    any
	RoleARN      any
}

// DataFormatConversion converts incoming records before delivery.
type DataFormatConversion struct {
	Enabled                   bool
	InputFormatConfiguration  InputFormatConfiguration
	OutputFormatConfiguration OutputFormatConfiguration
	SchemaConfiguration       SchemaConfiguration
}

// ParquetConversion converts Hive JSON records to Parquet using the schema
// of a Glue table. compression defaults to SNAPPY.
func ParquetConversion(database, table, roleArn any, compression string) *DataFormatConversion {
	if compression == "" {
		compression = "SNAPPY"
	}
	return &DataFormatConversion{
		Enabled: true,
		InputFormatConfiguration: InputFormatConfiguration{
			Deserializer: Deserializer{HiveJsonSerDe: &HiveJsonSerDe{}},
		},
		OutputFormatConfiguration: OutputFormatConfiguration{
			Serializer: Serializer{ParquetSerDe: &ParquetSerDe{Compression: compression}},
		},
		SchemaConfiguration: SchemaConfiguration{DatabaseName: database, TableName: table, RoleARN: roleArn},
	}
}

// ExtendedS3Destination is the ExtendedS3DestinationConfiguration property.
type ExtendedS3Destination struct {
	BucketARN                         any
	RoleARN                           any
	Prefix                            string
	ErrorOutputPrefix                 string
	BufferingHints                    *BufferingHints
	CloudWatchLoggingOptions          *CloudWatchLoggingOptions
	DataFormatConversionConfiguration *DataFormatConversion
}

// S3DestinationProps configures ExtendedS3.
type S3DestinationProps struct {
	BucketArn     any
	OutputPrefix  string
	LogGroupName  any
	LogStreamName any
	RoleArn       any
	Database      any
	Table         any
	// BufferingHints defaults to DefaultBufferingHints.
	BufferingHints *BufferingHints
}

// ExtendedS3 builds a destination writing Parquet below OutputPrefix with
// dynamic year/month/day partitions, failures under "<prefix>_failures" and
// delivery logs in the given log stream.
func ExtendedS3(props S3DestinationProps) *ExtendedS3Destination {
	hints := props.BufferingHints
	if hints == nil {
		hints = DefaultBufferingHints()
	}
	return &ExtendedS3Destination{
		BucketARN:         props.BucketArn,
		RoleARN:           props.RoleArn,
		Prefix:            props.OutputPrefix + DynamicOutputPath,
		ErrorOutputPrefix: props.OutputPrefix + DynamicErrorPath,
		BufferingHints:    hints,
		CloudWatchLoggingOptions: &CloudWatchLoggingOptions{
			Enabled:       true,
			LogGroupName:  props.LogGroupName,
			LogStreamName: props.LogStreamName,
		},
		DataFormatConversionConfiguration: ParquetConversion(props.Database, props.Table, props.RoleArn, ""),
	}
}

// DeliveryStream is an AWS::KinesisFirehose::DeliveryStream.
type DeliveryStream struct {
	stack.Construct                    `json:"-"`
	DeliveryStreamName                 string
	DeliveryStreamType                 string
	ExtendedS3DestinationConfiguration *ExtendedS3Destination
}

func (*DeliveryStream) ResourceType() string { return "AWS::KinesisFirehose::DeliveryStream" }

// Arn returns the stream ARN.
func (d *DeliveryStream) Arn() any { return d.GetAtt("Arn") }

// CreateDeliveryStream declares stream name under construct ID
// "profile-for-delivery-stream-<name>".
func CreateDeliveryStream(st *stack.Stack, name string, dest *ExtendedS3Destination) (*DeliveryStream, error) {
	if dest == nil {
		return nil, ErrMissingDestination
	}
	d := &DeliveryStream{
		DeliveryStreamName:                 name,
		DeliveryStreamType:                 "DirectPut",
		ExtendedS3DestinationConfiguration: dest,
	}
	if err := st.Add("profile-for-delivery-stream-"+name, d); err != nil {
		return nil, err
	}
	return d, nil
}
