// Package intrinsics provides CloudFormation intrinsic functions and the IAM
// policy types shared by the resource factories.
//
// The core intrinsics come from cloudformation-schema-go:
//
//	Ref{LogicalName: "IngestQueue"}                   → {"Ref": "IngestQueue"}
//	GetAtt{LogicalName: "IngestQueue", Attribute: "Arn"}
//	Sub{String: "arn:${AWS::Partition}:sqs:${AWS::Region}:${AWS::AccountId}:q"}
//
// Concat builds strings out of literals and intrinsics, collapsing to a plain
// string when every part is a literal.
package intrinsics

import (
	"strings"

	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	Ref         = intrinsics.Ref
	GetAtt      = intrinsics.GetAtt
	Sub         = intrinsics.Sub
	SubWithMap  = intrinsics.SubWithMap
	Join        = intrinsics.Join
	Select      = intrinsics.Select
	Split       = intrinsics.Split
	GetAZs      = intrinsics.GetAZs
	If          = intrinsics.If
	Equals      = intrinsics.Equals
	Base64      = intrinsics.Base64
	ImportValue = intrinsics.ImportValue
	FindInMap   = intrinsics.FindInMap
	Cidr        = intrinsics.Cidr
)

// Pseudo parameters available in every template.
var (
	AWS_ACCOUNT_ID = intrinsics.AWS_ACCOUNT_ID
	AWS_PARTITION  = intrinsics.AWS_PARTITION
	AWS_REGION     = intrinsics.AWS_REGION
	AWS_STACK_NAME = intrinsics.AWS_STACK_NAME
	AWS_URL_SUFFIX = intrinsics.AWS_URL_SUFFIX
	AWS_NO_VALUE   = intrinsics.AWS_NO_VALUE
)

// Json is a shorthand for map[string]any.
type Json = map[string]any

// Tag is a CloudFormation resource tag.
type Tag struct {
	Key   string
	Value any
}

// IsIntrinsic reports whether v is an unresolved CloudFormation value, either
// one of the intrinsic types or its normalized map form.
func IsIntrinsic(v any) bool {
	switch x := v.(type) {
	case Ref, GetAtt, Sub, SubWithMap, Join, Select, Split, GetAZs, If,
		Base64, ImportValue, FindInMap, Cidr:
		return true
	case map[string]any:
		if len(x) != 1 {
			return false
		}
		for k := range x {
			return k == "Ref" || strings.HasPrefix(k, "Fn::")
		}
	}
	return false
}

// Concat joins parts into a single value. Adjacent literal strings are
// merged; the result is a plain string when no part is an intrinsic and an
// Fn::Join with an empty delimiter otherwise.
func Concat(parts ...any) any {
	var (
		values []any
		buf    strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			values = append(values, buf.String())
			buf.Reset()
		}
	}
	for _, p := range parts {
		if s, ok := p.(string); ok {
			buf.WriteString(s)
			continue
		}
		flush()
		values = append(values, p)
	}
	flush()

	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	return Join{Delimiter: "", Values: values}
}

// String returns v when it is a literal string and "" otherwise.
func String(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
