package optimizer

import (
	"fmt"
	"strings"

	cdkutils "github.com/lex00/cdkutils-go"
)

// retainedTypes hold data that a stack deletion would lose.
var retainedTypes = map[string]bool{
	"AWS::S3::Bucket":     true,
	"AWS::SQS::Queue":     true,
	"AWS::Logs::LogGroup": true,
	"AWS::Glue::Database": true,
	"AWS::Glue::Table":    true,
	"AWS::KMS::Key":       true,
}

var rules = []Rule{
	{
		ID:       "OPT-S3-001",
		Type:     "AWS::S3::Bucket",
		Category: "security",
		Severity: "high",
		Title:    "S3 bucket should have encryption enabled",
		Check: func(def cdkutils.ResourceDef) string {
			if has(def, "BucketEncryption") {
				return ""
			}
			return "Add BucketEncryption with SSE-S3 or SSE-KMS configuration."
		},
	},
	{
		ID:       "OPT-S3-002",
		Type:     "AWS::S3::Bucket",
		Category: "security",
		Severity: "high",
		Title:    "S3 bucket should block public access",
		Check: func(def cdkutils.ResourceDef) string {
			if has(def, "PublicAccessBlockConfiguration") {
				return ""
			}
			return "Add PublicAccessBlockConfiguration with all four settings true."
		},
	},
	{
		ID:       "OPT-SQS-001",
		Type:     "AWS::SQS::Queue",
		Category: "reliability",
		Severity: "medium",
		Title:    "Queue should have a dead-letter queue",
		Check: func(def cdkutils.ResourceDef) string {
			if has(def, "RedrivePolicy") {
				return ""
			}
			return "Set a RedrivePolicy so poison messages stop being retried."
		},
	},
	{
		ID:       "OPT-LAM-001",
		Type:     "AWS::Lambda::Function",
		Category: "performance",
		Severity: "low",
		Title:    "Lambda function timeout should be set",
		Check: func(def cdkutils.ResourceDef) string {
			timeout, ok := number(def.Properties["Timeout"])
			switch {
			case !ok:
				return "The 3 second default timeout rarely suits batch work; set Timeout explicitly."
			case timeout >= 900:
				return "Timeout is the 15 minute maximum; consider a Step Functions task or ECS for long jobs."
			}
			return ""
		},
	},
	{
		ID:       "OPT-LAM-002",
		Type:     "AWS::Lambda::Function",
		Category: "cost",
		Severity: "low",
		Title:    "Lambda function memory should be sized",
		Check: func(def cdkutils.ResourceDef) string {
			if memory, ok := number(def.Properties["MemorySize"]); ok && memory > 3008 {
				return fmt.Sprintf("MemorySize %.0f MB is high; measure and reduce if the function is not CPU bound.", memory)
			}
			return ""
		},
	},
	{
		ID:       "OPT-IAM-001",
		Type:     "AWS::IAM::Policy",
		Category: "security",
		Severity: "high",
		Title:    "IAM policy should use least privilege",
		Check: func(def cdkutils.ResourceDef) string {
			if wild := wildcardActions(def.Properties["PolicyDocument"]); len(wild) > 0 {
				return "Replace wildcard actions " + strings.Join(wild, ", ") + " with the specific actions needed."
			}
			return ""
		},
	},
	{
		ID:       "OPT-EC2-001",
		Type:     "AWS::EC2::SecurityGroup",
		Category: "security",
		Severity: "high",
		Title:    "Security group should not allow ingress from anywhere",
		Check: func(def cdkutils.ResourceDef) string {
			for _, rule := range list(def.Properties["SecurityGroupIngress"]) {
				if m, ok := rule.(map[string]any); ok && m["CidrIp"] == "0.0.0.0/0" {
					return "Restrict CidrIp 0.0.0.0/0 to known ranges or security groups."
				}
			}
			return ""
		},
	},
	{
		ID:       "OPT-LOG-001",
		Type:     "AWS::Logs::LogGroup",
		Category: "cost",
		Severity: "medium",
		Title:    "Log group should expire events",
		Check: func(def cdkutils.ResourceDef) string {
			if has(def, "RetentionInDays") {
				return ""
			}
			return "Set RetentionInDays; events are otherwise kept forever."
		},
	},
	{
		ID:       "OPT-SFN-001",
		Type:     "AWS::StepFunctions::StateMachine",
		Category: "reliability",
		Severity: "medium",
		Title:    "State machine should log executions",
		Check: func(def cdkutils.ResourceDef) string {
			if has(def, "LoggingConfiguration") {
				return ""
			}
			return "Add a LoggingConfiguration with a log group destination."
		},
	},
	{
		ID:       "OPT-SFN-002",
		Type:     "AWS::StepFunctions::StateMachine",
		Category: "performance",
		Severity: "low",
		Title:    "State machine should enable X-Ray tracing",
		Check: func(def cdkutils.ResourceDef) string {
			if tc, ok := def.Properties["TracingConfiguration"].(map[string]any); ok && tc["Enabled"] == true {
				return ""
			}
			return "Enable TracingConfiguration to follow executions across services."
		},
	},
	{
		ID:       "OPT-GEN-001",
		Category: "reliability",
		Severity: "medium",
		Title:    "Stateful resource should be retained",
		Check: func(def cdkutils.ResourceDef) string {
			if !retainedTypes[def.Type] || def.DeletionPolicy == "Retain" || def.DeletionPolicy == "Snapshot" {
				return ""
			}
			return "Set DeletionPolicy Retain so data survives stack deletion."
		},
	},
}

func has(def cdkutils.ResourceDef, key string) bool {
	v, ok := def.Properties[key]
	return ok && v != nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func list(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

// wildcardActions returns the actions of Allow statements that are "*" or
// end in ":*".
func wildcardActions(doc any) []string {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	for _, s := range list(m["Statement"]) {
		stmt, ok := s.(map[string]any)
		if !ok || stmt["Effect"] == "Deny" {
			continue
		}
		for _, a := range list(stmt["Action"]) {
			if action, ok := a.(string); ok && (action == "*" || strings.HasSuffix(action, ":*")) {
				out = append(out, action)
			}
		}
	}
	return out
}
