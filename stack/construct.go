package stack

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/lex00/cdkutils-go/intrinsics"
)

// Resource is a CloudFormation resource declared on a stack. Implementations
// embed Construct and return their CloudFormation type.
type Resource interface {
	ResourceType() string
	base() *Construct
}

// Preparer is implemented by resources whose properties are computed from
// other resources. Prepare runs before every synth and must be idempotent.
type Preparer interface {
	Prepare() error
}

// Construct carries the identity of a declared resource. Embed it with a
// `json:"-"` tag so it is not serialized as a property.
type Construct struct {
	stack     *Stack
	path      []string
	logicalID string
	dependsOn []Resource
	overrides []override
	removal   RemovalPolicy
}

type override struct {
	path  string
	value any
}

func (c *Construct) base() *Construct { return c }

// Stack returns the stack the resource was added to, or nil.
func (c *Construct) Stack() *Stack { return c.stack }

// ID returns the construct path, e.g. "profile-for-api-orders/Deployment".
func (c *Construct) ID() string { return strings.Join(c.path, "/") }

// LogicalID returns the CloudFormation logical ID.
func (c *Construct) LogicalID() string { return c.logicalID }

// Ref returns {"Ref": LogicalID}.
func (c *Construct) Ref() intrinsics.Ref {
	return intrinsics.Ref{LogicalName: c.logicalID}
}

// GetAtt returns {"Fn::GetAtt": [LogicalID, attr]}.
func (c *Construct) GetAtt(attr string) intrinsics.GetAtt {
	return intrinsics.GetAtt{LogicalName: c.logicalID, Attribute: attr}
}

// AddDependency adds explicit DependsOn entries.
func (c *Construct) AddDependency(deps ...Resource) {
	for _, d := range deps {
		if d == nil {
			continue
		}
		for _, existing := range c.dependsOn {
			if existing == d {
				d = nil
				break
			}
		}
		if d != nil {
			c.dependsOn = append(c.dependsOn, d)
		}
	}
}

// AddOverride sets a raw value on the synthesized resource. Paths are
// dotted: "Properties.VisibilityTimeout", "DeletionPolicy". A later override
// of the same path wins.
func (c *Construct) AddOverride(path string, value any) {
	c.overrides = append(c.overrides, override{path: path, value: value})
}

// ApplyRemovalPolicy sets DeletionPolicy and UpdateReplacePolicy.
func (c *Construct) ApplyRemovalPolicy(p RemovalPolicy) {
	c.removal = p
}

const (
	maxLogicalIDLength = 255
	hashLength         = 8
)

// hidden components are left out of the human readable part of a logical ID.
var hiddenComponents = map[string]bool{"Default": true, "Resource": true}

// LogicalIDFor derives a logical ID from a construct path. Top-level
// constructs use their alphanumeric ID; nested ones append a hash of the full
// path so that distinct paths never collide.
func LogicalIDFor(path ...string) string {
	if len(path) == 1 {
		candidate := removeNonAlphanumeric(path[0])
		if candidate != "" && len(candidate) <= maxLogicalIDLength {
			return candidate
		}
	}

	sum := md5.Sum([]byte(strings.Join(path, "/")))
	hash := strings.ToUpper(hex.EncodeToString(sum[:]))[:hashLength]

	var human strings.Builder
	last := ""
	for _, component := range path {
		if hiddenComponents[component] || component == last {
			continue
		}
		last = component
		human.WriteString(removeNonAlphanumeric(component))
	}
	h := human.String()
	if len(h) > maxLogicalIDLength-hashLength {
		h = h[:maxLogicalIDLength-hashLength]
	}
	return h + hash
}

func removeNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
