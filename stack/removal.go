package stack

import (
	"errors"
	"fmt"
	"strings"
)

// RemovalPolicy controls what happens to a resource when it leaves the stack.
type RemovalPolicy string

const (
	RemovalDestroy  RemovalPolicy = "DESTROY"
	RemovalRetain   RemovalPolicy = "RETAIN"
	RemovalSnapshot RemovalPolicy = "SNAPSHOT"
)

// ErrUnknownRemovalPolicy is returned for unsupported removal policy names.
var ErrUnknownRemovalPolicy = errors.New("unknown removal policy")

// ParseRemovalPolicy maps DESTROY, RETAIN and SNAPSHOT (any case). An empty
// string yields an empty policy.
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch p := RemovalPolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return "", nil
	case RemovalDestroy, RemovalRetain, RemovalSnapshot:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRemovalPolicy, s)
	}
}

// cfnPolicy returns the CloudFormation DeletionPolicy value.
func (p RemovalPolicy) cfnPolicy() string {
	switch p {
	case RemovalDestroy:
		return "Delete"
	case RemovalRetain:
		return "Retain"
	case RemovalSnapshot:
		return "Snapshot"
	}
	return ""
}
