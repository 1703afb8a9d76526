// Package lakeformation grants Lake Formation permissions on databases,
// tables and S3 data locations to IAM roles.
package lakeformation

import (
	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/s3"
	"github.com/lex00/cdkutils-go/resources/ssm"
	"github.com/lex00/cdkutils-go/stack"
)

// Permission names.
const (
	PermissionAll                = "ALL"
	PermissionDataLocationAccess = "DATA_LOCATION_ACCESS"
)

type DataLakePrincipal struct {
	DataLakePrincipalIdentifier any
}

type DatabaseResource struct {
	Name any
}

// TableWildcard selects every table of a database.
type TableWildcard struct{}

type TableResource struct {
	DatabaseName  any
	Name          any
	TableWildcard *TableWildcard
}

type DataLocationResource struct {
	S3Resource any
}

type Resource struct {
	DatabaseResource     *DatabaseResource
	TableResource        *TableResource
	DataLocationResource *DataLocationResource
}

// Permissions is an AWS::LakeFormation::Permissions.
type Permissions struct {
	stack.Construct            `json:"-"`
	DataLakePrincipal          DataLakePrincipal
	Resource                   Resource
	Permissions                []string
	PermissionsWithGrantOption []string
}

func (*Permissions) ResourceType() string { return "AWS::LakeFormation::Permissions" }

// GrantProps selects the granted permissions. Both lists default to ALL,
// or DATA_LOCATION_ACCESS for locations.
type GrantProps struct {
	Permissions     []string
	WithGrantOption []string
}

func (p GrantProps) withDefault(def string) GrantProps {
	if p.Permissions == nil {
		p.Permissions = []string{def}
	}
	if p.WithGrantOption == nil {
		p.WithGrantOption = []string{def}
	}
	return p
}

func importRole(st *stack.Stack, id, roleName string) (*iam.ImportedRole, error) {
	arn := st.FormatArn(stack.ArnFormat{Service: "iam", Resource: "role/" + roleName, NoRegion: true})
	return iam.RoleFromArn(st, id, arn)
}

func declare(st *stack.Stack, id string, role iam.IRole, res Resource, props GrantProps) (*Permissions, error) {
	p := &Permissions{
		DataLakePrincipal:          DataLakePrincipal{DataLakePrincipalIdentifier: role.Arn()},
		Resource:                   res,
		Permissions:                props.Permissions,
		PermissionsWithGrantOption: props.WithGrantOption,
	}
	if err := st.Add(id, p); err != nil {
		return nil, err
	}
	log.WithField("id", id).WithField("permissions", props.Permissions).Debug("lake formation grant")
	return p, nil
}

// GrantDatabasePermissions grants roleName permissions on database.
func GrantDatabasePermissions(st *stack.Stack, database, roleName string, props GrantProps) (*Permissions, error) {
	role, err := importRole(st, "LakeFormationDBRole"+roleName+database, roleName)
	if err != nil {
		return nil, err
	}
	return declare(st, "LakeFormationPermissionsDB"+roleName+database, role,
		Resource{DatabaseResource: &DatabaseResource{Name: database}},
		props.withDefault(PermissionAll))
}

// GrantTablePermissions grants roleName permissions on table of database,
// or on every table when table is empty.
func GrantTablePermissions(st *stack.Stack, database, table, roleName string, props GrantProps) (*Permissions, error) {
	role, err := importRole(st, "LakeFormationTableRole"+roleName+database+table, roleName)
	if err != nil {
		return nil, err
	}
	tr := &TableResource{DatabaseName: database}
	if table == "" {
		tr.TableWildcard = &TableWildcard{}
	} else {
		tr.Name = table
	}
	return declare(st, "LakeFormationPermissionsTableRole"+roleName+database+table, role,
		Resource{TableResource: tr},
		props.withDefault(PermissionAll))
}

// GrantLocationPermissions grants roleName access to the bucket whose name
// is stored in the SSM parameter bucketNameParam.
func GrantLocationPermissions(st *stack.Stack, bucketNameParam, roleName string, props GrantProps) (*Permissions, error) {
	role, err := importRole(st, "LakeFormationLocationRole"+roleName+bucketNameParam, roleName)
	if err != nil {
		return nil, err
	}
	name, err := ssm.RetrieveStringParameterValue(st, bucketNameParam)
	if err != nil {
		return nil, err
	}
	bucket, err := s3.BucketFromAttributes(st, "BucketForLakeFormation"+roleName+bucketNameParam, name)
	if err != nil {
		return nil, err
	}
	return declare(st, "LakeFormationPermissionsLocation"+roleName+bucketNameParam, role,
		Resource{DataLocationResource: &DataLocationResource{S3Resource: bucket.Arn()}},
		props.withDefault(PermissionDataLocationAccess))
}
