package lakeformation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/stack"
)

func TestGrantDatabasePermissions(t *testing.T) {
	st := stack.New("lake", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	p, err := GrantDatabasePermissions(st, "sales", "etl-role", GrantProps{})
	require.NoError(t, err)

	assert.Equal(t, "LakeFormationPermissionsDBetl-rolesales", p.ID())
	assert.Equal(t, []string{"ALL"}, p.Permissions)
	assert.Equal(t, []string{"ALL"}, p.PermissionsWithGrantOption)
	assert.Equal(t, "arn:aws:iam::123456789012:role/etl-role", p.DataLakePrincipal.DataLakePrincipalIdentifier)
	assert.Equal(t, "sales", p.Resource.DatabaseResource.Name)
}

func TestGrantTablePermissions(t *testing.T) {
	st := stack.New("lake", stack.Environment{})
	all, err := GrantTablePermissions(st, "sales", "", "etl-role", GrantProps{Permissions: []string{"SELECT"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT"}, all.Permissions)
	assert.Equal(t, []string{"ALL"}, all.PermissionsWithGrantOption)

	one, err := GrantTablePermissions(st, "sales", "orders", "etl-role", GrantProps{})
	require.NoError(t, err)
	assert.Equal(t, "orders", one.Resource.TableResource.Name)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	res := tmpl.Resources[all.LogicalID()].Properties["Resource"].(map[string]any)
	table := res["TableResource"].(map[string]any)
	assert.Equal(t, map[string]any{}, table["TableWildcard"])
	assert.Equal(t, "sales", table["DatabaseName"])
}

func TestGrantLocationPermissions(t *testing.T) {
	st := stack.New("lake", stack.Environment{})
	p, err := GrantLocationPermissions(st, "/data/bucket", "etl-role", GrantProps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"DATA_LOCATION_ACCESS"}, p.Permissions)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	require.Len(t, tmpl.Parameters, 1)
	for _, param := range tmpl.Parameters {
		assert.Equal(t, "AWS::SSM::Parameter::Value<String>", param.Type)
		assert.Equal(t, "/data/bucket", param.Default)
	}

	_, err = GrantLocationPermissions(st, "/data/bucket", "etl-role", GrantProps{})
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}
