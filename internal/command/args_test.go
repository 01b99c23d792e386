package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	{Name: "name", Type: TString, Required: true},
	{Name: "count", Type: TInt, Required: false},
	{Name: "public", Type: TBool, Required: false},
	{Name: "items", Type: TList, Required: false},
}

func TestSchemaValidate(t *testing.T) {
	args, err := testSchema.Validate("test", []byte(`{"name":"foo","count":3,"public":true,"items":["a","b"]}`))
	require.NoError(t, err)

	assert.Equal(t, "foo", args.Str("name"))
	assert.Equal(t, 3, args.Int("count"))
	assert.True(t, args.Bool("public"))
	assert.Equal(t, []string{"a", "b"}, args.Strings("items"))
	assert.True(t, args.Has("name"))
	assert.False(t, args.Has("missing"))
}

func TestSchemaValidateEmptyPayload(t *testing.T) {
	_, err := (Schema{}).Validate("test", nil)
	assert.NoError(t, err)

	_, err = testSchema.Validate("test", nil)
	var argErr *InvalidArgumentsError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, argErr.Reason, `"name"`)
}

func TestSchemaValidateRejectsWrongTypes(t *testing.T) {
	cases := map[string]string{
		"string as number":  `{"name":42}`,
		"fractional int":    `{"name":"x","count":1.5}`,
		"bool as string":    `{"name":"x","public":"yes"}`,
		"list as object":    `{"name":"x","items":{}}`,
		"top-level array":   `["name"]`,
		"unparseable":       `{"name":`,
	}
	for desc, raw := range cases {
		t.Run(desc, func(t *testing.T) {
			_, err := testSchema.Validate("test", []byte(raw))
			var argErr *InvalidArgumentsError
			assert.ErrorAs(t, err, &argErr)
			assert.Equal(t, "test", argErr.Command)
		})
	}
}

func TestSchemaValidateRejectsNegativeInt(t *testing.T) {
	_, err := testSchema.Validate("test", []byte(`{"name":"x","count":-1}`))
	var argErr *InvalidArgumentsError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, argErr.Reason, "negative")
}

func TestSchemaValidateNullOptionalIsAbsent(t *testing.T) {
	args, err := testSchema.Validate("test", []byte(`{"name":"x","count":null}`))
	require.NoError(t, err)
	assert.False(t, args.Has("count"))
	assert.Zero(t, args.Int("count"))
}

func TestSchemaValidateToleratesExtraKeys(t *testing.T) {
	_, err := testSchema.Validate("test", []byte(`{"name":"x","unexpected":1}`))
	assert.NoError(t, err)
}
