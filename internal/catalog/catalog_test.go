package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensorsCUE = `
enums: Status: values: {Up: 3, Warning: 4, Down: 5, Paused: 7}

types: Device: {
	identity: "Id"
	properties: {
		Id:   {id: "objid", kind: "int"}
		Name: {id: "name", kind: "string"}
	}
}

types: Sensor: {
	identity: "Id"
	properties: {
		Id:       {id: "objid", kind: "int"}
		Name:     {id: "name", kind: "string", nullable: true}
		Status:   {id: "status", kind: "enum", enum: "Status"}
		Priority: {id: "priority", kind: "int"}
		Tags:     {id: "tags", kind: "list", elem: "string"}
		Parent:   {id: "parentid", kind: "object", elem: "Device", nullable: true}
		Message:  {id: "message", kind: "string", filterable: false}
	}
}
`

func TestCompile_Sensors(t *testing.T) {
	cat, err := Compile("sensors.cue", sensorsCUE)
	require.NoError(t, err)

	assert.Equal(t, []string{"Device", "Sensor"}, cat.TypeNames())
	assert.Equal(t, []string{"Status"}, cat.EnumNames())

	sensor, ok := cat.Type("Sensor")
	require.True(t, ok)
	assert.Equal(t, "Id", sensor.Identity)

	var names []string
	for _, p := range sensor.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Id", "Name", "Status", "Priority", "Tags", "Parent", "Message"}, names)

	status, ok := sensor.Property("Status")
	require.True(t, ok)
	assert.Equal(t, "status", status.ID)
	assert.Equal(t, KindEnum, status.Kind)
	assert.True(t, status.Pushable())
	assert.False(t, status.MayBeNull())

	tags, _ := sensor.Property("Tags")
	assert.False(t, tags.Pushable(), "lists are never pushable")
	assert.False(t, tags.Filterable, "non-scalar kinds default to not filterable")

	msg, _ := sensor.Property("Message")
	assert.False(t, msg.Pushable())
	assert.True(t, msg.CanSort())

	byID, ok := sensor.PropertyByID("parentid")
	require.True(t, ok)
	assert.Equal(t, "Parent", byID.Name)
	assert.True(t, byID.MayBeNull())
}

func TestCompile_EnumLookup(t *testing.T) {
	cat, err := Compile("sensors.cue", sensorsCUE)
	require.NoError(t, err)

	status, ok := cat.Enum("Status")
	require.True(t, ok)

	up, ok := status.Lookup("Up")
	require.True(t, ok)
	assert.Equal(t, EnumValue{Type: "Status", Name: "Up", Ordinal: 3}, up)
	assert.Equal(t, "Up", up.String())

	down, ok := status.ByOrdinal(5)
	require.True(t, ok)
	assert.Equal(t, "Down", down.Name)

	_, ok = status.Lookup("Unknown")
	assert.False(t, ok)
}

func TestCompile_SchemaViolation(t *testing.T) {
	_, err := Compile("bad.cue", `types: Sensor: properties: Name: {id: "name", kind: "decimal"}`)
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeSchema, le.Code)
}

func TestCompile_UnknownField(t *testing.T) {
	_, err := Compile("bad.cue", `types: Sensor: properties: Name: {id: "name", kind: "string", colour: "red"}`)
	require.Error(t, err)
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("bad.cue", `types: {`)
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
}

func TestValidate_CrossReferences(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "unknown enum",
			src:  `types: Sensor: properties: Status: {id: "status", kind: "enum", enum: "Nope"}`,
			code: ErrCodeUnknownEnum,
		},
		{
			name: "duplicate id",
			src: `types: Sensor: properties: {
				A: {id: "x", kind: "int"}
				B: {id: "x", kind: "int"}
			}`,
			code: ErrCodeDuplicateID,
		},
		{
			name: "identity missing",
			src:  `types: Sensor: {identity: "Id", properties: Name: {id: "name", kind: "string"}}`,
			code: ErrCodeIdentity,
		},
		{
			name: "list without elem",
			src:  `types: Sensor: properties: Tags: {id: "tags", kind: "list"}`,
			code: ErrCodeMissingElem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("cat.cue", tt.src)
			require.Error(t, err)

			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadDir_SingleFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sensors.cue")
	require.NoError(t, os.WriteFile(path, []byte(sensorsCUE), 0o644))

	fromFile, err := LoadDir(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Device", "Sensor"}, fromFile.TypeNames())

	fromDir, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, fromFile.TypeNames(), fromDir.TypeNames())
}

func TestLoadDir_MergesFilesWithoutPackageClause(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "enums.cue"),
		[]byte(`enums: Health: values: {Ok: 0, Failed: 2}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.cue"), []byte(`types: Probe: {
	identity: "Id"
	properties: {
		Id:     {id: "objid", kind: "int"}
		Health: {id: "health", kind: "enum", enum: "Health"}
	}
}`), 0o644))

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Probe"}, cat.TypeNames())
	assert.Equal(t, []string{"Health"}, cat.EnumNames())
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadDir_Empty(t *testing.T) {
	_, err := LoadDir(t.TempDir())

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestKind_Predicates(t *testing.T) {
	assert.True(t, KindTime.IsScalar())
	assert.False(t, KindObject.IsScalar())
	assert.True(t, KindFloat.IsNumeric())
	assert.False(t, KindEnum.IsNumeric())
}

func TestLoadErrors_ReportsEveryProblem(t *testing.T) {
	_, err := Compile("cat.cue", `types: Sensor: {
		identity: "Id"
		properties: {
			A: {id: "x", kind: "int"}
			B: {id: "x", kind: "list"}
		}
	}`)
	require.Error(t, err)

	errs := LoadErrors(err)
	require.Len(t, errs, 3)
	codes := []string{errs[0].Code, errs[1].Code, errs[2].Code}
	assert.ElementsMatch(t, []string{ErrCodeDuplicateID, ErrCodeMissingElem, ErrCodeIdentity}, codes)

	assert.Nil(t, LoadErrors(nil))
	assert.Len(t, LoadErrors(&LoadError{Code: ErrCodeGeneric}), 1)
}
