package testutil

import (
	"fmt"
	"testing"

	"github.com/roach88/sensorq/internal/catalog"
)

// SampleCUE is the catalog used across package tests and the "sample"
// catalog of harness scenarios.
const SampleCUE = `
enums: Status: values: {Up: 3, Warning: 4, Down: 5, Paused: 7, Unknown: 1}

types: Device: {
	identity: "Id"
	properties: {
		Id:   {id: "objid", kind: "int"}
		Name: {id: "name", kind: "string"}
		Host: {id: "host", kind: "string"}
	}
}

types: ScanInterval: {
	properties: Seconds: {id: "seconds", kind: "int"}
}

types: Sensor: {
	identity: "Id"
	properties: {
		Id:       {id: "objid", kind: "int"}
		Name:     {id: "name", kind: "string", nullable: true}
		Status:   {id: "status", kind: "enum", enum: "Status"}
		Priority: {id: "priority", kind: "int"}
		Uptime:   {id: "uptime", kind: "float", nullable: true}
		Active:   {id: "active", kind: "bool"}
		LastUp:   {id: "lastup", kind: "time", nullable: true}
		Tags:     {id: "tags", kind: "list", elem: "string"}
		Parent:   {id: "parentid", kind: "object", elem: "Device", nullable: true}
		Interval: {id: "interval", kind: "object", elem: "ScanInterval", filterable: true, stringer: true}
		Message:  {id: "message", kind: "string", filterable: false}
	}
}
`

// SampleCatalog compiles SampleCUE. It panics on failure since the source is
// a constant.
func SampleCatalog() *catalog.Catalog {
	cat, err := catalog.Compile("sample.cue", SampleCUE)
	if err != nil {
		panic(fmt.Sprintf("testutil: sample catalog: %v", err))
	}
	return cat
}

// SampleType returns the named type from the sample catalog.
func SampleType(t testing.TB, name string) (*catalog.Catalog, *catalog.Type) {
	t.Helper()
	cat := SampleCatalog()
	typ, ok := cat.Type(name)
	if !ok {
		t.Fatalf("sample catalog has no type %s", name)
	}
	return cat, typ
}
