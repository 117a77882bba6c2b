// Package catalog holds the element-type metadata that query translation is
// driven by: which members of an element map to server properties, what kind
// of value each property holds, and which enums exist.
//
// Catalogs are written in CUE and validated against an embedded #Catalog
// schema before being compiled into Go values:
//
//	enums: Status: values: {Up: 3, Warning: 4, Down: 5}
//	types: Sensor: {
//	    identity: "Id"
//	    properties: {
//	        Id:     {id: "objid", kind: "int"}
//	        Name:   {id: "name", kind: "string", nullable: true}
//	        Status: {id: "status", kind: "enum", enum: "Status"}
//	        Tags:   {id: "tags", kind: "list", elem: "string"}
//	    }
//	}
//
// A Catalog is immutable once compiled and safe for concurrent use.
package catalog
