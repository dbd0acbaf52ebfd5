/*
Package schema defines the attribute types used by registered config items.

Each item type registered on a registry point declares a list of fields.
A field has a type, optional constraints and, depending on the type, a
choice key or a reference target:

	schema.Field{Name: "mode", Type: schema.FieldTypeChoice, Choice: "core.interfaces#wifi_mode", Required: true}
	schema.Field{Name: "device", Type: schema.FieldTypeRef, To: "core.interfaces.wifi_radio", Required: true}
	schema.Field{Name: "address", Type: schema.FieldTypeIP, Format: schema.FormatSubnet}

# Field Types

  - string:  Short text value
  - text:    Long text value (keys, certificates)
  - int:     Integer value
  - bool:    Boolean value
  - choice:  One of the values registered for Choice on the point
  - ref:     Reference to another item of the same node (stored as an index pair)
  - ip:      IPv4/IPv6 host address or prefix, see Format
  - mac:     Hardware address
  - secret:  Sensitive string, hashed before storage

Values are normalized by Coerce so that values decoded from YAML, JSON or
CBOR compare equal to values set from Go code.
*/
package schema
