package schema

// Field defines one attribute of a registered item type.
type Field struct {
	// Name is the attribute name, unique within the item's attribute surface.
	Name string `yaml:"name" json:"name"`

	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type" json:"type"`

	// Label is a human-readable name for listings.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Required indicates this field must hold a non-empty value.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default value applied when the field is not set.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// Choice is the choice key for choice fields (e.g. "core.interfaces#wifi_mode").
	Choice string `yaml:"choice,omitempty" json:"choice,omitempty"`

	// To is the target item type for ref fields.
	To string `yaml:"to,omitempty" json:"to,omitempty"`

	// Format refines ip fields (host or subnet).
	Format Format `yaml:"format,omitempty" json:"format,omitempty"`

	// Constraints defines validation rules for this field.
	Constraints []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// FieldType represents the type of a schema field.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeText   FieldType = "text"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
	FieldTypeChoice FieldType = "choice" // Requires Choice
	FieldTypeRef    FieldType = "ref"    // Requires To
	FieldTypeIP     FieldType = "ip"
	FieldTypeMAC    FieldType = "mac"
	FieldTypeSecret FieldType = "secret" // Hashed, never rendered in clear
)

// Format narrows the accepted values of an ip field.
type Format string

const (
	FormatAny    Format = ""
	FormatHost   Format = "host"   // address without prefix length
	FormatSubnet Format = "subnet" // address with prefix length
)

// IsValid reports whether the field type is known.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeText, FieldTypeInt, FieldTypeBool,
		FieldTypeChoice, FieldTypeRef, FieldTypeIP, FieldTypeMAC, FieldTypeSecret:
		return true
	}
	return false
}

// IsRef reports whether the field references another item.
func (f Field) IsRef() bool {
	return f.Type == FieldTypeRef
}

// IsInternal returns whether the field value must not be rendered in clear.
func (f Field) IsInternal() bool {
	return f.Type == FieldTypeSecret
}

// Check validates the field definition itself.
func (f Field) Check() error {
	if f.Name == "" {
		return &DefinitionError{Field: f.Name, Message: "field name is required"}
	}
	if !f.Type.IsValid() {
		return &DefinitionError{Field: f.Name, Message: "unknown field type " + string(f.Type)}
	}
	if f.Type == FieldTypeChoice && f.Choice == "" {
		return &DefinitionError{Field: f.Name, Message: "choice field requires a choice key"}
	}
	if f.Type == FieldTypeRef && f.To == "" {
		return &DefinitionError{Field: f.Name, Message: "ref field requires a target type"}
	}
	return nil
}

// DefinitionError reports an invalid field definition.
type DefinitionError struct {
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return "invalid field: " + e.Message
	}
	return "invalid field " + e.Field + ": " + e.Message
}
