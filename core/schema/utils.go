package schema

func (s *SchemaDefinition) FindField(name string) *FieldDefinition {
	for _, field := range s.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// FindRelation returns the relation loaded into the field called name.
func (s *SchemaDefinition) FindRelation(name string) *RelationDefinition {
	for i := range s.Relations {
		if s.Relations[i].Name == name {
			return &s.Relations[i]
		}
	}
	return nil
}

// IsRequired reports whether the field must be present on every document.
func (f *FieldDefinition) IsRequired() bool {
	return f.Required != nil && *f.Required
}
