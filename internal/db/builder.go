package db

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Text adds an analyzed full-text field.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldText})
	return b
}

// TextLocalized adds one analyzed text field per locale, named
// "<name>.<locale>". This is how locale-qualified object fields are laid
// out in the index.
func (b *IndexBuilder) TextLocalized(name string, locales []string) *IndexBuilder {
	for _, locale := range locales {
		b.Text(name + "." + locale)
	}
	return b
}

// Keyword adds an exact-match field.
func (b *IndexBuilder) Keyword(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldKeyword})
	return b
}

// KeywordList adds an exact-match field whose value is a list.
func (b *IndexBuilder) KeywordList(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldKeyword, Multi: true})
	return b
}

// KeywordLocalized adds one exact-match field per locale.
func (b *IndexBuilder) KeywordLocalized(name string, locales []string) *IndexBuilder {
	for _, locale := range locales {
		b.Keyword(name + "." + locale)
	}
	return b
}

// Numeric adds a numeric field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric})
	return b
}

// Bool adds a boolean field.
func (b *IndexBuilder) Bool(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldBool})
	return b
}

// VectorHNSW adds a dense vector field with HNSW parameters.
func (b *IndexBuilder) VectorHNSW(name string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:              name,
		Type:              IndexFieldVector,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
	return b
}

// VectorHNSWLocalized adds one vector field per locale.
func (b *IndexBuilder) VectorHNSWLocalized(name string, locales []string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	for _, locale := range locales {
		b.VectorHNSW(name+"."+locale, dim, distance, m, efConstruct)
	}
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	def := b.def
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
