package edital

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the semantic type of a schema field.
type FieldType string

// Supported field types.
const (
	TypeString         FieldType = "string"
	TypeInteger        FieldType = "integer"
	TypeFloat          FieldType = "float"
	TypeDate           FieldType = "date"
	TypeBoolean        FieldType = "boolean"
	TypeNullableString FieldType = "nullable-string"
)

// Field is one named entry in the extraction schema.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
}

// Nullable reports whether the field accepts JSON null.
func (f Field) Nullable() bool {
	return f.Type == TypeNullableString || !f.Required
}

// Schema is the ordered list of fields a backend must return.
type Schema struct {
	Name   string
	Fields []Field
}

// DefaultSchema returns the edital extraction schema.
func DefaultSchema() Schema {
	return Schema{
		Name: "edital",
		Fields: []Field{
			{Name: "instituicao", Type: TypeString, Required: true,
				Description: "instituição ou exame que publica o edital (ex.: ENARE, USP, UNIFESP)"},
			{Name: "especialidade", Type: TypeString, Required: true,
				Description: "especialidade médica das vagas"},
			{Name: "estado", Type: TypeString, Description: "sigla da UF com duas letras"},
			{Name: "cidade", Type: TypeString, Description: "cidade onde ocorre a residência"},
			{Name: "vagas", Type: TypeInteger, Description: "número de vagas"},
			{Name: "inicioInscricao", Type: TypeDate, Description: "início das inscrições"},
			{Name: "fimInscricao", Type: TypeDate, Description: "fim das inscrições"},
			{Name: "dataProva", Type: TypeDate, Description: "data da prova"},
			{Name: "taxa", Type: TypeFloat, Description: "taxa de inscrição em reais"},
			{Name: "link", Type: TypeNullableString, Description: "link oficial do edital"},
			{Name: "previsto", Type: TypeBoolean, Required: true,
				Description: "true quando o texto é notícia, rumor ou previsão e não o edital oficial"},
		},
	}
}

// Validate checks that the schema is usable.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema %q has a field without a name", s.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %q repeats field %q", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if _, ok := jsonTypes[f.Type]; !ok {
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

var jsonTypes = map[FieldType]string{
	TypeString:         "string",
	TypeInteger:        "integer",
	TypeFloat:          "number",
	TypeDate:           "string",
	TypeBoolean:        "boolean",
	TypeNullableString: "string",
}

// JSONSchema renders the schema as a JSON Schema (draft 2020-12) document.
func (s Schema) JSONSchema() (json.RawMessage, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	properties := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{}
		if f.Nullable() {
			prop["type"] = []string{jsonTypes[f.Type], "null"}
		} else {
			prop["type"] = jsonTypes[f.Type]
		}
		if f.Type == TypeDate {
			prop["format"] = "date"
		}
		if f.Type == TypeString && f.Required {
			prop["minLength"] = 1
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"title":      s.Name,
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal json schema: %w", err)
	}
	return raw, nil
}

// Describe lists the fields one per line for prompt construction.
func (s Schema) Describe() string {
	var b strings.Builder
	for _, f := range s.Fields {
		kind := string(f.Type)
		if f.Type == TypeDate {
			kind = "AAAA-MM-DD"
		}
		fmt.Fprintf(&b, "- %s (%s", f.Name, kind)
		if f.Nullable() && f.Type != TypeNullableString {
			b.WriteString(" ou null")
		}
		b.WriteString(")")
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
