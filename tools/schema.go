package tools

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Schema 工具入参的 JSON Schema 片段
type Schema struct {
	Type                 any                `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MinProperties        *int               `json:"minProperties,omitempty"`
}

// MarshalJSON 对象类型总是输出 properties，无参数工具发布 {"type":"object","properties":{}}
func (s Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	if s.Type != "object" || s.AdditionalProperties != nil {
		return json.Marshal(plain(s))
	}
	props := s.Properties
	if props == nil {
		props = map[string]*Schema{}
	}
	return json.Marshal(struct {
		plain
		Properties map[string]*Schema `json:"properties"`
	}{plain(s), props})
}

// valueTyped 由 nifi.Optional 实现
type valueTyped interface {
	ValueType() reflect.Type
}

var valueTypedType = reflect.TypeFor[valueTyped]()

// schemaFor 从参数结构体生成 schema
//
// 字段名取自 json 标签，说明取自 desc 标签，validate 标签中的
// required、oneof、min 分别映射为 required、enum、最小值约束。
func schemaFor[A any]() *Schema {
	s := schemaOf(reflect.TypeFor[A]())
	if s.Properties == nil {
		s.Properties = map[string]*Schema{}
	}
	return s
}

func schemaOf(t reflect.Type) *Schema {
	if t.Kind() == reflect.Ptr {
		return schemaOf(t.Elem())
	}
	if t.Implements(valueTypedType) {
		inner := schemaOf(reflect.Zero(t).Interface().(valueTyped).ValueType())
		if typ, ok := inner.Type.(string); ok {
			inner.Type = []string{typ, "null"}
		}
		return inner
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: schemaOf(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: schemaOf(t.Elem())}
	case reflect.Struct:
		return structSchema(t)
	default:
		return &Schema{}
	}
}

func structSchema(t reflect.Type) *Schema {
	s := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonName(f)
		if name == "-" {
			continue
		}
		// 匿名嵌入的结构体字段提升到当前层
		if f.Anonymous && f.Tag.Get("json") == "" && f.Type.Kind() == reflect.Struct {
			inner := structSchema(f.Type)
			for k, v := range inner.Properties {
				s.Properties[k] = v
			}
			s.Required = append(s.Required, inner.Required...)
			continue
		}

		fs := schemaOf(f.Type)
		fs.Description = f.Tag.Get("desc")
		if applyValidateTag(fs, f.Tag.Get("validate")) {
			s.Required = append(s.Required, name)
		}
		s.Properties[name] = fs
	}
	return s
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// applyValidateTag 把 validator 规则映射到 schema，返回字段是否必填
func applyValidateTag(s *Schema, tag string) bool {
	required := false
	for _, rule := range strings.Split(tag, ",") {
		key, arg, _ := strings.Cut(rule, "=")
		switch key {
		case "required":
			required = true
		case "oneof":
			for _, v := range strings.Fields(arg) {
				s.Enum = append(s.Enum, v)
			}
		case "min":
			n, err := strconv.Atoi(arg)
			if err != nil {
				continue
			}
			switch s.Type {
			case "string":
				s.MinLength = &n
			case "array":
				s.MinItems = &n
			case "object":
				s.MinProperties = &n
			default:
				f := float64(n)
				s.Minimum = &f
			}
		}
	}
	return required
}
