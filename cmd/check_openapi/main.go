package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"libraryapi/pkg/domain"
	"libraryapi/pkg/libraryclient"
)

const defaultDocPath = "api/openapi.yaml"

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// requiredRoutes lists every path and method the server registers.
var requiredRoutes = map[string][]string{
	"/books":             {"get", "post"},
	"/books/{id}":        {"get", "put", "delete"},
	"/books/{id}/borrow": {"patch"},
	"/books/{id}/return": {"patch"},
	"/auth/login":        {"post"},
	"/auth/logout":       {"post"},
	"/auth/jwks":         {"get"},
	"/healthz":           {"get"},
}

func main() {
	path := defaultDocPath
	switch len(os.Args) {
	case 1:
	case 2:
		path = os.Args[1]
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	if err := check(path); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(path string) error {
	doc, err := loadDoc(path)
	if err != nil {
		return err
	}
	if err := validateRoutes(doc); err != nil {
		return err
	}

	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	detail, err := getSchema(doc, "ErrorDetail")
	if err != nil {
		return err
	}
	if err := matchesStruct("ErrorDetail", detail, domain.FieldError{}); err != nil {
		return err
	}

	book, err := getSchema(doc, "Book")
	if err != nil {
		return err
	}
	if err := matchesStruct("Book", book, domain.Book{}); err != nil {
		return err
	}
	status, ok := book.Properties["status"]
	if !ok {
		return errors.New("Book.status missing")
	}
	if err := ensureEnum("Book.status", status.Enum, string(domain.StatusAvailable), string(domain.StatusBorrowed)); err != nil {
		return err
	}

	input, err := getSchema(doc, "BookInput")
	if err != nil {
		return err
	}
	if err := matchesStruct("BookInput", input, domain.BookDetails{}); err != nil {
		return err
	}

	login, err := getSchema(doc, "LoginResponse")
	if err != nil {
		return err
	}
	return matchesStruct("LoginResponse", login, libraryclient.LoginResponse{})
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateRoutes(doc openAPIDoc) error {
	for path, methods := range requiredRoutes {
		ops, ok := doc.Paths[path]
		if !ok {
			return fmt.Errorf("path %s missing", path)
		}
		for _, m := range methods {
			if _, ok := ops[m]; !ok {
				return fmt.Errorf("operation %s %s missing", strings.ToUpper(m), path)
			}
		}
	}
	return nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	detailsProp, ok := s.Properties["details"]
	if !ok || detailsProp.Type != "array" {
		return errors.New("ErrorResponse.details must be array")
	}
	if detailsProp.Items == nil || strings.TrimSpace(detailsProp.Items.Ref) != "#/components/schemas/ErrorDetail" {
		return errors.New("ErrorResponse.details.items must reference ErrorDetail")
	}
	return nil
}

// matchesStruct checks that the schema declares exactly the JSON fields of v,
// all of them required, with a compatible type.
func matchesStruct(name string, s schema, v any) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", name)
	}
	want := jsonFields(reflect.TypeOf(v))
	got := make([]string, 0, len(s.Properties))
	for prop := range s.Properties {
		got = append(got, prop)
	}
	sort.Strings(got)
	names := make([]string, 0, len(want))
	for field := range want {
		names = append(names, field)
	}
	sort.Strings(names)
	if strings.Join(got, ",") != strings.Join(names, ",") {
		return fmt.Errorf("%s properties mismatch: schema %v vs code %v", name, got, names)
	}
	required := makeSet(s.Required)
	for _, field := range names {
		if !required[field] {
			return fmt.Errorf("%s.required must include %q", name, field)
		}
		if prop := s.Properties[field]; prop.Type != want[field] {
			return fmt.Errorf("%s.%s type mismatch: schema %q vs code %q", name, field, prop.Type, want[field])
		}
	}
	return nil
}

func jsonFields(t reflect.Type) map[string]string {
	out := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		out[tag] = openAPIType(f.Type)
	}
	return out
}

func openAPIType(t reflect.Type) string {
	if t.String() == "time.Time" {
		return "string"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	default:
		return "string"
	}
}

func ensureEnum(name string, got []string, want ...string) error {
	set := makeSet(got)
	if len(set) != len(want) {
		return fmt.Errorf("%s enum must be %v, got %v", name, want, got)
	}
	for _, w := range want {
		if !set[w] {
			return fmt.Errorf("%s enum must include %q", name, w)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
