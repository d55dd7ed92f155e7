package core

import (
	"errors"
	"reflect"
	"testing"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

func registryDefs() []Definition {
	keys := func(TypedRow, map[string]EntityRef) []NaturalKey { return nil }
	build := func(TypedRow, map[string]EntityRef) Record { return Record{} }
	return []Definition{
		{
			Key:        "widgets",
			Label:      "Widgets",
			Kind:       KindProduct,
			Complexity: ComplexitySimple,
			Rules: FieldRuleSet{
				{Field: "nombre", Label: "Nombre", Type: RuleText, Required: true},
				{Field: "peso", Type: RuleNumber},
			},
			Aliases: []headers.Entry{{Field: "nombre", Aliases: []string{"denominacion"}}},
			Keys:    keys,
			Build:   build,
		},
		{
			Key:   "gadgets",
			Label: "Gadgets",
			Kind:  KindProvider,
			Rules: FieldRuleSet{{Field: "codigo", Type: RuleText}},
			Keys:  keys,
			Build: build,
		},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(registryDefs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	def, dict, err := r.Get(" Widgets ")
	if err != nil {
		t.Fatal(err)
	}
	if def.Key != "widgets" {
		t.Errorf("Get() key = %q", def.Key)
	}
	// A rule field missing from the alias list still maps by its own name.
	if m := dict.Normalize("Peso"); m.Field != "peso" {
		t.Errorf("Normalize(Peso) = %q, want peso", m.Field)
	}
	if m := dict.Normalize("Denominación"); m.Field != "nombre" {
		t.Errorf("Normalize(Denominación) = %q, want nombre", m.Field)
	}

	if _, _, err := r.Get("nope"); !errors.Is(err, ErrUnknownImportType) {
		t.Errorf("Get(nope) error = %v, want ErrUnknownImportType", err)
	}
}

func TestNewRegistry_Errors(t *testing.T) {
	defs := registryDefs()

	dup := append(defs, defs[0])
	if _, err := NewRegistry(dup, nil); err == nil {
		t.Error("duplicate key should fail")
	}

	noBuild := registryDefs()
	noBuild[1].Build = nil
	if _, err := NewRegistry(noBuild, nil); err == nil {
		t.Error("missing Build should fail")
	}

	file := &headers.AliasFile{Types: map[string][]headers.Entry{"unknown": nil}}
	if _, err := NewRegistry(registryDefs(), file); err == nil {
		t.Error("alias file naming an unknown type should fail")
	}
}

func TestNewRegistry_AliasFileOverrides(t *testing.T) {
	file := &headers.AliasFile{Types: map[string][]headers.Entry{
		"widgets": {{Field: "nombre", Aliases: []string{"articulo"}}},
	}}
	r, err := NewRegistry(registryDefs(), file)
	if err != nil {
		t.Fatal(err)
	}
	_, dict, _ := r.Get("widgets")
	if m := dict.Normalize("Artículo"); m.Field != "nombre" {
		t.Errorf("Normalize(Artículo) = %q, want nombre", m.Field)
	}
	if m := dict.Normalize("Denominacion"); m.Mapped {
		t.Error("built-in alias should be replaced by the file")
	}
}

func TestRegistry_TypesAndTemplate(t *testing.T) {
	r, _ := NewRegistry(registryDefs(), nil)

	types := r.Types()
	if len(types) != 2 || types[0].Key != "gadgets" || types[1].Key != "widgets" {
		t.Fatalf("Types() order = %v", types)
	}
	w := types[1]
	if len(w.Fields) != 2 || !w.Fields[0].Required || w.Fields[1].Type != "number" {
		t.Errorf("widget fields = %+v", w.Fields)
	}

	tmpl, err := r.Template("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Nombre", "peso"}; !reflect.DeepEqual(tmpl, want) {
		t.Errorf("Template() = %v, want %v", tmpl, want)
	}
}
