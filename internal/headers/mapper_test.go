package headers

import (
	"reflect"
	"testing"
)

func TestMapHeaders(t *testing.T) {
	d := MustNew(testEntries())

	cm, warnings := d.MapHeaders([]string{
		"Nombre", "Cantidad Disponible en Stock", "EAN", "Observaciones", "", "Existencias",
	})

	wantFields := []string{"nombre", "stock", "codigoBarras"}
	if got := cm.Fields(); !reflect.DeepEqual(got, wantFields) {
		t.Errorf("Fields() = %v, want %v", got, wantFields)
	}
	if cm.MappedCount() != 3 {
		t.Errorf("MappedCount() = %d, want 3", cm.MappedCount())
	}

	if i, ok := cm.Index("stock"); !ok || i != 1 {
		t.Errorf("Index(stock) = %d, %v; want 1, true", i, ok)
	}
	if got := cm.Header("stock"); got != "Cantidad Disponible en Stock" {
		t.Errorf("Header(stock) = %q", got)
	}
	if _, ok := cm.Index("sku"); ok {
		t.Error("Index(sku) found, want missing")
	}

	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %+v", len(warnings), warnings)
	}
	if warnings[0].Kind != WarnUnmappedColumn || warnings[0].Column != 4 {
		t.Errorf("warnings[0] = %+v, want unmapped column 4", warnings[0])
	}
	if warnings[1].Kind != WarnDuplicateMapping || warnings[1].Field != "stock" || warnings[1].Column != 6 {
		t.Errorf("warnings[1] = %+v, want duplicate stock at column 6", warnings[1])
	}

	unmapped := cm.Unmapped()
	if len(unmapped) != 3 {
		t.Errorf("Unmapped() = %d columns, want 3", len(unmapped))
	}
}

func TestMapHeaders_Empty(t *testing.T) {
	d := MustNew(testEntries())
	cm, warnings := d.MapHeaders(nil)
	if cm.MappedCount() != 0 || len(warnings) != 0 {
		t.Errorf("got %d mapped, %d warnings; want none", cm.MappedCount(), len(warnings))
	}
}

func TestNewColumnMap(t *testing.T) {
	cm := NewColumnMap([]string{"a", "b", "c"}, []string{"nombre", "", "nombre"})
	if got := cm.Fields(); !reflect.DeepEqual(got, []string{"nombre"}) {
		t.Errorf("Fields() = %v, want [nombre]", got)
	}
	if i, _ := cm.Index("nombre"); i != 0 {
		t.Errorf("Index(nombre) = %d, want 0", i)
	}
}

func TestMissingColumns(t *testing.T) {
	d := MustNew(testEntries())
	cm, _ := d.MapHeaders([]string{"Producto", "Stock"})

	got := MissingColumns(cm, []string{"nombre", "precioVenta", "stock"})
	if len(got) != 1 {
		t.Fatalf("got %d warnings, want 1", len(got))
	}
	if got[0].Kind != WarnMissingColumn || got[0].Field != "precioVenta" {
		t.Errorf("warning = %+v", got[0])
	}
}
