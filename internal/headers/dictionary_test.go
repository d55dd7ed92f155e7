package headers

import (
	"strings"
	"testing"
)

func testEntries() []Entry {
	return []Entry{
		{Field: "codigoBarras", Aliases: []string{"codigo barras", "ean", "barcode", "upc"}},
		{Field: "sku", Aliases: []string{"codigo interno", "referencia"}},
		{Field: "nombre", Aliases: []string{"producto", "descripcion", "articulo", "product name"}},
		{Field: "precioCompra", Aliases: []string{"precio costo", "costo", "cost price"}},
		{Field: "precioVenta", Aliases: []string{"precio venta", "pvp", "sale price"}},
		{Field: "stock", Aliases: []string{"existencias", "cantidad disponible", "stock actual", "qty on hand"}},
	}
}

func TestNew_RegistersCanonicalName(t *testing.T) {
	d := MustNew(testEntries())

	got := d.Aliases("stock")
	if len(got) == 0 || got[0] != "stock" {
		t.Fatalf("Aliases(stock) = %v, want canonical name first", got)
	}
	if len(d.Fields()) != 6 {
		t.Errorf("Fields() = %d entries, want 6", len(d.Fields()))
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{
			name:    "empty field",
			entries: []Entry{{Field: " ", Aliases: []string{"x"}}},
			wantErr: "empty field",
		},
		{
			name:    "alias empty after normalization",
			entries: []Entry{{Field: "stock", Aliases: []string{"de la"}}},
			wantErr: "empty after normalization",
		},
		{
			name:    "alias too long",
			entries: []Entry{{Field: "stock", Aliases: []string{"uno dos tres cuatro cinco seis"}}},
			wantErr: "tokens",
		},
		{
			name: "collision across fields",
			entries: []Entry{
				{Field: "precioCompra", Aliases: []string{"precio"}},
				{Field: "precioVenta", Aliases: []string{"Precio"}},
			},
			wantErr: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_SameFieldDuplicateIgnored(t *testing.T) {
	d, err := New([]Entry{{Field: "stock", Aliases: []string{"existencias", "Existencias", "stock"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(d.Aliases("stock")); got != 2 {
		t.Errorf("len(Aliases) = %d, want 2", got)
	}
}

func TestOptions(t *testing.T) {
	d := MustNew(nil, WithThreshold(0.8), WithThreshold(2))
	if d.Threshold() != 0.8 {
		t.Errorf("Threshold() = %v, want 0.8", d.Threshold())
	}

	d = MustNew([]Entry{{Field: "nombre", Aliases: []string{"el nombre"}}}, WithStopWords(nil))
	m := d.Normalize("El Nombre")
	if m.Kind != MatchPhrase {
		t.Errorf("with no stop-words, Kind = %v, want phrase", m.Kind)
	}
}
