package imports

import (
	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/headers"
)

// Product fields.
const (
	FieldBarcode       = "codigoBarras"
	FieldSKU           = "sku"
	FieldName          = "nombre"
	FieldDescription   = "descripcion"
	FieldCategory      = "categoria"
	FieldProvider      = "proveedor"
	FieldPurchasePrice = "precioCompra"
	FieldSalePrice     = "precioVenta"
	FieldStock         = "stock"
	FieldMinStock      = "stockMinimo"
	FieldUnit          = "unidad"

	// FieldProviderID is set on persisted products, never read from files.
	FieldProviderID = "proveedorId"
)

var productRules = core.FieldRuleSet{
	{Field: FieldBarcode, Label: "Codigo de barras", Type: core.RuleText, MaxLen: 64, Normalizer: NormalizeBarcode},
	{Field: FieldSKU, Label: "SKU", Type: core.RuleText, MaxLen: 64},
	{Field: FieldName, Label: "Nombre", Type: core.RuleText, Required: true, MaxLen: 200},
	{Field: FieldDescription, Label: "Descripcion", Type: core.RuleText, MaxLen: 1000},
	{Field: FieldCategory, Label: "Categoria", Type: core.RuleText, MaxLen: 100},
	{Field: FieldProvider, Label: "Proveedor", Type: core.RuleText, MaxLen: 200},
	{Field: FieldPurchasePrice, Label: "Precio de compra", Type: core.RulePositiveNumber},
	{Field: FieldSalePrice, Label: "Precio de venta", Type: core.RulePositiveNumber},
	{Field: FieldStock, Label: "Stock", Type: core.RulePositiveNumber},
	{Field: FieldMinStock, Label: "Stock minimo", Type: core.RulePositiveNumber},
	{Field: FieldUnit, Label: "Unidad", Type: core.RuleText, MaxLen: 20, Normalizer: NormalizeUnit},
}

var productAliases = []headers.Entry{
	{Field: FieldBarcode, Aliases: []string{"codigo de barras", "cod barras", "barcode", "ean", "upc", "gtin"}},
	{Field: FieldSKU, Aliases: []string{"codigo interno", "codigo articulo", "item code", "part number"}},
	{Field: FieldName, Aliases: []string{"nombre producto", "producto", "articulo", "product name", "item"}},
	{Field: FieldDescription, Aliases: []string{"detalle", "description"}},
	{Field: FieldCategory, Aliases: []string{"rubro", "familia", "category"}},
	{Field: FieldProvider, Aliases: []string{"nombre proveedor", "supplier", "vendor"}},
	{Field: FieldPurchasePrice, Aliases: []string{"precio compra", "precio costo", "costo", "costo unitario", "purchase price", "cost"}},
	{Field: FieldSalePrice, Aliases: []string{"precio venta", "precio publico", "pvp", "sale price", "retail price"}},
	{Field: FieldStock, Aliases: []string{"existencias", "cantidad disponible", "stock actual", "qty on hand", "inventario"}},
	{Field: FieldMinStock, Aliases: []string{"stock minimo", "minimo", "punto reorden", "reorder point"}},
	{Field: FieldUnit, Aliases: []string{"unidad medida", "uom", "unit"}},
}

func productDefinition() core.Definition {
	return core.Definition{
		Key:        Products,
		Label:      "Productos",
		Kind:       core.KindProduct,
		Complexity: core.ComplexitySimple,
		Rules:      productRules,
		Aliases:    productAliases,
		Keys: func(row core.TypedRow, _ map[string]core.EntityRef) []core.NaturalKey {
			return keys(row, FieldBarcode, FieldSKU, FieldName)
		},
		References: []core.Reference{
			{
				Field: FieldProvider,
				Kind:  core.KindProvider,
				Lookup: func(row core.TypedRow) []core.NaturalKey {
					return []core.NaturalKey{{Field: FieldName, Value: row.String(FieldProvider)}}
				},
				Placeholder: providerPlaceholder,
			},
		},
		Build: buildProduct,
	}
}

func buildProduct(row core.TypedRow, refs map[string]core.EntityRef) core.Record {
	fields := copyFields(row, productRules.Fields())
	if ref, ok := refs[FieldProvider]; ok {
		fields[FieldProviderID] = ref.ID
	}
	return core.Record{Kind: core.KindProduct, Fields: fields}
}

// productPlaceholder is the product created when a movement names one that
// does not exist yet: zero stock and prices, identified by what the row had.
func productPlaceholder(row core.TypedRow) core.Record {
	fields := core.Fields{
		FieldName:          row.String(FieldProduct),
		FieldStock:         float64(0),
		FieldPurchasePrice: float64(0),
		FieldSalePrice:     float64(0),
	}
	ks := []core.NaturalKey{{Field: FieldName, Value: row.String(FieldProduct)}}
	if bc := row.String(FieldBarcode); bc != "" {
		fields[FieldBarcode] = bc
		ks = append([]core.NaturalKey{{Field: FieldBarcode, Value: bc}}, ks...)
	}
	return core.Record{Kind: core.KindProduct, Keys: ks, Fields: fields}
}
