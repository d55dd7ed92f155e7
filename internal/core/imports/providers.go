package imports

import (
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/headers"
)

// Provider fields. The provider name reuses FieldName.
const (
	FieldDocument = "documento"
	FieldContact  = "contacto"
	FieldPhone    = "telefono"
	FieldEmail    = "email"
	FieldAddress  = "direccion"
)

var providerRules = core.FieldRuleSet{
	{Field: FieldDocument, Label: "Documento", Type: core.RuleText, MaxLen: 32, Normalizer: NormalizeDocument},
	{Field: FieldName, Label: "Nombre", Type: core.RuleText, Required: true, MaxLen: 200},
	{Field: FieldContact, Label: "Contacto", Type: core.RuleText, MaxLen: 200},
	{Field: FieldPhone, Label: "Telefono", Type: core.RuleText, MaxLen: 32, Normalizer: NormalizePhone},
	{Field: FieldEmail, Label: "Email", Type: core.RuleText, MaxLen: 254, Normalizer: NormalizeEmail},
	{Field: FieldAddress, Label: "Direccion", Type: core.RuleText, MaxLen: 300},
}

var providerAliases = []headers.Entry{
	{Field: FieldDocument, Aliases: []string{"numero documento", "ruc", "nit", "cuit", "rfc", "tax id", "identificacion fiscal"}},
	{Field: FieldName, Aliases: []string{"razon social", "nombre proveedor", "proveedor", "empresa", "supplier"}},
	{Field: FieldContact, Aliases: []string{"persona contacto", "contact"}},
	{Field: FieldPhone, Aliases: []string{"telefono contacto", "celular", "tel", "phone"}},
	{Field: FieldEmail, Aliases: []string{"correo", "correo electronico", "mail"}},
	{Field: FieldAddress, Aliases: []string{"domicilio", "address"}},
}

// emailCheck validates single values against validator tags.
var emailCheck = validator.New()

func providerDefinition() core.Definition {
	return core.Definition{
		Key:        Providers,
		Label:      "Proveedores",
		Kind:       core.KindProvider,
		Complexity: core.ComplexitySimple,
		Rules:      providerRules,
		Aliases:    providerAliases,
		Keys: func(row core.TypedRow, _ map[string]core.EntityRef) []core.NaturalKey {
			return keys(row, FieldDocument, FieldName)
		},
		Check: checkProvider,
		Build: func(row core.TypedRow, _ map[string]core.EntityRef) core.Record {
			return core.Record{Kind: core.KindProvider, Fields: copyFields(row, providerRules.Fields())}
		},
	}
}

func checkProvider(row core.TypedRow) []core.FieldError {
	email := row.String(FieldEmail)
	if email == "" {
		return nil
	}
	if err := emailCheck.Var(email, "email"); err != nil {
		return []core.FieldError{{
			Field:   FieldEmail,
			Value:   email,
			Message: "invalid email address",
		}}
	}
	return nil
}

// providerPlaceholder is the provider created when a product names one that
// does not exist yet.
func providerPlaceholder(row core.TypedRow) core.Record {
	name := row.String(FieldProvider)
	return core.Record{
		Kind:   core.KindProvider,
		Keys:   []core.NaturalKey{{Field: FieldName, Value: name}},
		Fields: core.Fields{FieldName: name},
	}
}
