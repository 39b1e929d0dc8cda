package classifier

import "github.com/joseph-ayodele/finance-intake/constants"

// rule is a keyword list for one subtype. Keywords are folded text
// (lower-case, no diacritics) and match on word boundaries.
type rule struct {
	subtype  constants.Subtype
	keywords []string
}

// Sorted for determinism.
var specificRules = []rule{
	{
		subtype: constants.SubtypeUtilitySupply,
		keywords: []string{
			"agua",
			"canal de isabel ii",
			"consumo",
			"cups",
			"electricidad",
			"endesa",
			"energia",
			"gas natural",
			"iberdrola",
			"kwh",
			"lectura",
			"luz",
			"naturgy",
			"potencia contratada",
			"repsol",
			"suministro",
			"termino de energia",
			"termino de potencia",
			"totalenergies",
			"utility",
		},
	},
	{
		subtype: constants.SubtypeHomeReform,
		keywords: []string{
			"albanil",
			"albanileria",
			"azulejos",
			"bano",
			"carpinteria",
			"cocina",
			"electricista",
			"fontaneria",
			"fontanero",
			"instalacion",
			"materiales",
			"mano de obra",
			"obra",
			"pintura",
			"presupuesto de obra",
			"reforma",
			"renovation",
			"ventanas",
		},
	},
	{
		subtype: constants.SubtypePlainReceipt,
		keywords: []string{
			"adeudo",
			"adeudo directo",
			"domiciliacion",
			"justificante",
			"mandato",
			"receipt",
			"recibo",
			"referencia del mandato",
			"sepa",
			"ticket",
		},
	},
}

var genericInvoiceKeywords = []string{
	"base imponible",
	"cif",
	"factura",
	"fecha de emision",
	"importe total",
	"invoice",
	"iva",
	"nif",
	"total a pagar",
	"vat",
}

var statementKeywords = []string{
	"extracto",
	"movimientos",
	"saldo",
	"statement",
}
