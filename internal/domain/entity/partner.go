package entity

// Partner representa un aliado financiero. Comparte espacio de ids con User:
// un id es User o Partner, nunca ambos — de ahí que la resolución de rol sea
// una lectura por id sobre la colección `partners`.
type Partner struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`

	// Products sub-colección `partners/<id>/products`, propiedad independiente;
	// se adjunta por join fan-out al construir el directorio.
	Products []LoanProduct `json:"-"`
}

// LoanProduct producto de crédito ofrecido por un Partner.
type LoanProduct struct {
	ID           string `json:"-"`
	Name         string `json:"name"`
	Rate         string `json:"rate"` // porcentaje en texto, tal como lo publica el aliado ("5.0%")
	MaxAmount    int64  `json:"maxAmount"`
	TermMonths   int    `json:"termMonths"`
	Requirements string `json:"requirements,omitempty"`
}
