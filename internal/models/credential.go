package models

// Credential authorizes a shipment location lookup. It is passed through to
// the location source untouched.
type Credential struct {
	Token   string `json:"token" yaml:"token"`
	Barcode string `json:"barcode" yaml:"barcode"`
}

// Complete reports whether both halves of the pair are present.
func (c Credential) Complete() bool {
	return c.Token != "" && c.Barcode != ""
}

// ConfigMessage is the inbound reconfiguration request sent by a subscriber.
// Both fields must be present and non-empty.
type ConfigMessage struct {
	Token   string `json:"token" validate:"required"`
	Barcode string `json:"barcode" validate:"required"`
}

// Credential returns the pair carried by the message.
func (m ConfigMessage) Credential() Credential {
	return Credential{Token: m.Token, Barcode: m.Barcode}
}
