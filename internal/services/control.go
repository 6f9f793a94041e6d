package services

import (
	"encoding/json"
	"fmt"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/go-playground/validator/v10"
)

// ReasonMalformed is the only ConfigError reason: the message could not be
// parsed or lacked a required field.
const ReasonMalformed = "malformed"

// ConfigError reports a control message that was dropped.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s control message: %v", e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CredentialSetter is the part of the Supervisor the control channel needs.
type CredentialSetter interface {
	SetCredential(credential models.Credential) error
}

// ControlParser turns raw inbound frames into credentials.
type ControlParser struct {
	validate *validator.Validate
}

func NewControlParser() *ControlParser {
	return &ControlParser{validate: validator.New()}
}

// Parse decodes a {"token": ..., "barcode": ...} message. Any failure is
// returned as *ConfigError.
func (p *ControlParser) Parse(raw []byte) (models.Credential, error) {
	var msg models.ConfigMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.Credential{}, &ConfigError{Reason: ReasonMalformed, Err: err}
	}
	if err := p.validate.Struct(msg); err != nil {
		return models.Credential{}, &ConfigError{Reason: ReasonMalformed, Err: err}
	}
	return msg.Credential(), nil
}
