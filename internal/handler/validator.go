package handler

import "github.com/iliyamo/farmer-objection-service/internal/service"

// Validator plugs go-playground/validator (through service.Validate) into
// echo so handlers can call c.Validate on bound request bodies.
type Validator struct{}

func (Validator) Validate(i interface{}) error {
	return service.Validate(i)
}
