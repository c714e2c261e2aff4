package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
)

const envelopeSchemaURL = "https://academy.schemas.local/envelope.schema.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_name", "event_id"],
  "properties": {
    "event_name": {"enum": ["ViewContent", "Contact", "InitiateCheckout", "Purchase"]},
    "event_id": {"type": "string", "minLength": 1},
    "event_time": {"type": "integer", "minimum": 0},
    "event_source_url": {"type": "string"},
    "test_event_code": {"type": "string"},
    "user_data": {
      "type": "object",
      "properties": {
        "em": {"type": "string"},
        "ph": {"type": "string"},
        "fn": {"type": "string"},
        "ln": {"type": "string"},
        "client_ip_address": {"type": "string"},
        "client_user_agent": {"type": "string"},
        "fbp": {"type": "string"},
        "fbc": {"type": "string"}
      }
    },
    "custom_data": {
      "type": "object",
      "properties": {
        "currency": {"type": "string", "pattern": "^[A-Za-z]{3}$"},
        "value": {"type": "number", "minimum": 0},
        "num_items": {"type": "integer", "minimum": 0},
        "ad_id": {"type": ["string", "integer"]},
        "adset_id": {"type": ["string", "integer"]},
        "campaign_id": {"type": ["string", "integer"]}
      }
    }
  },
  "allOf": [
    {
      "if": {"properties": {"event_name": {"const": "Purchase"}}},
      "then": {
        "required": ["custom_data"],
        "properties": {"custom_data": {"required": ["currency", "value"]}}
      }
    }
  ]
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func envelopeValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(envelopeSchemaURL)
	})
	return compiledSchema, schemaErr
}

// DecodeEnvelope validates raw JSON against the envelope schema and decodes
// it. Any schema or decoding failure is returned as a *errors.ValidationError.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	schema, err := envelopeValidator()
	if err != nil {
		return Envelope{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Envelope{}, apperrors.NewValidationError("", "invalid JSON body")
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := ve
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			field := strings.ReplaceAll(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/", ".")
			return Envelope{}, apperrors.NewValidationError(field, leaf.Message)
		}
		return Envelope{}, apperrors.NewValidationError("", err.Error())
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var ve *apperrors.ValidationError
		if errors.As(err, &ve) {
			return Envelope{}, ve
		}
		return Envelope{}, apperrors.NewValidationError("", "invalid envelope")
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
