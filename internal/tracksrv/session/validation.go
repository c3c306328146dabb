package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// metaSchema constrains the free-form meta bag to a flat key-value object.
const metaSchema = `
{
  "type": "object",
  "maxProperties": %d,
  "propertyNames": {
    "pattern": "^[a-zA-Z0-9._-]+$"
  },
  "additionalProperties": {
    "type": ["string", "number", "boolean"]
  }
}`

var metaSchemaCompiled *jsonschema.Schema

var requestValidator = validator.New()

// technicalPatterns reject activity descriptions that are file names or code
// artifacts rather than a description of the work performed.
var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.tsx?$`),
	regexp.MustCompile(`(?i)\.go$`),
	regexp.MustCompile(`(?i)component`),
	regexp.MustCompile(`(?i)route`),
	regexp.MustCompile(`(?i)index\.`),
}

// Init compiles the meta schema. Must be called once before sessions are
// processed; maxMetaKeys bounds the number of properties in the meta bag.
func Init(maxMetaKeys int) {
	schema := fmt.Sprintf(metaSchema, maxMetaKeys)
	compiled, err := compileSchema(schema)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile session meta schema")
	}
	metaSchemaCompiled = compiled
}

// ValidateStartRequest checks the request fields, the activity description and
// the meta bag. The returned error carries all failures as expanded messages.
func ValidateStartRequest(req *StartRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := validateActivity(req.Activity); err != nil {
		return err
	}
	return validateMeta(req.Meta)
}

// ValidateCompleteRequest checks the optional post-mortem fields.
func ValidateCompleteRequest(req *CompleteRequest) error {
	return validateStruct(req)
}

// ValidateAnnotateRequest checks the optional post-mortem amendments.
func ValidateAnnotateRequest(req *AnnotateRequest) error {
	return validateStruct(req)
}

func validateStruct(s any) error {
	err := requestValidator.Struct(s)
	if err == nil {
		return nil
	}

	validatorErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ErrValidationFailed.Err(err)
	}

	var msgs []string
	for _, e := range validatorErrors {
		msgs = append(msgs, fmt.Sprintf("field %s fails constraint %s", e.Field(), e.Tag()))
	}
	return ErrValidationFailed.Msg(strings.Join(msgs, "; "))
}

// validateActivity rejects descriptions that name code artifacts instead of
// describing the work.
func validateActivity(activity string) error {
	for _, pattern := range technicalPatterns {
		if pattern.MatchString(activity) {
			return ErrValidationFailed.Msg("activity must describe the work performed, not a file or code artifact")
		}
	}
	return nil
}

// validateMeta validates the meta bag against the compiled schema.
func validateMeta(meta json.RawMessage) error {
	if len(meta) == 0 {
		return nil
	}
	if !gjson.ValidBytes(meta) {
		return ErrValidationFailed.Msg("meta must be valid json")
	}

	var parsed any
	if err := json.Unmarshal(meta, &parsed); err != nil {
		return ErrValidationFailed.Msg("invalid meta: " + err.Error())
	}

	if err := metaSchemaCompiled.Validate(parsed); err != nil {
		return ErrValidationFailed.Msg(fmt.Sprintf("meta must be a flat key-value json object: %v", err))
	}
	return nil
}

func compileSchema(schema string) (*jsonschema.Schema, error) {
	if !gjson.Valid(schema) {
		return nil, fmt.Errorf("invalid JSON schema")
	}

	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		if url == "inline://schema" {
			return io.NopCloser(bytes.NewReader([]byte(schema))), nil
		}
		return nil, fmt.Errorf("unsupported schema ref: %s", url)
	}
	if err := compiler.AddResource("inline://schema", bytes.NewReader([]byte(schema))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("inline://schema")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}
