package flow

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/schemas"
)

// IDPattern matches stage, step and task identifiers.
var IDPattern = regexp.MustCompile(`^[\w]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	schemaLoader     gojsonschema.JSONLoader
	schemaLoaderOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return IDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks field constraints and cross references: every stage and
// pre-stage step must be defined, stage ids must be unique.
func (f *Flow) Validate() error {
	if err := structValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &errors.ValidationError{
				Field:      fe.Namespace(),
				Message:    fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				Suggestion: suggestionFor(fe),
			}
		}
		return err
	}

	for id := range f.Steps {
		if !IDPattern.MatchString(id) {
			return &errors.ValidationError{
				Field:      "step." + id,
				Message:    "step id must match " + IDPattern.String(),
				Suggestion: "use letters, digits and underscores only",
			}
		}
		if f.Steps[id] == nil {
			return &errors.ValidationError{
				Field:      "step." + id,
				Message:    "step definition is empty",
				Suggestion: "declare at least the action of the step",
			}
		}
	}

	stageIDs := make(map[string]bool)
	for i, s := range f.Stages {
		if stageIDs[s.ID] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("stage[%d].id", i),
				Message:    fmt.Sprintf("duplicate stage ID: %s", s.ID),
				Suggestion: "ensure each stage has a unique ID",
			}
		}
		stageIDs[s.ID] = true

		if err := f.checkStepRefs(fmt.Sprintf("stage[%d].step", i), s.Steps); err != nil {
			return err
		}
	}

	if f.Pre != nil {
		if err := f.checkStepRefs("pre.step", f.Pre.Steps); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) checkStepRefs(field string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := f.Step(id); !ok {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("undefined step: %s", id),
				Suggestion: fmt.Sprintf("add %q under the step section", id),
			}
		}
		if seen[id] {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("step %s listed twice", id),
				Suggestion: "a step can appear once per step list",
			}
		}
		seen[id] = true
	}
	return nil
}

func suggestionFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("add the %s field", strings.ToLower(fe.Field()))
	case "identifier":
		return "use letters, digits and underscores only"
	case "oneof":
		return fmt.Sprintf("use one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("declare at least %s entries", fe.Param())
	default:
		return ""
	}
}

// validateSchema checks the raw document against the embedded flow schema.
func validateSchema(doc interface{}) error {
	schemaLoaderOnce.Do(func() {
		schemaLoader = gojsonschema.NewBytesLoader(schemas.GetFlowSchema())
	})

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(normalize(doc)))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return &errors.ValidationError{
			Field:      "flow",
			Message:    strings.Join(msgs, "; "),
			Suggestion: "see schemas/flow.schema.json for the document structure",
		}
	}
	return nil
}

// normalize converts map[interface{}]interface{} nodes into string-keyed maps
// so the document can be marshalled to JSON.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
