// Package schema validates raw plan documents against the versioned
// structural schema: presence, primitive types, enum membership, bounds and
// per-step status invariants. It never looks across steps.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"sigs.k8s.io/yaml"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// Issue codes reported by the schema validator.
const (
	CodeMalformed        = "malformed_document"
	CodeRequired         = "required"
	CodeInvalidType      = "invalid_type"
	CodeInvalidEnum      = "invalid_enum"
	CodeEmpty            = "empty"
	CodeTooLong          = "too_long"
	CodeTooMany          = "too_many"
	CodeDuplicateEntry   = "duplicate_entry"
	CodeInvalidTimestamp = "invalid_timestamp"
	CodeOutOfRange       = "out_of_range"
	CodeInvalidStatus    = "invalid_status"
	CodeInvalidOrder     = "invalid_order"
	CodeInvalidPayload   = "invalid_payload"
	CodeInvalidFormat    = "invalid_format"
)

// Result is the outcome of schema validation. Document is the best-effort
// decode of the input; it is nil only when the input is not a JSON or YAML
// object at all.
type Result struct {
	Valid    bool                 `json:"isValid"`
	Errors   []types.Issue        `json:"errors"`
	Document *models.PlanDocument `json:"-"`
}

// Report converts the result into the shared report shape.
func (r Result) Report() types.Report {
	report := types.NewReport()
	for i := range r.Errors {
		report.AddError(&r.Errors[i])
	}
	return report
}

// Validator checks documents against one plan configuration. It is safe
// for concurrent use.
type Validator struct {
	cfg      config.PlanConfig
	validate *validator.Validate
}

// New creates a schema validator bound to cfg.
func New(cfg config.PlanConfig) *Validator {
	v := &Validator{cfg: cfg, validate: validator.New()}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validation for non-empty trimmed strings
	_ = v.validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.validate.RegisterValidation("schema_version", func(fl validator.FieldLevel) bool {
		return cfg.HasSchemaVersion(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("plan_type", func(fl validator.FieldLevel) bool {
		return cfg.HasPlanType(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("step_kind", func(fl validator.FieldLevel) bool {
		return cfg.HasStepKind(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("step_state", func(fl validator.FieldLevel) bool {
		return cfg.HasStepState(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("action_type", func(fl validator.FieldLevel) bool {
		t := fl.Field().String()
		return cfg.HasStepKind(t) && models.NewPayload(models.ActionType(t)) != nil
	})
	_ = v.validate.RegisterValidation("max_steps", func(fl validator.FieldLevel) bool {
		return fl.Field().Len() <= cfg.MaxSteps
	})
	_ = v.validate.RegisterValidation("title_length", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= config.MaxTitleLength
	})
	_ = v.validate.RegisterValidation("id_length", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= config.MaxIDLength
	})
	_ = v.validate.RegisterValidation("plan_id", func(fl validator.FieldLevel) bool {
		return models.ValidPlanID(fl.Field().String())
	})

	v.validate.RegisterStructValidation(statusInvariants, models.StepStatusDocument{})
	v.validate.RegisterStructValidation(metadataInvariants, models.MetadataDocument{})

	return v
}

// Validate checks a raw JSON or YAML document.
func (v *Validator) Validate(raw []byte) Result {
	data, err := yaml.YAMLToJSON(raw)
	if err != nil {
		issue := types.NewIssue(types.KindStructural, CodeMalformed,
			fmt.Sprintf("document is neither JSON nor YAML: %v", err))
		return Result{Errors: []types.Issue{*issue}}
	}
	return v.validateJSON(data)
}

// ValidateValue checks an already-decoded, untyped document such as the
// result of unmarshalling into map[string]any.
func (v *Validator) ValidateValue(doc any) Result {
	data, err := json.Marshal(doc)
	if err != nil {
		issue := types.NewIssue(types.KindStructural, CodeMalformed,
			fmt.Sprintf("document cannot be encoded: %v", err))
		return Result{Errors: []types.Issue{*issue}}
	}
	return v.validateJSON(data)
}

func (v *Validator) validateJSON(data []byte) Result {
	if !gjson.ValidBytes(data) {
		issue := types.NewIssue(types.KindStructural, CodeMalformed, "document is not valid JSON")
		return Result{Errors: []types.Issue{*issue}}
	}

	root := gjson.ParseBytes(data)
	shapeIssues := checkShape(root)
	if !root.IsObject() {
		return Result{Errors: shapeIssues}
	}

	// Type mismatches were reported by the shape pass; the decoder skips
	// those members and keeps going.
	doc := &models.PlanDocument{}
	decodeErr := json.Unmarshal(data, doc)

	var contentIssues []types.Issue
	contentIssues = append(contentIssues, v.checkContent(doc)...)
	contentIssues = append(contentIssues, v.checkPayloads(doc)...)

	issues := append(shapeIssues, dropCovered(contentIssues, shapeIssues)...)
	if len(issues) == 0 && decodeErr != nil {
		issue := types.NewIssue(types.KindStructural, CodeMalformed, decodeErr.Error())
		var typeErr *json.UnmarshalTypeError
		if errors.As(decodeErr, &typeErr) {
			issue.Path = typeErr.Field
		}
		issues = append(issues, *issue)
	}

	return Result{
		Valid:    len(issues) == 0,
		Errors:   nonNil(issues),
		Document: doc,
	}
}

// checkContent runs the struct tags and struct-level rules.
func (v *Validator) checkContent(doc *models.PlanDocument) []types.Issue {
	err := v.validate.Struct(doc)
	return v.translate(err, "")
}

// checkPayloads decodes every action payload into the typed variant of its
// action type and validates it.
func (v *Validator) checkPayloads(doc *models.PlanDocument) []types.Issue {
	var issues []types.Issue
	for i, step := range doc.Steps {
		for j, action := range step.Actions {
			t := models.ActionType(action.Type)
			if !v.cfg.HasStepKind(action.Type) || models.NewPayload(t) == nil {
				continue
			}
			path := fmt.Sprintf("steps[%d].actions[%d].payload", i, j)

			payload, err := models.DecodePayloadAs(t, action.Payload)
			if err != nil {
				issue := types.Issuef(types.KindStructural, CodeInvalidPayload,
					"payload does not match %s: %v", t, err)
				issue.Path = path
				issues = append(issues, *issue)
				continue
			}
			if _, ok := payload.(*models.CustomPayload); ok {
				continue
			}
			issues = append(issues, v.translate(v.validate.Struct(payload), path)...)
		}
	}
	return issues
}

// translate turns validator errors into issues. prefix replaces the root
// struct name in each error namespace.
func (v *Validator) translate(err error, prefix string) []types.Issue {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		issue := types.NewIssue(types.KindStructural, CodeMalformed, err.Error())
		issue.Path = prefix
		return []types.Issue{*issue}
	}

	issues := make([]types.Issue, 0, len(verrs))
	for _, fe := range verrs {
		code, message := v.describe(fe)
		issue := types.NewIssue(types.KindStructural, code, message)
		issue.Path = fieldPath(fe.Namespace(), prefix)
		issues = append(issues, *issue)
	}
	return issues
}

// fieldPath strips the root struct name from a validator namespace such as
// "PlanDocument.steps[3].kind".
func fieldPath(namespace, prefix string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return prefix
	}
	return joinPath(prefix, rest)
}

// describe creates a code and human-readable message for a field error.
func (v *Validator) describe(fe validator.FieldError) (string, string) {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return CodeRequired, "required field is missing"
	case "nonempty":
		return CodeEmpty, "cannot be empty or whitespace"
	case "max":
		if isString {
			return CodeTooLong, fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return CodeTooMany, fmt.Sprintf("must have at most %s items", fe.Param())
	case "title_length":
		return CodeTooLong, fmt.Sprintf("must be at most %d characters", config.MaxTitleLength)
	case "id_length":
		return CodeTooLong, fmt.Sprintf("must be at most %d characters", config.MaxIDLength)
	case "plan_id":
		return CodeInvalidFormat, fmt.Sprintf("%q must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", fe.Value())
	case "max_steps":
		return CodeTooMany, fmt.Sprintf("must have at most %d steps, got %d", v.cfg.MaxSteps, reflect.ValueOf(fe.Value()).Len())
	case "unique":
		return CodeDuplicateEntry, "must not contain duplicate entries"
	case "datetime":
		return CodeInvalidTimestamp, fmt.Sprintf("must be an RFC 3339 timestamp, got %q", fe.Value())
	case "gte":
		return CodeOutOfRange, fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return CodeOutOfRange, fmt.Sprintf("must be at most %s", fe.Param())
	case "schema_version":
		return CodeInvalidEnum, enumMessage(fe.Value(), v.cfg.SchemaVersions)
	case "plan_type":
		return CodeInvalidEnum, enumMessage(fe.Value(), v.cfg.PlanTypes)
	case "step_kind", "action_type":
		return CodeInvalidEnum, enumMessage(fe.Value(), v.cfg.StepKinds)
	case "step_state":
		return CodeInvalidEnum, enumMessage(fe.Value(), v.cfg.StepStates)
	case tagRequiredWhenBlocked:
		return CodeInvalidStatus, "blockReason is required when state is blocked"
	case tagOnlyWhenBlocked:
		return CodeInvalidStatus, fmt.Sprintf("blockReason is only allowed when state is blocked, state is %q", fe.Param())
	case tagRequiredWhenTerminal:
		return CodeInvalidStatus, fmt.Sprintf("completedAt is required when state is %q", fe.Param())
	case tagOnlyWhenTerminal:
		return CodeInvalidStatus, fmt.Sprintf("completedAt must be unset when state is %q", fe.Param())
	case tagRequiredWhenStarted:
		return CodeInvalidStatus, fmt.Sprintf("startedAt is required when state is %q", fe.Param())
	case tagOnlyWhenStarted:
		return CodeInvalidStatus, "startedAt must be unset while pending"
	case tagNotBefore:
		return CodeInvalidOrder, fmt.Sprintf("must not be earlier than %s", fe.Param())
	default:
		return CodeInvalidType, fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

func enumMessage(value any, allowed []string) string {
	return fmt.Sprintf("%q is not one of: %s", value, strings.Join(allowed, ", "))
}

// Struct-level tags.
const (
	tagRequiredWhenBlocked  = "required_when_blocked"
	tagOnlyWhenBlocked      = "only_when_blocked"
	tagRequiredWhenTerminal = "required_when_terminal"
	tagOnlyWhenTerminal     = "only_when_terminal"
	tagRequiredWhenStarted  = "required_when_started"
	tagOnlyWhenStarted      = "only_when_started"
	tagNotBefore            = "not_before"
)

// statusInvariants enforces the status block rules: blockReason iff
// blocked, completedAt iff terminal, startedAt iff not pending.
func statusInvariants(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.StepStatusDocument)
	state := models.StepState(s.State)
	if !state.IsValid() {
		return
	}

	blocked := state == models.StateBlocked
	switch {
	case blocked && strings.TrimSpace(s.BlockReason) == "":
		sl.ReportError(s.BlockReason, "blockReason", "BlockReason", tagRequiredWhenBlocked, s.State)
	case !blocked && s.BlockReason != "":
		sl.ReportError(s.BlockReason, "blockReason", "BlockReason", tagOnlyWhenBlocked, s.State)
	}

	switch {
	case state.IsTerminal() && s.CompletedAt == "":
		sl.ReportError(s.CompletedAt, "completedAt", "CompletedAt", tagRequiredWhenTerminal, s.State)
	case !state.IsTerminal() && s.CompletedAt != "":
		sl.ReportError(s.CompletedAt, "completedAt", "CompletedAt", tagOnlyWhenTerminal, s.State)
	}

	switch {
	case state.IsStarted() && s.StartedAt == "":
		sl.ReportError(s.StartedAt, "startedAt", "StartedAt", tagRequiredWhenStarted, s.State)
	case !state.IsStarted() && s.StartedAt != "":
		sl.ReportError(s.StartedAt, "startedAt", "StartedAt", tagOnlyWhenStarted, s.State)
	}

	if before(s.CompletedAt, s.StartedAt) {
		sl.ReportError(s.CompletedAt, "completedAt", "CompletedAt", tagNotBefore, "startedAt")
	}
}

// metadataInvariants enforces updatedAt >= createdAt.
func metadataInvariants(sl validator.StructLevel) {
	m := sl.Current().Interface().(models.MetadataDocument)
	if before(m.UpdatedAt, m.CreatedAt) {
		sl.ReportError(m.UpdatedAt, "updatedAt", "UpdatedAt", tagNotBefore, "createdAt")
	}
}

// before reports whether timestamp a is strictly earlier than b. Unset or
// malformed timestamps compare false; the datetime tag reports those.
func before(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := time.Parse(models.TimestampLayout, a)
	tb, errB := time.Parse(models.TimestampLayout, b)
	if errA != nil || errB != nil {
		return false
	}
	return ta.Before(tb)
}

// dropCovered removes issues at or below a path the shape pass already
// reported, so each violation appears once.
func dropCovered(issues, covering []types.Issue) []types.Issue {
	if len(covering) == 0 {
		return issues
	}
	out := issues[:0]
	for _, issue := range issues {
		if !covered(issue.Path, covering) {
			out = append(out, issue)
		}
	}
	return out
}

func covered(path string, covering []types.Issue) bool {
	for _, c := range covering {
		if c.Path == "" || path == c.Path ||
			strings.HasPrefix(path, c.Path+".") || strings.HasPrefix(path, c.Path+"[") {
			return true
		}
	}
	return false
}

func nonNil(issues []types.Issue) []types.Issue {
	if issues == nil {
		return []types.Issue{}
	}
	return issues
}
