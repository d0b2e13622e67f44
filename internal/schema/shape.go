package schema

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/josephgoksu/plantrack/types"
)

type valueType int

const (
	typeString valueType = iota
	typeInteger
	typeObject
	typeArray
)

func (t valueType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeInteger:
		return "integer"
	case typeObject:
		return "object"
	case typeArray:
		return "array"
	default:
		return "unknown"
	}
}

// field describes one expected member of a JSON object. For arrays, elem
// is the element type and fields the element shape when elem is an object.
type field struct {
	name     string
	typ      valueType
	required bool
	elem     valueType
	fields   []field
}

var statusShape = []field{
	{name: "state", typ: typeString, required: true},
	{name: "startedAt", typ: typeString},
	{name: "completedAt", typ: typeString},
	{name: "notes", typ: typeString},
	{name: "blockReason", typ: typeString},
}

var actionShape = []field{
	{name: "type", typ: typeString, required: true},
	{name: "description", typ: typeString, required: true},
	{name: "payload", typ: typeObject},
}

var stepShape = []field{
	{name: "id", typ: typeString, required: true},
	{name: "title", typ: typeString, required: true},
	{name: "description", typ: typeString},
	{name: "kind", typ: typeString, required: true},
	{name: "dependsOn", typ: typeArray, elem: typeString},
	{name: "actions", typ: typeArray, elem: typeObject, fields: actionShape},
	{name: "validation", typ: typeObject, fields: []field{
		{name: "criteria", typ: typeArray, elem: typeString},
		{name: "automatedTests", typ: typeArray, elem: typeString},
	}},
	{name: "status", typ: typeObject, fields: statusShape},
}

var planShape = []field{
	{name: "planId", typ: typeString, required: true},
	{name: "schemaVersion", typ: typeString, required: true},
	{name: "planType", typ: typeString, required: true},
	{name: "metadata", typ: typeObject, required: true, fields: []field{
		{name: "title", typ: typeString, required: true},
		{name: "description", typ: typeString},
		{name: "author", typ: typeString},
		{name: "createdAt", typ: typeString},
		{name: "updatedAt", typ: typeString},
		{name: "revision", typ: typeInteger},
		{name: "archivedAt", typ: typeString},
	}},
	{name: "objective", typ: typeString, required: true},
	{name: "scope", typ: typeObject, fields: []field{
		{name: "inScope", typ: typeArray, elem: typeString},
		{name: "outOfScope", typ: typeArray, elem: typeString},
	}},
	{name: "constraints", typ: typeArray, elem: typeString},
	{name: "phases", typ: typeArray, elem: typeObject, fields: []field{
		{name: "id", typ: typeString, required: true},
		{name: "title", typ: typeString, required: true},
		{name: "stepIds", typ: typeArray, elem: typeString},
	}},
	{name: "steps", typ: typeArray, required: true, elem: typeObject, fields: stepShape},
}

// checkShape walks the raw document and reports missing required members
// and members of the wrong JSON type. Unknown members are ignored.
func checkShape(root gjson.Result) []types.Issue {
	var issues []types.Issue
	if !root.IsObject() {
		issue := types.NewIssue(types.KindStructural, CodeInvalidType,
			fmt.Sprintf("document must be an object, got %s", describe(root)))
		return append(issues, *issue)
	}
	checkObject(root, "", planShape, &issues)
	return issues
}

func checkObject(obj gjson.Result, path string, fields []field, issues *[]types.Issue) {
	for _, f := range fields {
		fieldPath := joinPath(path, f.name)
		v := obj.Get(f.name)
		if !v.Exists() || v.Type == gjson.Null {
			if f.required {
				*issues = append(*issues, shapeIssue(CodeRequired, fieldPath, "required field is missing"))
			}
			continue
		}
		if !hasType(v, f.typ) {
			*issues = append(*issues, shapeIssue(CodeInvalidType, fieldPath,
				fmt.Sprintf("expected %s, got %s", f.typ, describe(v))))
			continue
		}
		switch f.typ {
		case typeObject:
			checkObject(v, fieldPath, f.fields, issues)
		case typeArray:
			for i, elem := range v.Array() {
				elemPath := fmt.Sprintf("%s[%d]", fieldPath, i)
				if !hasType(elem, f.elem) {
					*issues = append(*issues, shapeIssue(CodeInvalidType, elemPath,
						fmt.Sprintf("expected %s, got %s", f.elem, describe(elem))))
					continue
				}
				if f.elem == typeObject {
					checkObject(elem, elemPath, f.fields, issues)
				}
			}
		}
	}
}

func hasType(v gjson.Result, t valueType) bool {
	switch t {
	case typeString:
		return v.Type == gjson.String
	case typeInteger:
		return v.Type == gjson.Number && v.Num == math.Trunc(v.Num)
	case typeObject:
		return v.IsObject()
	case typeArray:
		return v.IsArray()
	default:
		return false
	}
}

func describe(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	case v.IsBool():
		return "boolean"
	}
	switch v.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.Null:
		return "null"
	default:
		return "unknown"
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func shapeIssue(code, path, message string) types.Issue {
	issue := types.NewIssue(types.KindStructural, code, message)
	issue.Path = path
	return *issue
}
