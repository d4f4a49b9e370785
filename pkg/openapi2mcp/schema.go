// schema.go
package openapi2mcp

import (
	"regexp"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

const jsonMediaType = "application/json"

var pathPlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)

// paramKey identifies a parameter; OpenAPI treats (in, name) as unique.
type paramKey struct {
	in   string
	name string
}

// mergeParameters returns the operation-level parameters followed by the path-level ones that
// the operation does not override. Parameters still shaped like references are skipped.
func mergeParameters(pathLevel, opLevel *spec.Node) []*spec.Node {
	seen := map[paramKey]bool{}
	var merged []*spec.Node

	add := func(list *spec.Node) {
		if list == nil || list.Kind != spec.KindArray {
			return
		}
		for _, p := range list.Items {
			if p == nil || p.Kind != spec.KindObject {
				continue
			}
			key := paramKey{in: p.Get("in").StringOr(""), name: p.Get("name").StringOr("")}
			if key.name == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, p)
		}
	}
	add(opLevel)
	add(pathLevel)
	return merged
}

// jsonBodySchema returns requestBody.content["application/json"].schema, or nil.
func jsonBodySchema(requestBody *spec.Node) *spec.Node {
	return requestBody.Path("content", jsonMediaType, "schema")
}

// flattenable reports whether a body schema can be spread into the top-level input schema.
func flattenable(schema *spec.Node) bool {
	if schema == nil || schema.Kind != spec.KindObject || schema.HasRef() {
		return false
	}
	props := schema.Get("properties")
	return schema.Get("type").StringOr("") == "object" && props.IsObject() && props.Kind == spec.KindObject
}

// parameterSchema is the parameter's schema (default {type: string}) with its description added.
func parameterSchema(p *spec.Node) *spec.Node {
	var prop *spec.Node
	if s := p.Get("schema"); s.IsObject() {
		prop = s.Clone()
	} else {
		prop = spec.NewObject().Set("type", spec.NewScalar("string"))
	}
	if desc, ok := p.Get("description").Str(); ok && desc != "" {
		prop.Set("description", spec.NewScalar(desc))
	}
	return prop
}

// BuildInputSchema converts an operation's parameters and JSON request body into one JSON Schema
// object and records the request location of every property.
func BuildInputSchema(op OpenAPIOperation) (*spec.Node, map[string]ParamLocation, bool) {
	properties := spec.NewObject()
	locations := map[string]ParamLocation{}
	var required []string
	addRequired := func(name string) {
		for _, r := range required {
			if r == name {
				return
			}
		}
		required = append(required, name)
	}

	for _, p := range op.Parameters {
		name := p.Get("name").StringOr("")
		properties.Set(name, parameterSchema(p))
		locations[name] = ParamLocation(p.Get("in").StringOr(string(LocationQuery)))
		if p.Get("required").Bool() {
			addRequired(name)
		}
	}

	// placeholders the document forgot to declare still have to be filled
	for _, m := range pathPlaceholder.FindAllStringSubmatch(op.Path, -1) {
		name := m[1]
		if properties.Get(name) != nil {
			continue
		}
		properties.Set(name, spec.NewObject().Set("type", spec.NewScalar("string")))
		locations[name] = LocationPath
		addRequired(name)
	}

	body := jsonBodySchema(op.RequestBody)
	if body != nil {
		if flattenable(body) {
			props := body.Get("properties")
			for _, key := range props.Keys {
				properties.Set(key, props.Get(key))
				locations[key] = LocationBody
			}
			if req := body.Get("required"); req != nil && req.Kind == spec.KindArray {
				for _, r := range req.Items {
					if s, ok := r.Str(); ok {
						addRequired(s)
					}
				}
			}
		} else {
			properties.Set(BodyArgument, body)
			locations[BodyArgument] = LocationBody
			if op.RequestBody.Get("required").Bool() {
				addRequired(BodyArgument)
			}
		}
	}

	schema := spec.NewObject().
		Set("type", spec.NewScalar("object")).
		Set("properties", properties)
	if len(required) > 0 {
		schema.Set("required", spec.FromInterface(required))
	}
	return schema, locations, body != nil
}
