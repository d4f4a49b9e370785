package auth

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Scheme summarises one declared security scheme.
type Scheme struct {
	Name     string
	Type     string // apiKey, bearer, basic, oauth2, openIdConnect
	Location string // e.g. "header:Authorization", "query:key"
}

// DescribeSchemes lists the security schemes a document declares, sorted by
// name. Only used to tell operators which credential the API expects.
func DescribeSchemes(doc *openapi3.T) []Scheme {
	if doc == nil || doc.Components == nil || doc.Components.SecuritySchemes == nil {
		return nil
	}

	var out []Scheme
	for name, ref := range doc.Components.SecuritySchemes {
		if ref == nil || ref.Value == nil {
			continue
		}
		v := ref.Value
		s := Scheme{Name: name, Type: v.Type}
		switch v.Type {
		case "apiKey":
			in := "header"
			if v.In == "query" || v.In == "cookie" {
				in = v.In
			}
			s.Location = in + ":" + v.Name
		case "http":
			s.Type = v.Scheme
			s.Location = "header:Authorization"
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
