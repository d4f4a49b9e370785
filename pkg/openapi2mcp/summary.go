// summary.go
package openapi2mcp

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// PrintToolSummary writes a human-readable listing of generated tools and resources.
//
// Output example:
//
//	Total tools: 3
//	  GET    /pets             listPets
//	  POST   /pets             createPet (body)
//	  GET    /pets/{id}        getPet
//	Tags:
//	  pets: 3
//	Resources: 3
//	  api://pets
//	  api://pets/{id} (template)
//	  openapi://spec
func PrintToolSummary(w io.Writer, tools []ToolDefinition, resources []ResourceDescriptor) {
	tagCount := map[string]int{}
	width := 0
	for _, t := range tools {
		if len(t.Path) > width {
			width = len(t.Path)
		}
		for _, tag := range t.Tags {
			tagCount[tag]++
		}
	}

	fmt.Fprintf(w, "Total tools: %d\n", len(tools))
	for _, t := range tools {
		suffix := ""
		if t.HasRequestBody {
			suffix = " (body)"
		}
		fmt.Fprintf(w, "  %-7s%-*s  %s%s\n", t.Method, width, t.Path, t.Name, suffix)
	}

	if len(tagCount) > 0 {
		tags := make([]string, 0, len(tagCount))
		for tag := range tagCount {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		fmt.Fprintln(w, "Tags:")
		for _, tag := range tags {
			fmt.Fprintf(w, "  %s: %d\n", tag, tagCount[tag])
		}
	}

	fmt.Fprintf(w, "Resources: %d\n", len(resources))
	for _, r := range resources {
		line := "  " + r.Address()
		if r.IsTemplate() {
			line += " (template)"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
