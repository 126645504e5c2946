package flow

import (
	"fmt"
	"strings"
)

// Str returns a data field as a string. Missing and null fields are empty.
func (n *Node) Str(key string) string {
	if n == nil || n.Data == nil {
		return ""
	}
	v, ok := n.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Blank reports whether a data field is missing or whitespace only
func (n *Node) Blank(key string) bool {
	return strings.TrimSpace(n.Str(key)) == ""
}

// DisplayName returns data.name, or fallback when it is blank
func (n *Node) DisplayName(fallback string) string {
	if name := strings.TrimSpace(n.Str("name")); name != "" {
		return name
	}
	return fallback
}

// Headline returns the primary short copy field for content nodes
func (n *Node) Headline() string {
	switch n.Type {
	case TypeEmail:
		return n.Str("subject")
	case TypePush:
		return n.Str("title")
	case TypeAd:
		return n.Str("headline")
	case TypeSocial:
		return n.Str("headline")
	}
	return ""
}

// Body returns the main copy field for content nodes
func (n *Node) Body() string {
	switch n.Type {
	case TypeEmail, TypePush:
		return n.Str("body")
	case TypeAd:
		if s := n.Str("body_copy"); s != "" {
			return s
		}
		return n.Str("primary_text")
	case TypeSocial:
		if s := n.Str("caption"); s != "" {
			return s
		}
		return n.Str("text")
	}
	return ""
}

// ContentFields renders the copy fields of a node as "Field: value" lines
func (n *Node) ContentFields() string {
	fields := []string{"subject", "body", "title", "caption", "text", "primary_text", "headline"}
	var parts []string
	for _, f := range fields {
		if v := n.Str(f); strings.TrimSpace(v) != "" {
			parts = append(parts, strings.ToUpper(f[:1])+f[1:]+": "+v)
		}
	}
	return strings.Join(parts, "\n")
}
