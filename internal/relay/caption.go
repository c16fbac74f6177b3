package relay

import "strings"

// Rule is the caption substitution applied to every relayed item.
type Rule struct {
	Remove string
	Add    string
}

// Apply returns caption with the rule applied.
func (r Rule) Apply(caption string) string {
	return ReplaceCaption(caption, r.Remove, r.Add)
}

// ReplaceCaption replaces every literal, case-sensitive occurrence of remove
// with add. Pattern characters have no special meaning. An empty remove
// leaves the caption unchanged.
func ReplaceCaption(caption, remove, add string) string {
	if remove == "" {
		return caption
	}
	return strings.ReplaceAll(caption, remove, add)
}
