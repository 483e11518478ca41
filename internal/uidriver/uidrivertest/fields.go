package uidrivertest

import "strings"

func splitFields(s string) []string { return strings.Fields(s) }

func joinFields(fs []string) string { return strings.Join(fs, " ") }

func containsField(s, field string) bool {
	for _, f := range strings.Fields(s) {
		if f == field {
			return true
		}
	}
	return false
}
