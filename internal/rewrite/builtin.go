package rewrite

import "fieldfix/internal/scan"

// TenantEmailVerified is the built-in rule: tenant insert calls must set the
// email verification fields.
func TenantEmailVerified() Spec {
	return Spec{
		Name: "tenant-email-verified",
		// тестовые файлы на TypeScript: строки и // комментарии не считаются
		Shape: scan.Shape{
			Prefix:      ".insert(tenants).values(",
			Open:        '{',
			Close:       '}',
			Suffix:      ");",
			Quotes:      "'\"`",
			LineComment: "//",
		},
		Marker: "emailVerified",
		Fields: []FieldAssignment{
			{Name: "emailVerified", Value: "true"},
			{Name: "emailVerifiedAt", Value: "new Date()"},
		},
	}
}

// Builtins lists the rules available without configuration.
func Builtins() []Spec {
	return []Spec{TenantEmailVerified()}
}
