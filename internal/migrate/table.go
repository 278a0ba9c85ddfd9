package migrate

import (
	"regexp"
	"strings"
)

// Patch is one file-specific search/replace. Search is an RE2 pattern; the
// match is replaced by Replace taken literally (no group expansion), so
// template text such as `${workDate}` survives unchanged.
type Patch struct {
	Path    string `json:"path" yaml:"path"`
	Label   string `json:"label" yaml:"label"`
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

// Manual marks a file that has no automatic patch and needs a human.
type Manual struct {
	Path string `json:"path" yaml:"path"`
	Note string `json:"note" yaml:"note"`
}

// Table is the declarative patch set.
type Table struct {
	Patches []Patch
	Manual  []Manual
}

// With returns a copy of t extended with extra patches.
func (t Table) With(extra ...Patch) Table {
	out := Table{
		Patches: append(append([]Patch(nil), t.Patches...), extra...),
		Manual:  append([]Manual(nil), t.Manual...),
	}
	return out
}

// spaced joins literal parts with runs of optional whitespace, the way the
// insertId calls are split over lines in the test sources.
func spaced(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return `(?s)` + strings.Join(quoted, `\s*`)
}

const fixesPath = "__tests__/timeclock.fixes.test.ts"

func timesheetInsert(clockIn, rows, label string) Patch {
	values := "VALUES (${testTenantId}, ${testEmployeeId}, " + clockIn + ", ${workDate})`"
	return Patch{
		Path:  fixesPath,
		Label: label,
		Search: spaced(
			"const insertResult = await dbInstance.execute(",
			"sql`INSERT INTO timesheets (tenantId, employeeId, clockIn, workDate) ",
			values,
			");",
			"const timesheetId = (insertResult as any).insertId;",
		),
		Replace: "await dbInstance.execute(\n" +
			"        sql`INSERT INTO timesheets (tenantId, employeeId, clockIn, workDate) \n" +
			"            " + values + "\n" +
			"      );\n" +
			"      \n" +
			"      // Retrieve the timesheet ID\n" +
			"      const [" + rows + "] = await dbInstance.execute(\n" +
			"        sql`SELECT id FROM timesheets WHERE tenantId = ${testTenantId} AND employeeId = ${testEmployeeId} AND workDate = ${workDate} ORDER BY clockIn DESC LIMIT 1`\n" +
			"      );\n" +
			"      const timesheetId = (" + rows + " as any[])[0].id;",
	}
}

func isoClock(v string) string {
	return "${" + v + ".toISOString().slice(0, 19).replace('T', ' ')}"
}

// InsertIDTable replaces reads of `insertId` from raw INSERT results with an
// explicit SELECT of the newest matching row. Paths are relative to the server
// root.
func InsertIDTable() Table {
	return Table{
		Patches: []Patch{
			timesheetInsert(isoClock("twoHoursAgo"), "tsRows", "shift length validation"),
			timesheetInsert(isoClock("eighteenHoursAgo"), "tsRows2", "long shifts"),
			timesheetInsert(isoClock("twoPointFiveHoursAgo"), "tsRows3", "time calculation accuracy"),
			timesheetInsert("NOW()", "tsRows4", "very short shifts"),
			{
				Path:   "__tests__/timeclock.admin.test.ts",
				Label:  "long shift id lookup",
				Search: regexp.QuoteMeta("const longShiftId = (result as any).insertId;"),
				Replace: "// Retrieve the timesheet ID\n" +
					"      const [longShiftRows] = await dbInstance.execute(\n" +
					"        sql`SELECT id FROM timesheets WHERE tenantId = ${testTenantId} AND employeeId = ${testEmployeeId1} ORDER BY clockIn DESC LIMIT 1`\n" +
					"      );\n" +
					"      const longShiftId = (longShiftRows as any[])[0].id;",
			},
		},
		Manual: []Manual{
			{Path: "__tests__/timeclock.comprehensive.test.ts", Note: "insertId usages need manual fixes"},
		},
	}
}
