package qbosync

import (
	"strings"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// reportPayload mirrors the QuickBooks Online report envelope: a header plus a
// recursive row tree where section rows nest data rows and summary rows.
type reportPayload struct {
	Header struct {
		ReportName  string `json:"ReportName"`
		StartPeriod string `json:"StartPeriod"`
		EndPeriod   string `json:"EndPeriod"`
		Currency    string `json:"Currency"`
	} `json:"Header"`
	Rows reportRows `json:"Rows"`
}

type reportRows struct {
	Row []reportRow `json:"Row"`
}

type reportRow struct {
	Type    string      `json:"type"`
	Group   string      `json:"group"`
	Header  *reportCols `json:"Header"`
	Rows    reportRows  `json:"Rows"`
	Summary *reportCols `json:"Summary"`
	ColData []reportCol `json:"ColData"`
}

type reportCols struct {
	ColData []reportCol `json:"ColData"`
}

type reportCol struct {
	Value string `json:"value"`
	Id    string `json:"id"`
}

// plSection is the typed form of one top-level report section after the raw
// row tree has been walked. Only sections that map to an account type are
// kept; summary and total rows never survive into Rows.
type plSection struct {
	Type models.AccountType
	Rows []plLine
}

// plLine is a single account line pulled out of a report: the label as it
// appeared, the QBO account id when the report carried one, and the signed
// amount as parsed (parenthesized values come out negative).
type plLine struct {
	Label        string
	QboAccountId string
	Amount       decimal.Decimal
}

// sectionTypeForGroup maps a QBO report section group to the account type its
// lines post under. Unknown groups return false and the section is skipped.
func sectionTypeForGroup(group string) (models.AccountType, bool) {
	switch group {
	case "Income":
		return models.AccountTypeRevenue, true
	case "COGS":
		return models.AccountTypeCostOfGoodsSold, true
	case "Expenses":
		return models.AccountTypeExpense, true
	}
	return "", false
}

// parseReportAmount parses a report cell value. QBO formats amounts with
// thousands separators and renders negatives in parentheses. Returns false
// for empty or unparseable cells.
func parseReportAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, true
}

// skipReportLabel reports whether a row label is an aggregate the report
// renders inline (totals, net income lines) rather than an account.
func skipReportLabel(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return true
	}
	return strings.Contains(lower, "total") || strings.HasPrefix(lower, "net ")
}

// parseProfitAndLoss walks the raw report row tree and produces the typed
// section list. Nested subsections flatten into their parent section.
func parseProfitAndLoss(payload *reportPayload) []plSection {
	var sections []plSection
	for _, row := range payload.Rows.Row {
		sectionType, ok := sectionTypeForGroup(row.Group)
		if !ok {
			continue
		}
		section := plSection{Type: sectionType}
		collectSectionLines(row, &section.Rows)
		if len(section.Rows) > 0 {
			sections = append(sections, section)
		}
	}
	return sections
}

func collectSectionLines(row reportRow, out *[]plLine) {
	for _, child := range row.Rows.Row {
		if len(child.Rows.Row) > 0 {
			collectSectionLines(child, out)
			continue
		}
		if len(child.ColData) < 2 {
			continue
		}
		label := child.ColData[0].Value
		if skipReportLabel(label) {
			continue
		}
		amount, ok := parseReportAmount(child.ColData[len(child.ColData)-1].Value)
		if !ok || amount.IsZero() {
			continue
		}
		*out = append(*out, plLine{
			Label:        strings.TrimSpace(label),
			QboAccountId: child.ColData[0].Id,
			Amount:       amount,
		})
	}
}

// parseTrialBalance flattens a trial balance report into plain lines. Trial
// balance rows carry debit and credit columns; whichever side is populated
// becomes the line amount. Account typing is resolved later against the
// chart of accounts, so lines here carry no section type.
func parseTrialBalance(payload *reportPayload) []plLine {
	var lines []plLine
	collectTrialBalanceLines(payload.Rows, &lines)
	return lines
}

func collectTrialBalanceLines(rows reportRows, out *[]plLine) {
	for _, row := range rows.Row {
		if len(row.Rows.Row) > 0 {
			collectTrialBalanceLines(row.Rows, out)
			continue
		}
		if len(row.ColData) < 2 {
			continue
		}
		label := row.ColData[0].Value
		if skipReportLabel(label) {
			continue
		}
		amount := decimal.Decimal{}
		found := false
		for _, col := range row.ColData[1:] {
			if parsed, ok := parseReportAmount(col.Value); ok && !parsed.IsZero() {
				amount = parsed
				found = true
				break
			}
		}
		if !found {
			continue
		}
		*out = append(*out, plLine{
			Label:        strings.TrimSpace(label),
			QboAccountId: row.ColData[0].Id,
			Amount:       amount,
		})
	}
}
