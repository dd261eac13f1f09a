package cli

import (
	"fmt"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/syncer"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/pterm/pterm"
)

const timestampFormat = "2006-01-02 15:04"

func renderResult(result *syncer.LoadResult) {
	if result == nil {
		return
	}

	pterm.DefaultSection.Println(util.FormatForDisplay(result.Month))
	renderNotice(result)
	if result.State == syncer.StateFailed {
		return
	}

	renderSummary(result)
	renderTransactions(result.Transactions)
}

func renderNotice(result *syncer.LoadResult) {
	if result == nil {
		return
	}
	switch result.State {
	case syncer.StateDegradedFallback:
		if result.LastSync.IsZero() {
			pterm.Warning.Println(string(result.Notice))
			return
		}
		pterm.Warning.Printfln("%s (last synced %s)", result.Notice, result.LastSync.Local().Format(timestampFormat))
	case syncer.StateFailed:
		pterm.Error.Println(string(result.Notice))
	}
}

func renderSummary(result *syncer.LoadResult) {
	summary := result.Summary
	if summary == nil {
		return
	}

	rollover := "off"
	if summary.RolloverEnabled {
		rollover = "on"
	}
	if result.RolloverLocked {
		rollover += " (first month)"
	}

	remaining := summary.RemainingBudget.StringFixed(2)
	if summary.IsOverBudget {
		remaining = pterm.FgRed.Sprint(remaining)
	} else {
		remaining = pterm.FgGreen.Sprint(remaining)
	}

	data := pterm.TableData{
		{"Budget", summary.BudgetAmount.StringFixed(2)},
		{"Spent", summary.TotalTransactions.StringFixed(2)},
		{"Remaining", remaining},
		{"Rollover", rollover},
	}
	if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
		pterm.Error.Printfln("Failed to render summary: %v", err)
	}
}

func renderTransactions(transactions []*domain.Transaction) {
	if len(transactions) == 0 {
		pterm.Info.Println("No transactions this month")
		return
	}

	data := pterm.TableData{{"ID", "Date", "Name", "Amount", "By"}}
	for _, t := range transactions {
		id := fmt.Sprintf("%d", t.ID)
		if t.ID < 0 {
			id = "pending"
		}
		amount := "-" + t.Amount.StringFixed(2)
		if t.Type == domain.TransactionTypeDeposit {
			amount = "+" + t.Amount.StringFixed(2)
		}
		by := ""
		if t.Username != nil {
			by = *t.Username
		}
		data = append(data, []string{id, t.Timestamp.Local().Format(timestampFormat), t.Name, amount, by})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Printfln("Failed to render transactions: %v", err)
	}
}

func renderMonths(months []string) {
	items := make([]pterm.BulletListItem, 0, len(months))
	for _, key := range months {
		text := fmt.Sprintf("%s  %s", key, util.FormatForDisplay(key))
		if util.IsCurrentMonth(key) {
			text = pterm.Bold.Sprint(text + " (current)")
		}
		items = append(items, pterm.BulletListItem{Level: 0, Text: text})
	}
	if err := pterm.DefaultBulletList.WithItems(items).Render(); err != nil {
		pterm.Error.Printfln("Failed to render months: %v", err)
	}
}
