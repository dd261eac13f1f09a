package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/syncer"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

func (app *App) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the budget summary and transactions of a month",
		Args:  cobra.NoArgs,
		RunE:  app.runSummary,
	}
}

func (app *App) runSummary(cmd *cobra.Command, args []string) error {
	result, err := app.syncer.Load(cmd.Context(), app.month(cmd), false)
	renderResult(result)
	return report(err)
}

func (app *App) txCmd() *cobra.Command {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the transactions of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.syncer.Load(cmd.Context(), app.month(cmd), false)
			if result != nil {
				renderNotice(result)
				renderTransactions(result.Transactions)
			}
			return report(err)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add NAME AMOUNT",
		Short: "Record a withdrawal, or a deposit with --deposit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return report(err)
			}
			deposit, _ := cmd.Flags().GetBool("deposit")
			at, _ := cmd.Flags().GetString("at")
			timestamp, err := app.parseTimestamp(at)
			if err != nil {
				return report(err)
			}

			result, err := app.syncer.CreateTransaction(cmd.Context(), domain.TransactionInput{
				Name:      args[0],
				Amount:    amount,
				Type:      transactionType(deposit),
				Timestamp: timestamp,
			})
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Recorded %s", args[0])
			renderResult(result)
			return nil
		},
	}
	addCmd.Flags().Bool("deposit", false, "Record money coming in")
	addCmd.Flags().String("at", "", "When it happened (RFC3339, \"2006-01-02 15:04\" or \"2006-01-02\")")

	editCmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a transaction of the selected month",
		Args:  cobra.ExactArgs(1),
		RunE:  app.runEdit,
	}
	editCmd.Flags().String("name", "", "New name")
	editCmd.Flags().String("amount", "", "New amount")
	editCmd.Flags().String("type", "", "New type: withdraw or deposit")
	editCmd.Flags().String("at", "", "New timestamp")

	rmCmd := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a transaction",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return report(err)
			}
			result, err := app.syncer.DeleteTransaction(cmd.Context(), id)
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Deleted transaction %d", id)
			renderResult(result)
			return nil
		},
	}

	txCmd.AddCommand(listCmd, addCmd, editCmd, rmCmd)
	return txCmd
}

func (app *App) runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0])
	if err != nil {
		return report(err)
	}

	current, err := app.syncer.Load(ctx, app.month(cmd), true)
	if err != nil {
		return report(err)
	}
	var existing *domain.Transaction
	for _, t := range current.Transactions {
		if t.ID == id {
			existing = t
			break
		}
	}
	if existing == nil {
		return report(fmt.Errorf("%w in %s", domain.ErrTransactionNotFound, current.Month))
	}

	input := domain.TransactionInput{
		DeviceID:  existing.DeviceID,
		Name:      existing.Name,
		Amount:    existing.Amount,
		Type:      existing.Type,
		Timestamp: existing.Timestamp,
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		input.Name = name
	}
	if raw, _ := cmd.Flags().GetString("amount"); raw != "" {
		if input.Amount, err = parseAmount(raw); err != nil {
			return report(err)
		}
	}
	if raw, _ := cmd.Flags().GetString("type"); raw != "" {
		input.Type = domain.TransactionType(strings.ToLower(raw))
	}
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		if input.Timestamp, err = app.parseTimestamp(raw); err != nil {
			return report(err)
		}
	}

	result, err := app.syncer.UpdateTransaction(ctx, id, input)
	if err != nil {
		return report(err)
	}
	pterm.Success.Printfln("Updated transaction %d", id)
	renderResult(result)
	return nil
}

func (app *App) budgetCmd() *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budget amounts",
	}

	setCmd := &cobra.Command{
		Use:   "set AMOUNT",
		Short: "Set the base budget of the selected month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return report(fmt.Errorf("%w: %q is not a number", domain.ErrInvalidInput, args[0]))
			}
			result, err := app.syncer.UpdateBudgetAmount(cmd.Context(), app.month(cmd), amount)
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Budget of %s set to %s", util.FormatForDisplay(result.Month), amount.StringFixed(2))
			renderResult(result)
			return nil
		},
	}

	defaultCmd := &cobra.Command{
		Use:   "default AMOUNT",
		Short: "Set the budget new months start with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.syncer.UpdateDefaultBudget(cmd.Context(), args[0])
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Default budget set to %s", args[0])
			renderNotice(result)
			return nil
		},
	}

	budgetCmd.AddCommand(setCmd, defaultCmd)
	return budgetCmd
}

func (app *App) rolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "rollover on|off",
		Short:     "Carry the previous months' balance into the selected month",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := args[0] == "on"
			result, err := app.syncer.ToggleRollover(cmd.Context(), app.month(cmd), enabled)
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Rollover %s for %s", args[0], util.FormatForDisplay(result.Month))
			renderResult(result)
			return nil
		},
	}
}

func (app *App) monthsCmd() *cobra.Command {
	monthsCmd := &cobra.Command{
		Use:   "months",
		Short: "List calendar months around the selected month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			last, _ := cmd.Flags().GetInt("last")
			next, _ := cmd.Flags().GetInt("next")

			var months []string
			if from != "" || to != "" {
				if !util.IsValidMonthKey(from) || !util.IsValidMonthKey(to) {
					return report(domain.ErrInvalidMonthKey)
				}
				months = util.MonthsBetween(from, to)
			} else {
				anchor := app.month(cmd)
				if !util.IsValidMonthKey(anchor) {
					return report(domain.ErrInvalidMonthKey)
				}
				months = append(util.LastNMonths(anchor, last), util.NextNMonths(util.NextMonth(anchor), next)...)
			}

			renderMonths(months)
			return nil
		},
	}
	monthsCmd.Flags().Int("last", 6, "Months up to and including the selected one")
	monthsCmd.Flags().Int("next", 0, "Months after the selected one")
	monthsCmd.Flags().String("from", "", "First month of an explicit range")
	monthsCmd.Flags().String("to", "", "Last month of an explicit range")
	return monthsCmd
}

func (app *App) deviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Manage this device",
	}

	registerCmd := &cobra.Command{
		Use:   "register [USERNAME]",
		Short: "Register this device and the name shown on its transactions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.loader.Current()
			username := cfg.Username
			if len(args) == 1 {
				username = args[0]
			}
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name = cfg.DeviceName
			}

			device, err := app.syncer.RegisterDevice(cmd.Context(), username, name)
			if err != nil {
				return report(err)
			}
			pterm.Success.Printfln("Registered %s as %s", device.DeviceID, device.Username)
			return nil
		},
	}
	registerCmd.Flags().String("name", "", "Human readable device name")

	deviceCmd.AddCommand(registerCmd)
	return deviceCmd
}

func (app *App) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow changes made from other devices. SIGHUP reloads the configuration.",
		Args:  cobra.NoArgs,
		RunE:  app.runWatch,
	}
}

func (app *App) runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	month, _ := cmd.Flags().GetString("month")

	for {
		result, err := app.syncer.Load(ctx, app.month(cmd), false)
		renderResult(result)
		if err := report(err); err != nil {
			pterm.Error.Println(err)
		}

		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(s *syncer.Syncer) {
			done <- s.Watch(watchCtx, month, func(result *syncer.LoadResult, err error) {
				renderResult(result)
				if err := report(err); err != nil {
					pterm.Error.Println(err)
				}
			})
		}(app.syncer)

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-hangup:
			cancel()
			<-done
			if _, err := app.loader.Reload(); err != nil {
				pterm.Warning.Printfln("Keeping previous configuration: %v", err)
				continue
			}
			if err := app.connect(ctx); err != nil {
				return report(err)
			}
			pterm.Info.Println("Configuration reloaded")
		case err := <-done:
			cancel()
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Change feed lost")
			pterm.Warning.Println("Lost connection to the server, retrying in 10s")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Second):
			}
		}
	}
}

// report turns orchestrator errors into user-facing outcomes. Benign kinds
// are printed and swallowed.
func report(err error) error {
	switch syncer.Classify(err) {
	case syncer.KindNone:
		return nil
	case syncer.KindStaleWriteIgnored:
		pterm.Info.Println("No change")
		return nil
	case syncer.KindRolloverLocked:
		pterm.Warning.Println("Rollover stays off for the first tracked month")
		return nil
	case syncer.KindValidation:
		return fmt.Errorf("invalid input: %w", err)
	case syncer.KindNotFound:
		return fmt.Errorf("not found: %w", err)
	case syncer.KindCacheUnavailable:
		return fmt.Errorf("no offline data available: %w", err)
	case syncer.KindRemoteUnavailable:
		return fmt.Errorf("server unreachable: %w", err)
	default:
		return err
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidAmount, raw)
	}
	return amount, nil
}

func parseID(raw string) (int32, error) {
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid transaction id %q", domain.ErrInvalidInput, raw)
	}
	return int32(id), nil
}

// parseTimestamp reads raw in the device time zone. Empty means now.
func (app *App) parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	loc := app.loader.Current().Location()
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", domain.ErrInvalidInput, raw)
}

func transactionType(deposit bool) domain.TransactionType {
	if deposit {
		return domain.TransactionTypeDeposit
	}
	return domain.TransactionTypeWithdraw
}
