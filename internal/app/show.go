package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent deals.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	deals, err := store.ListRecentDeals(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		fmt.Fprintln(os.Stdout, "no deals found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "External ID\tSource\tConverted\tRate\tStatus\tLogical Version (UTC)\tUpdated (UTC)")

	for _, deal := range deals {
		version := ""
		if deal.LogicalVersion != nil {
			version = deal.LogicalVersion.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			deal.ExternalID,
			deal.SourceAmount.StringFixed(2),
			formatOptional(deal.ConvertedAmount, 2),
			formatOptional(deal.Rate, 8),
			deal.Status,
			version,
			deal.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}

func formatOptional(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}
