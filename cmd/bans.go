package cmd

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"example.com/flightguild/bot/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "Inspect persisted bans",
}

var bansListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the persisted bans",
	Long:  `Read the configured ban store and print every record with its remaining time`,
	RunE:  runBansList,
}

func init() {
	bansCmd.AddCommand(bansListCmd)
	rootCmd.AddCommand(bansCmd)
}

func runBansList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openBanStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.LoadAll(context.Background())
	if err != nil {
		return err
	}

	renderBans(os.Stdout, records, time.Now())
	return nil
}

func renderBans(w io.Writer, records []models.BanRecord, now time.Time) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ExpiresAt.Before(records[j].ExpiresAt)
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Member", "Expires (UTC)", "Remaining"})
	table.SetAutoWrapText(false)
	for _, r := range records {
		remaining := "expired"
		if r.IsActive(now) {
			remaining = r.ExpiresAt.Sub(now).Round(time.Second).String()
		}
		table.Append([]string{r.SubjectID, r.ExpiresAt.UTC().Format(time.RFC3339), remaining})
	}
	table.Render()
}
