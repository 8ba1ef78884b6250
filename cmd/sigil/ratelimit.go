package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Rate limit management commands",
}

var ratelimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured deployment rate limits",
	RunE:  runRatelimitShow,
}

func init() {
	ratelimitCmd.AddCommand(ratelimitShowCmd)
	rootCmd.AddCommand(ratelimitCmd)
}

func runRatelimitShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rl := cfg.RateLimit

	fmt.Println("Rate Limiting Configuration")
	fmt.Println("===========================")
	fmt.Printf("Enabled: %v\n\n", rl.Enabled)

	if !rl.Enabled {
		fmt.Println("Rate limiting is disabled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tDEPLOYS/HOUR\tDEPLOYS/DAY")
	fmt.Fprintln(w, "-----\t------------\t-----------")

	if rl.Global != nil {
		fmt.Fprintf(w, "Global\t%d\t%d\n", rl.Global.DeploysPerHour, rl.Global.DeploysPerDay)
	} else {
		fmt.Fprintln(w, "Global\t-\t-")
	}

	if rl.DefaultOrg != nil {
		fmt.Fprintf(w, "Per Org\t%d\t%d\n", rl.DefaultOrg.DeploysPerHour, rl.DefaultOrg.DeploysPerDay)
	} else {
		fmt.Fprintln(w, "Per Org\t-\t-")
	}

	if rl.DefaultProvider != nil {
		fmt.Fprintf(w, "Per Provider\t%d\t%d\n", rl.DefaultProvider.DeploysPerHour, rl.DefaultProvider.DeploysPerDay)
	} else {
		fmt.Fprintln(w, "Per Provider\t-\t-")
	}

	w.Flush()

	return nil
}
