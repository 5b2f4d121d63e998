package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
	"github.com/kiratut/v4/internal/config"
	"github.com/kiratut/v4/internal/hostsync"
)

var (
	hostsHost    string
	hostsEnable  bool
	hostsDisable bool
	hostsTest    bool
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List or toggle downstream host stubs (host2, host3)",
	RunE:  runHosts,
}

func init() {
	rootCmd.AddCommand(hostsCmd)
	hostsCmd.Flags().StringVar(&hostsHost, "host", "", "host key to operate on (host2, host3)")
	hostsCmd.Flags().BoolVar(&hostsEnable, "enable", false, "enable the named host")
	hostsCmd.Flags().BoolVar(&hostsDisable, "disable", false, "disable the named host")
	hostsCmd.Flags().BoolVar(&hostsTest, "test", false, "check that the named host's uploader can be configured (no network request is made)")
}

func runHosts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	if hostsHost == "" {
		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "HOST\tENABLED\tCONNECTION")
		for name, h := range a.Config.Hosts {
			fmt.Fprintf(tw, "%s\t%v\t%s\n", name, h.Enabled, h.Connection)
		}
		return tw.Flush()
	}

	if hostsEnable || hostsDisable {
		hostCfg := a.Config.Hosts[hostsHost]
		hostCfg.Enabled = hostsEnable && !hostsDisable
		a.Config.Hosts[hostsHost] = hostCfg
		if err := config.Write(configPath, a.Config, time.Now()); err != nil {
			return withExitCode(exitError, err)
		}
		fmt.Printf("%s: enabled=%v\n", hostsHost, hostCfg.Enabled)
		return nil
	}

	if hostsTest {
		if hostsHost != "host2" {
			fmt.Printf("%s: no connectivity probe defined (reserved stub)\n", hostsHost)
			return nil
		}
		hostCfg := a.Config.Hosts["host2"]
		if _, err := hostsync.NewS3Uploader(ctx, hostsync.Config{Bucket: hostCfg.Connection}); err != nil {
			return withExitCode(exitError, fmt.Errorf("host2 uploader setup failed: %w", err))
		}
		fmt.Println("host2: uploader configured")
		return nil
	}

	h, ok := a.Config.Hosts[hostsHost]
	if !ok {
		return withExitCode(exitError, fmt.Errorf("unknown host %q", hostsHost))
	}
	fmt.Printf("%s: enabled=%v connection=%s\n", hostsHost, h.Enabled, h.Connection)
	return nil
}
