package cmd

import (
	"context"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/bugsnag/bugsnag-go/v2"
	_ "github.com/heroku/x/hmetrics/onload"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) int {
	_ = godotenv.Load()

	if key, ok := os.LookupEnv("BUGSNAG_API_KEY"); ok {
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:          key,
			ReleaseStage:    os.Getenv("ENV"),
			ProjectPackages: []string{"main", "github.com/momentum-mod/livestreams"},
		})
	}

	profile := false
	debug := false

	rootCmd := &cobra.Command{
		Use:   "livestreams",
		Short: "Keeps a Discord channel in sync with the live Twitch streams of a game.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !profile {
				return nil
			}

			f, perr := os.Create("cpu.pprof")
			if perr != nil {
				return perr
			}

			_ = pprof.StartCPUProfile(f)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !profile {
				return nil
			}

			pprof.StopCPUProfile()

			f, perr := os.Create("mem.pprof")
			if perr != nil {
				return perr
			}
			defer f.Close()

			runtime.GC()
			err := pprof.WriteHeapProfile(f)
			return err
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&profile, "profile", "p", false, "record CPU pprof")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(MonitorCmd(ctx, &debug))
	rootCmd.AddCommand(ReconcileCmd(ctx, &debug))

	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}
