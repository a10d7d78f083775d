package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sejmofil",
	Short: "Grounded chat over Polish parliamentary documents",
	Long: `Sejmofil answers questions about the Polish Sejm in Polish. Each answer is
grounded in retrieved parliamentary prints, topics and organizations, streamed
to the client as it is generated, and followed by its numbered sources.`,
	SilenceUsage: true,
}

// Execute runs the root command. Its context is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
