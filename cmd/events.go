package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/domain/events"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print events forwarded to the configured broker",
	Args:  cobra.NoArgs,
	RunE:  eventsRun,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func eventsRun(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	logInstance := logger.NewLogger(cfg)
	defer logInstance.Sync()

	broker, err := connectBroker(cfg.Notifications, utils.GenerateInstanceID("events"), logInstance)
	if err != nil {
		return err
	}
	if broker == nil {
		return fmt.Errorf("no broker configured: set notifications.broker to kafka or rabbitmq")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		broker.Close()
	}()

	out := cmd.OutOrStdout()
	return broker.Subscribe(cfg.Notifications.Topic, func(message []byte) {
		event, err := events.Decode(message)
		if err != nil {
			logInstance.Warnf("Skipping malformed event: %v", err)
			return
		}
		fmt.Fprintln(out, formatEvent(event))
	})
}

func formatEvent(e events.Event) string {
	line := fmt.Sprintf("%s %-18s session=%s", e.CreatedAt.Format("15:04:05"), e.EventType, e.SessionID)
	if e.Method != "" {
		line += " method=" + string(e.Method)
	}
	if e.EventType == events.VideoProgress {
		line += fmt.Sprintf(" progress=%.0f%%", e.Progress)
	}
	if e.Message != "" {
		line += fmt.Sprintf(" %q", e.Message)
	}
	return line
}
