// Package stop implements the stop command, which asks a running worker to
// end a recording through the shared stop signal store.
package stop

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/stopsignal"
)

// Command creates the stop command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <recordingID>",
		Short: "Signal a running detection job to stop",
		Long: "Sets the stop flag for a recording. The worker running it notices the flag on its " +
			"next iteration, releases the camera and marks the recording stopped. Requires a " +
			"shared backend (nats); the memory backend only reaches jobs in this process.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 0)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid recording id %q", args[0])
			}

			log := logger.Global().Module("stop")
			if settings.StopSignal.Backend != conf.StopBackendNATS {
				log.Warn("stop signal backend is not shared, no worker will see this flag",
					logger.String("backend", settings.StopSignal.Backend))
			}

			store, err := stopsignal.Open(&settings.StopSignal, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Signal(cmd.Context(), uint(id)); err != nil {
				return err
			}
			log.Info("stop requested", logger.Uint64("recording_id", id))
			cmd.Printf("stop requested for recording %d\n", id)
			return nil
		},
	}
}
