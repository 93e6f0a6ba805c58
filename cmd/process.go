package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

var processFlags struct {
	methods     string
	videoMethod string
	outDir      string
	transparent bool
	background  string
}

var processCmd = &cobra.Command{
	Use:   "process FILE",
	Short: "Remove the background of one file and save the results",
	Args:  cobra.ExactArgs(1),
	RunE:  processRun,
}

func init() {
	f := processCmd.Flags()
	f.StringVarP(&processFlags.methods, "methods", "m", "", "comma separated image methods (default: configured selection)")
	f.StringVar(&processFlags.videoMethod, "video-method", "bria", "method used for videos")
	f.StringVarP(&processFlags.outDir, "out", "o", ".", "directory receiving the results")
	f.BoolVar(&processFlags.transparent, "transparent", false, "keep the cut-out transparent")
	f.StringVar(&processFlags.background, "background", "", "CSS colour or gradient painted behind images")
	rootCmd.AddCommand(processCmd)
}

func processRun(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	logInstance := logger.NewLogger(cfg)
	defer logInstance.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	upload := service.Upload{
		Filename:    filepath.Base(args[0]),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}

	components, err := initializeComponents(cfg, utils.GenerateInstanceID("cli"), logInstance, componentOptions{inProcess: true})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		components.Close(closeCtx, logInstance)
	}()

	svc := components.service
	created, err := svc.CreateSession(ctx, upload, nil)
	if err != nil {
		return err
	}
	id := created.Session.ID
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s (%s, %s)\n", upload.Filename, upload.ContentType, humanize.Bytes(uint64(len(data))))

	var run *service.Run
	if created.Session.Asset.Kind == models.KindVideo {
		run, err = svc.StartVideo(ctx, id, models.Method(processFlags.videoMethod))
	} else {
		run, err = svc.StartImage(ctx, id, models.ParseMethods(processFlags.methods))
	}
	if err != nil {
		return err
	}

	if err := waitForRun(ctx, out, svc, run); err != nil {
		return err
	}

	session, err := svc.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return writeResults(ctx, out, svc, session)
}

// waitForRun blocks until the run settles. Video progress is redrawn on one
// line when stdout is a terminal.
func waitForRun(ctx context.Context, out io.Writer, svc service.SessionService, run *service.Run) error {
	tty := stdoutIsTerminal() && run.Session.Video != nil
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-run.Done():
			if tty {
				fmt.Fprintln(out)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !tty {
				continue
			}
			s, err := svc.GetSession(ctx, run.Session.ID)
			if err != nil || s.Video == nil {
				continue
			}
			fmt.Fprintf(out, "\r\033[K%s %3.0f%% %s", s.Video.Method, s.Video.Progress, s.Video.Message)
		}
	}
}

// writeResults saves every successful result and prints a summary table with
// one row per selected method.
func writeResults(ctx context.Context, out io.Writer, svc service.SessionService, session *dtos.SessionDTO) error {
	if err := os.MkdirAll(processFlags.outDir, 0o755); err != nil {
		return err
	}

	opts := service.DownloadOptions{Transparent: processFlags.transparent, Background: processFlags.background}
	rows := make([][]string, 0, len(session.Selected))
	saved := 0
	for _, m := range session.Selected {
		r, ok := session.Results[m]
		if row := unsavedRow(m, r, ok); row != nil {
			rows = append(rows, row)
			continue
		}

		if _, err := svc.SetActiveMethod(ctx, session.ID, m); err != nil {
			return err
		}
		file, err := svc.Download(ctx, session.ID, opts)
		if err != nil {
			return err
		}
		path := filepath.Join(processFlags.outDir, file.Filename)
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return err
		}
		saved++
		rows = append(rows, []string{string(m), "ok", humanize.Bytes(uint64(len(file.Data))), path})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Method", "Status", "Size", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	if saved == 0 {
		return fmt.Errorf("no method produced a result")
	}
	return nil
}

// unsavedRow describes a method with nothing to download. Failures carry the
// stored result error, which outlives the dismissed notification.
func unsavedRow(m models.Method, r dtos.ResultDTO, settled bool) []string {
	switch {
	case !settled:
		return []string{string(m), "pending", "", ""}
	case r.Error != "":
		return []string{string(m), "failed", "", r.Error}
	default:
		return nil
	}
}
