package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facecache/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded scan sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessions(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(ctx context.Context) error {
	db, err := connectDB(ctx, true)
	if err != nil {
		return err
	}

	sessions, err := db.ListSessions(ctx)
	if err != nil {
		utils.ShowError("Failed to list sessions", err, nil)
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION\tVIDEO\tSTARTED\tFRAMES\tFACES\tNEW\tCACHE")
	fmt.Fprintln(w, "-------\t-----\t-------\t------\t-----\t---\t-----")

	for _, s := range sessions {
		frames := fmt.Sprint(s.Frames)
		if s.FinishedAt == nil {
			frames = "running"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			s.ID.String()[:8], s.Path, s.StartedAt.Local().Format("2006-01-02 15:04"),
			frames, s.Faces, s.NewFaces, s.CacheSize)
	}
	return w.Flush()
}
