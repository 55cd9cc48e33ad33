package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsherman999/fixihub/internal/config"
	"github.com/jsherman999/fixihub/internal/db"
	"github.com/jsherman999/fixihub/internal/logging"
	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "fixihub",
		Short: "fixihub CLI",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(noteCmd(&cfgPath))
	root.AddCommand(exportCmd(&cfgPath))
	root.AddCommand(tailCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openPostgres is shared by commands that write to the daemon's database;
// the daemon's LISTEN picks their changes up.
func openPostgres(ctx context.Context, cfgPath string) (store.Store, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireDB(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	dbConn, err := db.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.ApplyMigrations(ctx, dbConn); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	return store.NewPostgres(dbConn, logger), dbConn.Close, nil
}

func noteCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Post, list and remove timeline notes",
	}

	var author, text string
	post := &cobra.Command{
		Use:   "post",
		Short: "Post a note to the timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			st, closeFn, err := openPostgres(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()
			if strings.TrimSpace(text) == "" {
				return errors.New("--text is empty")
			}
			n, err := st.AddNote(ctx, author, strings.TrimSpace(text))
			if err != nil {
				return err
			}
			fmt.Printf("note_id=%d author=%s\n", n.ID, n.Author)
			return nil
		},
	}
	post.Flags().StringVar(&author, "author", "cli", "note author")
	post.Flags().StringVar(&text, "text", "", "note text")
	_ = post.MarkFlagRequired("text")

	var id int64
	rm := &cobra.Command{
		Use:   "rm",
		Short: "Remove a note from the timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			st, closeFn, err := openPostgres(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()
			return st.DeleteNote(ctx, id)
		},
	}
	rm.Flags().Int64Var(&id, "id", 0, "note id")
	_ = rm.MarkFlagRequired("id")

	var limit int
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List recent notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			st, closeFn, err := openPostgres(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()
			notes, err := st.ListNotes(ctx, limit)
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Printf("%d\t%s\t%s\t%s\n", n.ID, n.CreatedAt.Format(time.RFC3339), n.Author, n.Text)
			}
			return nil
		},
	}
	ls.Flags().IntVar(&limit, "limit", 20, "max notes to list")

	cmd.AddCommand(post, rm, ls)
	return cmd
}

func tailCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the updates pushed on an event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "text/event-stream")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("GET %s: %s", url, resp.Status)
			}
			return printFrames(cmd.OutOrStdout(), push.NewParser(resp.Body))
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:3000/events", "event stream URL")
	return cmd
}
