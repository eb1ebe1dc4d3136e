package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/modelstore"
	modelsqlite "github.com/soullink/fay-gateway/internal/modelstore/sqlite"
)

func newModelsCmd(flags *globalFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List persona models visible to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := modelsqlite.New(cfg.ModelDBPath)
			if err != nil {
				return fmt.Errorf("open model store: %w", err)
			}
			defer store.Close()
			return printModels(cmd.Context(), cmd.OutOrStdout(), store, username)
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Restrict to models visible to this user")
	return cmd
}

func printModels(ctx context.Context, out io.Writer, store modelstore.Store, username string) error {
	profiles, err := store.List(ctx, modelstore.ListFilter{Username: username})
	if err != nil {
		return err
	}
	selected := ""
	if username != "" {
		if selected, err = store.SelectedModel(ctx, username); err != nil {
			return err
		}
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL ID\tNAME\tCREATOR\tGLOBAL\tSELECTED")
	for _, p := range profiles {
		mark := ""
		if p.ModelID == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", p.ModelID, p.Name, p.CreatorUsername, p.IsGlobal, mark)
	}
	return tw.Flush()
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		username string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the latest messages of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := openContent(cfg)
			if err != nil {
				return fmt.Errorf("open content store: %w", err)
			}
			defer store.Close()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), store, username, limit)
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Username whose messages are printed")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of messages")
	return cmd
}

func printHistory(ctx context.Context, out io.Writer, store content.Store, username string, limit int) error {
	msgs, err := store.RecentByUser(ctx, username, limit, "")
	if err != nil {
		return err
	}
	for _, m := range msgs {
		adopted := ""
		if m.IsAdopted {
			adopted = " [adopted]"
		}
		fmt.Fprintf(out, "%s #%d %s/%s%s: %s\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.ID, m.Type, m.Way, adopted, m.Content)
	}
	return nil
}
