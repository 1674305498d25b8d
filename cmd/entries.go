package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guestkiosk/guestkiosk/pkg/store"
)

// entriesCmd represents the entries command
var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Browse and curate guestbook entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all guestbook entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.GetAllEntries(context.Background())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("The guestbook is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESIGNATION\tPHOTO\tSIGNED AT\t")
		for _, e := range entries {
			photo := "-"
			if e.Photo != "" {
				photo = "yes"
			}
			name := e.Name
			if name == "" {
				name = "(anonymous)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", e.ID, name, e.Designation, photo, e.Timestamp.Format("2006-01-02 15:04:05"))
		}
		w.Flush()

		return nil
	},
}

var entriesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all entries as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.GetAllEntries(context.Background())
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []store.Entry{}
		}

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return err
		}
		if outPath != "" {
			fmt.Printf("Exported %d entries to %s\n", len(entries), outPath)
		}
		return nil
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a single entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %s", args[0])
		}

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.DeleteEntry(context.Background(), id)
	},
}

var entriesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Irreversibly delete ALL guestbook entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("delete-password")
		yes, _ := cmd.Flags().GetBool("yes")

		configured := viper.GetString("server.delete_password")
		if configured != "" && password != configured {
			return fmt.Errorf("delete password does not match")
		}

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		n, err := st.CountEntries(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("The guestbook is already empty.")
			return nil
		}

		if !yes {
			fmt.Printf("This will permanently delete %d entries. Type 'yes' to continue: ", n)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := st.DeleteAllEntries(ctx); err != nil {
			return err
		}
		fmt.Printf("Deleted %d entries.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entriesCmd)
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesExportCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
	entriesCmd.AddCommand(entriesPurgeCmd)

	entriesExportCmd.Flags().String("out", "", "Write JSON to this file instead of stdout")
	entriesPurgeCmd.Flags().String("delete-password", "", "Shared delete password (required when one is configured)")
	entriesPurgeCmd.Flags().BoolP("yes", "y", false, "Skip the interactive confirmation")
}
