package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guestkiosk/guestkiosk/pkg/store"
)

// visitorsCmd represents the visitors command
var visitorsCmd = &cobra.Command{
	Use:   "visitors",
	Short: "Manage pre-registered visitors",
}

var visitorsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Pre-register a visitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		designation, _ := cmd.Flags().GetString("designation")
		photoPath, _ := cmd.Flags().GetString("photo")

		if name == "" {
			return fmt.Errorf("--name is required")
		}

		var photo string
		if photoPath != "" {
			blob, err := os.ReadFile(photoPath)
			if err != nil {
				return fmt.Errorf("could not read photo: %w", err)
			}
			photo = store.BlobToDataURL(blob)
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

		id, err := st.AddVisitor(context.Background(), store.NewVisitor{
			Name:        name,
			Designation: designation,
			Photo:       photo,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added visitor %d: %s\n", id, name)
		return nil
	},
}

var visitorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pre-registered visitors",
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

		visitors, err := st.GetAllVisitors(context.Background())
		if err != nil {
			return err
		}
		if len(visitors) == 0 {
			fmt.Println("No pre-registered visitors.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESIGNATION\tPHOTO\tADDED\t")
		for _, v := range visitors {
			photo := "-"
			if v.Photo != "" {
				photo = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", v.ID, v.Name, v.Designation, photo, v.CreatedAt.Format("2006-01-02"))
		}
		w.Flush()

		return nil
	},
}

var visitorsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a pre-registered visitor",
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

		return st.DeleteVisitor(context.Background(), id)
	},
}

func init() {
	rootCmd.AddCommand(visitorsCmd)
	visitorsCmd.AddCommand(visitorsAddCmd)
	visitorsCmd.AddCommand(visitorsListCmd)
	visitorsCmd.AddCommand(visitorsDeleteCmd)

	visitorsAddCmd.Flags().String("name", "", "Visitor name (required)")
	visitorsAddCmd.Flags().String("designation", "", "Visitor designation")
	visitorsAddCmd.Flags().String("photo", "", "Path to a photo file")
}
