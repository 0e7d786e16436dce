// internal/cli/templates.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/ui"
)

// templatesCmd groups template management subcommands.
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage saved capture templates",
	Long: `Lists, inspects, and deletes the capture templates saved during pick
sessions. Templates record the structural position of each captured field
and are reused by 'clipper apply'.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		tpls, err := a.Store.ListTemplates()
		if err != nil {
			return err
		}
		if len(tpls) == 0 {
			fmt.Println(ui.Dim("No templates saved yet. Capture one with 'clipper pick' and 't <field>'."))
			return nil
		}
		for _, tpl := range tpls {
			fmt.Printf("%s  %s\n", ui.Bold(tpl.Name),
				ui.Dim(fmt.Sprintf("%d fields, updated %s", len(tpl.Fields), tpl.UpdatedAt.Format("2006-01-02 15:04"))))
			if tpl.SourceURL != "" {
				fmt.Printf("  %s\n", ui.Dim(tpl.SourceURL))
			}
		}
		return nil
	},
}

var templatesShowRaw bool

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a template's field mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		tpl, err := a.Store.GetTemplate(args[0])
		if err != nil {
			return err
		}

		if templatesShowRaw {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tpl)
		}

		fmt.Printf("%s\n", ui.Bold(tpl.Name))
		if tpl.SourceURL != "" {
			fmt.Printf("Captured from: %s\n", tpl.SourceURL)
		}
		fmt.Println()
		for _, m := range tpl.Fields {
			fmt.Printf("  %-12s %s\n", string(m.Field)+":", m.Selector)
			if m.ParentSelector != "" {
				fmt.Printf("  %-12s %s child #%d (%s)\n", "", ui.Dim(m.ParentSelector), m.RelativePosition, m.TagName)
			}
			if m.SampleValue != "" {
				fmt.Printf("  %-12s %s\n", "", ui.Dim("e.g. "+m.SampleValue))
			}
		}
		return nil
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		if err := a.Store.DeleteTemplate(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("✓ Template %q deleted", args[0])))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)

	templatesShowCmd.Flags().BoolVar(&templatesShowRaw, "raw", false, "Print the template as JSON")
}
