// internal/cli/doctor.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/auth"
	"github.com/menucollect/clipper/internal/browser"
	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/internal/ui"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that clipper's environment is ready",
	Long: `Verifies the pieces a capture session needs: a Chrome or Chromium
binary, a parsable capture script, reachable local storage, and a stored
API token.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a := GetApp()
	ok := true

	chromePath := a.Config.ChromePath
	if chromePath == "" {
		chromePath = browser.FindChrome()
	}
	if chromePath == "" {
		ok = false
		fmt.Println(ui.Error("✗ Chrome/Chromium not found; set --chrome or CLIPPER_CHROME"))
	} else {
		fmt.Println(ui.Success("✓ Browser: " + chromePath))
		if v := browser.Version(chromePath); v != "" {
			fmt.Println(ui.Dim("    " + v))
		}
	}

	if err := guest.CompileCheck(); err != nil {
		ok = false
		fmt.Println(ui.Error("✗ Capture script does not parse: " + err.Error()))
	} else {
		fmt.Println(ui.Success("✓ Capture script parses"))
	}

	fmt.Println(ui.Success("✓ Local database: " + a.Config.DBPath))

	if a.API == nil {
		fmt.Println(ui.Dim("- Backend not configured (local-only mode)"))
	} else if _, err := auth.LoadToken(); err != nil {
		fmt.Println(ui.Warn("! Backend configured but no token stored; run 'clipper login'"))
	} else {
		fmt.Println(ui.Success("✓ Backend: " + a.Config.APIBaseURL))
	}

	if !ok {
		return fmt.Errorf("environment is not ready")
	}
	return nil
}
