package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskplane/internal/launch"
)

// codeArchiveName is where the package fragment expects the archive.
const codeArchiveName = "code.tar"

var fetchCodeCmd = &cobra.Command{
	Use:    "fetch-code",
	Short:  "Download and verify the task's code package",
	Hidden: true,
	Long: `Fetch the code package named by TASKPLANE_CODE_URL, verify its sha256
digest against TASKPLANE_CODE_SHA and write it as code.tar in the working
directory. Runs inside the task container before the capture wrapper
starts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := os.Getenv("TASKPLANE_CODE_URL")
		if url == "" {
			return fmt.Errorf("TASKPLANE_CODE_URL is not set")
		}
		wantSHA := os.Getenv("TASKPLANE_CODE_SHA")

		data, err := fetchCode(url)
		if err != nil {
			return err
		}
		if wantSHA != "" {
			if got := launch.CodeDigest(data); got != wantSHA {
				return fmt.Errorf("code package digest mismatch: got %s, want %s", got, wantSHA)
			}
		}
		if err := os.WriteFile(codeArchiveName, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", codeArchiveName, err)
		}
		return nil
	},
}

func fetchCode(url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		client := &http.Client{Timeout: 5 * time.Minute}
		resp, err := client.Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetching code package: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching code package: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading code package: %w", err)
		}
		return data, nil
	}

	// Shared-filesystem datastores hand out plain paths.
	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	if err != nil {
		return nil, fmt.Errorf("reading code package: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(fetchCodeCmd)
}
