package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guestkiosk/guestkiosk/internal/server"
	"github.com/guestkiosk/guestkiosk/internal/utils"
	"github.com/guestkiosk/guestkiosk/pkg/gateway"
	"github.com/guestkiosk/guestkiosk/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk server",
	Long: `Run the kiosk server: the guestbook API, the admin page, and the offline
gateway serving the app shell. With no --upstream the embedded shell is
self-hosted on a loopback listener and the gateway fronts that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		if !cmd.Flags().Changed("listen") {
			listenAddr = viper.GetString("server.listen")
		}
		upstream, _ := cmd.Flags().GetString("upstream")
		if upstream == "" {
			upstream = viper.GetString("server.upstream")
		}
		cacheDir, _ := cmd.Flags().GetString("cache-dir")
		if cacheDir == "" {
			cacheDir = viper.GetString("cache.dir")
		}
		manifestPath, _ := cmd.Flags().GetString("shell-manifest")
		shellVersion, _ := cmd.Flags().GetInt("shell-version")
		if !cmd.Flags().Changed("shell-version") {
			shellVersion = viper.GetInt("cache.shell_version")
		}
		deletePassword, _ := cmd.Flags().GetString("delete-password")
		if deletePassword == "" {
			deletePassword = viper.GetString("server.delete_password")
		}

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		st, err := store.Shared(dbPath)
		if err != nil {
			return err
		}

		if cacheDir == "" {
			dataDir, err := utils.DataDir()
			if err != nil {
				return err
			}
			cacheDir = filepath.Join(dataDir, "cache")
		}

		if upstream == "" {
			upstream, err = selfHostShell()
			if err != nil {
				return err
			}
			utils.Log.Infof("No upstream configured, self-hosting embedded shell at %s", upstream)
		}
		upstreamURL, err := url.Parse(upstream)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}

		manifest := defaultManifest(shellVersion)
		if manifestPath != "" {
			manifest, err = gateway.LoadManifestFile(manifestPath)
			if err != nil {
				return err
			}
		}

		gw, err := gateway.New(gateway.Config{
			Upstream: upstreamURL,
			CacheDir: cacheDir,
			Manifest: manifest,
		})
		if err != nil {
			return err
		}

		// A failed install is fatal only when there is nothing older to
		// serve; otherwise the previous generation keeps working and the
		// next restart retries.
		if err := gw.Install(context.Background()); err != nil {
			utils.Log.WithField("err", err).Warn("install failed")
			if rerr := gw.Rollback(); rerr != nil {
				return fmt.Errorf("install failed with no usable cache generation: %w", err)
			}
		} else if err := gw.Activate(); err != nil {
			return err
		}

		return server.New(st, gw, deletePassword).Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8600", "HTTP listen address")
	serveCmd.Flags().String("upstream", "", "Upstream origin hosting the app shell (empty = self-host the embedded shell)")
	serveCmd.Flags().String("cache-dir", "", "Offline cache directory (default is ~/.config/guestkiosk/cache)")
	serveCmd.Flags().String("shell-manifest", "", "Path to a shell manifest JSON file (default is the embedded shell's manifest)")
	serveCmd.Flags().Int("shell-version", 1, "Shell version marker; bump on every shell deployment")
	serveCmd.Flags().String("delete-password", "", "Shared password gating destructive admin actions")
}

// defaultManifest describes the embedded shell.
func defaultManifest(version int) gateway.Manifest {
	return gateway.Manifest{
		Version: version,
		Shell:   "/index.html",
		Assets:  []string{"/", "/index.html", "/app.css", "/app.js", "/manifest.webmanifest"},
	}
}

// selfHostShell serves the embedded shell on a loopback listener and returns
// its origin URL. Used when the kiosk has no deployed upstream at all.
func selfHostShell() (string, error) {
	shellFS, err := server.ShellFS()
	if err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		if err := http.Serve(ln, http.FileServer(http.FS(shellFS))); err != nil {
			utils.Log.WithField("err", err).Error("shell listener stopped")
		}
	}()
	return "http://" + ln.Addr().String(), nil
}
