package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/guestkiosk/guestkiosk/internal/utils"
)

var cfgFile string

const (
	LOGO = `                       _   _    _           _
   __ _ _  _ ___ _____| |_| |__(_)___  ___ | | __
  / _` + "`" + ` | || / -_|_-<_-<  _| / / | / _ \/ __|| |/ /
  \__, |\_,_\___/__/__/\__|_\_\_|_\___/\__ \|   <
  |___/                                |___/|_|\_\

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "guestkiosk",
	Short: "An offline-first visitor guestbook kiosk.",
	Long: LOGO + `guestkiosk runs a visitor guestbook appliance: visitors sign on a touch
screen, entries are persisted locally, and the app shell keeps working with no
network thanks to a versioned offline cache.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.guestkiosk.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("dbpath", "", "", "Path to the guestbook database (default is ~/.config/guestkiosk/guestkiosk.sqlite)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".guestkiosk")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.guestkiosk.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("server.listen", ":8600")
	viper.SetDefault("server.upstream", "")
	viper.SetDefault("server.delete_password", "")
	viper.SetDefault("db.path", "")
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.shell_version", 1)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// resolveDBPath picks the database path from the flag, then the config file,
// then the default location.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("db.path")
	}
	return utils.GetAbsDBPath(dbPath)
}
