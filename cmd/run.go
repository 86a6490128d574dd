package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coursechat/coursechat/configs"
	server "github.com/coursechat/coursechat/internal"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coursechat server",
	Args:  cobra.MaximumNArgs(0),
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(_ *cobra.Command, _ []string) {
	server.CreateAndListen(server.Config{
		Debug:         viper.GetBool("debug"),
		Host:          viper.GetString("host"),
		Port:          viper.GetInt("port"),
		AuthURL:       viper.GetString("auth.url"),
		LocalAuth:     viper.GetBool("auth.local"),
		DBPath:        configs.DatabasePath(),
		HistoryLength: viper.GetInt("history-length"),
		TLSCert:       viper.GetString("tls.cert"),
		TLSKey:        viper.GetString("tls.key"),
	})
}
