package configs

import (
	"github.com/spf13/viper"

	"github.com/coursechat/coursechat/internal/db"
)

// DatabasePath should be run after viper has read the config file
func DatabasePath() string {
	if path := viper.GetString("database.path"); path != "" {
		return path
	}
	return db.DefaultPath()
}
