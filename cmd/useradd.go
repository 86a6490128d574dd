package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/coursechat/coursechat/configs"
	"github.com/coursechat/coursechat/internal/crypto"
	"github.com/coursechat/coursechat/internal/dal"
	"github.com/coursechat/coursechat/internal/db"
	"github.com/coursechat/coursechat/internal/validation"
)

// useraddCmd represents the useradd command.
var useraddCmd = &cobra.Command{
	Use:   "useradd [username] [password]",
	Short: "Create an account in the local credential store",
	Args:  cobra.ExactArgs(2),
	Run:   addUser,
}

func init() {
	rootCmd.AddCommand(useraddCmd)
}

func addUser(_ *cobra.Command, args []string) {
	username, password := args[0], args[1]
	if err := validation.ValidateUsername(username); err != nil {
		log.Fatalf("invalid username: %v", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		log.Fatalf("invalid password: %v", err)
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		log.Fatalf("error hashing password: %v", err)
	}

	database, err := db.Open(configs.DatabasePath())
	if err != nil {
		log.Fatalf("error opening account database: %v", err)
	}
	defer database.Close()

	id, err := dal.CreateAccount(database, username, hashed)
	if err != nil {
		log.Fatalf("error creating account: %v", err)
	}
	log.Printf("Created account %s for %s", id, username)
}
