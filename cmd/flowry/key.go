package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/api"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "API credential commands",
}

var keyHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Print the bcrypt hash of an API key for api.keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyHash,
}

var keyTokenCmd = &cobra.Command{
	Use:   "token <owner>",
	Short: "Issue a bearer token for an owner signed with auth.jwt_secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyToken,
}

func init() {
	keyCmd.AddCommand(keyHashCmd, keyTokenCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyHash(cmd *cobra.Command, args []string) error {
	hash, err := api.HashKey(args[0])
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func runKeyToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	token, err := api.NewAuthenticator(cfg.API.Keys, cfg.Auth).IssueToken(args[0], time.Now())
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
