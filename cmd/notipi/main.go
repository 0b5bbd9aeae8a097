// Command notipi runs the notification dispatch API, its delivery workers,
// and the credential administration commands.
//
// Usage:
//
//	notipi serve --with-workers
//	notipi worker
//	notipi keygen --owner acme --plan pro --env live
//	notipi revoke --id key_0190...
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
)

// CLI defines the command-line interface.
type CLI struct {
	Serve        ServeCmd        `cmd:"" help:"Start the HTTP API."`
	Worker       WorkerCmd       `cmd:"" help:"Run delivery workers without the HTTP API."`
	Keygen       KeygenCmd       `cmd:"" help:"Mint a credential for an owner and print its secret once."`
	Revoke       RevokeCmd       `cmd:"" help:"Revoke a credential."`
	SessionToken SessionTokenCmd `cmd:"" name:"session-token" help:"Issue a dashboard session token (development)."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
	EnvFile  string `name:"env-file" help:"Dotenv file to load before reading NOTIPI_* variables." type:"path"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("notipi"),
		kong.Description("Multi-tenant notification dispatch pipeline"),
		kong.UsageOnError(),
	)

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cli.LogLevel)})))

	err := ctx.Run(&cli)
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
